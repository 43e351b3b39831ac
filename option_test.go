package messaging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestNewOptions(t *testing.T) {
	t.Run("returns defaults without options", func(t *testing.T) {
		opts := newOptions()

		if opts.maxContentSize != DefaultMaxContentSize {
			t.Errorf("expected maxContentSize %v, got %v", DefaultMaxContentSize, opts.maxContentSize)
		}
		if opts.maxQueryLimit != DefaultMaxQueryLimit {
			t.Errorf("expected maxQueryLimit %v, got %v", DefaultMaxQueryLimit, opts.maxQueryLimit)
		}
		if opts.defaultQueryLimit != DefaultQueryLimit {
			t.Errorf("expected defaultQueryLimit %v, got %v", DefaultQueryLimit, opts.defaultQueryLimit)
		}
		if opts.maxConcurrentSends != DefaultMaxConcurrentSends {
			t.Errorf("expected maxConcurrentSends %v, got %v", DefaultMaxConcurrentSends, opts.maxConcurrentSends)
		}
		if opts.editRetryLimit != DefaultEditRetryLimit {
			t.Errorf("expected editRetryLimit %v, got %v", DefaultEditRetryLimit, opts.editRetryLimit)
		}
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected shutdownTimeout %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
		if opts.onEventPublishFailure == nil {
			t.Error("expected default event failure handler")
		}
	})

	t.Run("caps default query limit to max", func(t *testing.T) {
		opts := newOptions(WithMaxQueryLimit(10), WithDefaultQueryLimit(50))
		if opts.defaultQueryLimit != 10 {
			t.Errorf("expected defaultQueryLimit capped to 10, got %v", opts.defaultQueryLimit)
		}
	})
}

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		customLogger := slog.Default()
		opts := newOptions(WithLogger(customLogger))
		if opts.logger != customLogger {
			t.Error("expected custom logger to be set")
		}
	})

	t.Run("ignores nil logger", func(t *testing.T) {
		opts := newOptions(WithLogger(nil))
		if opts.logger == nil {
			t.Error("expected default logger when nil passed")
		}
	})
}

func TestWithShutdownTimeout(t *testing.T) {
	t.Run("sets custom timeout", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(5 * time.Second))
		if opts.shutdownTimeout != 5*time.Second {
			t.Errorf("expected 5s, got %v", opts.shutdownTimeout)
		}
	})

	t.Run("ignores timeout below minimum", func(t *testing.T) {
		opts := newOptions(WithShutdownTimeout(10 * time.Millisecond))
		if opts.shutdownTimeout != DefaultShutdownTimeout {
			t.Errorf("expected default %v, got %v", DefaultShutdownTimeout, opts.shutdownTimeout)
		}
	})
}

func TestWithEditRetryLimit(t *testing.T) {
	t.Run("sets custom limit", func(t *testing.T) {
		opts := newOptions(WithEditRetryLimit(10))
		if opts.editRetryLimit != 10 {
			t.Errorf("expected 10, got %v", opts.editRetryLimit)
		}
	})

	t.Run("ignores non-positive limit", func(t *testing.T) {
		opts := newOptions(WithEditRetryLimit(0))
		if opts.editRetryLimit != DefaultEditRetryLimit {
			t.Errorf("expected default %v, got %v", DefaultEditRetryLimit, opts.editRetryLimit)
		}
	})
}

func TestCapLimit(t *testing.T) {
	opts := newOptions(WithMaxQueryLimit(50), WithDefaultQueryLimit(10))

	cases := []struct {
		in, want int
	}{
		{0, 10},
		{-1, 10},
		{25, 25},
		{50, 50},
		{51, 50},
	}
	for _, c := range cases {
		if got := opts.capLimit(c.in); got != c.want {
			t.Errorf("capLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSafeEventPublishFailure(t *testing.T) {
	t.Run("invokes handler", func(t *testing.T) {
		var gotEvent string
		var gotErr error
		opts := newOptions(WithEventPublishFailureHandler(func(eventName string, err error) {
			gotEvent = eventName
			gotErr = err
		}))

		cause := errors.New("transport down")
		opts.safeEventPublishFailure("MessageSent", cause)

		if gotEvent != "MessageSent" || gotErr != cause {
			t.Errorf("handler got (%q, %v), want (MessageSent, %v)", gotEvent, gotErr, cause)
		}
	})

	t.Run("recovers from panicking handler", func(t *testing.T) {
		opts := newOptions(WithEventPublishFailureHandler(func(string, error) {
			panic("handler bug")
		}))

		// Must not propagate the panic.
		opts.safeEventPublishFailure("MessageSent", errors.New("x"))
	})
}
