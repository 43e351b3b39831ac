package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		IsRetryable: func(err error) bool {
			return errors.Is(err, errTransient)
		},
	}
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries retryable errors until success", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-retryable errors return immediately", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(ctx context.Context) error {
			calls++
			return errPermanent
		})
		if !errors.Is(err, errPermanent) {
			t.Errorf("expected errPermanent, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		var retryErr *RetryError
		if errors.As(err, &retryErr) {
			t.Error("non-retryable error should not be wrapped in RetryError")
		}
	})

	t.Run("exhaustion wraps in RetryError", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastConfig(), func(ctx context.Context) error {
			calls++
			return errTransient
		})
		if calls != 4 { // initial attempt + 3 retries
			t.Errorf("expected 4 calls, got %d", calls)
		}

		var retryErr *RetryError
		if !errors.As(err, &retryErr) {
			t.Fatalf("expected RetryError, got %v", err)
		}
		if retryErr.Attempts != 4 {
			t.Errorf("expected 4 attempts recorded, got %d", retryErr.Attempts)
		}
		if !errors.Is(err, ErrMaxRetries) {
			t.Error("expected errors.Is(err, ErrMaxRetries)")
		}
		if !errors.Is(err, errTransient) {
			t.Error("expected errors.Is(err, errTransient) via cause")
		}
	})

	t.Run("nil IsRetryable means no retries", func(t *testing.T) {
		calls := 0
		cfg := fastConfig()
		cfg.IsRetryable = nil
		err := Do(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errTransient
		})
		if !errors.Is(err, errTransient) {
			t.Errorf("expected errTransient, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		calls := 0
		err := Do(cancelCtx, fastConfig(), func(ctx context.Context) error {
			calls++
			cancel()
			return errTransient
		})
		if !errors.Is(err, ErrContextCanceled) {
			t.Errorf("expected ErrContextCanceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()

	t.Run("returns result on success", func(t *testing.T) {
		calls := 0
		got, err := DoWithResult(ctx, fastConfig(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errTransient
			}
			return "done", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "done" {
			t.Errorf("expected %q, got %q", "done", got)
		}
	})

	t.Run("returns zero value on failure", func(t *testing.T) {
		got, err := DoWithResult(ctx, fastConfig(), func(ctx context.Context) (int, error) {
			return 42, errPermanent
		})
		if err == nil {
			t.Fatal("expected error")
		}
		_ = got // last attempt's partial value is unspecified; only err matters
	})
}

func TestBackoff(t *testing.T) {
	cfg := applyDefaults(Config{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		Multiplier:     2.0,
		Jitter:         0,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 40 * time.Millisecond}, // capped
	}
	for _, c := range cases {
		if got := backoff(cfg, c.attempt); got != c.want {
			t.Errorf("backoff(attempt=%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(Config{})
	if cfg.InitialBackoff != 5*time.Millisecond {
		t.Errorf("expected default initial backoff, got %v", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != time.Second {
		t.Errorf("expected default max backoff, got %v", cfg.MaxBackoff)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected default multiplier, got %v", cfg.Multiplier)
	}

	clamped := applyDefaults(Config{Jitter: 2, MaxRetries: -5})
	if clamped.Jitter != 1 {
		t.Errorf("expected jitter clamped to 1, got %v", clamped.Jitter)
	}
	if clamped.MaxRetries != 0 {
		t.Errorf("expected negative retries clamped to 0, got %v", clamped.MaxRetries)
	}
}
