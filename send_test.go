package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/corevane/messaging/store"
	"github.com/corevane/messaging/store/memory"
)

func TestSend(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	t.Run("stores message with metadata", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "hello bob")

		if msg.ID == "" {
			t.Error("expected assigned message ID")
		}
		if msg.SenderID != "alice" || msg.ReceiverID != "bob" {
			t.Errorf("unexpected participants: %s -> %s", msg.SenderID, msg.ReceiverID)
		}
		if msg.CreatedAt.IsZero() {
			t.Error("expected assigned creation timestamp")
		}
		if msg.Edited || msg.Read {
			t.Error("new message should be unedited and unread")
		}

		got, err := svc.Get(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Content != "hello bob" {
			t.Errorf("expected content %q, got %q", "hello bob", got.Content)
		}
	})

	t.Run("creates exactly one notification per send", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "carol", "ping")

		notifications, err := svc.Notifications(ctx, "carol", ListOptions{})
		if err != nil {
			t.Fatalf("notifications failed: %v", err)
		}

		var count int
		for _, n := range notifications {
			if n.MessageID == msg.ID {
				count++
				if n.RecipientID != "carol" {
					t.Errorf("notification addressed to %q, want carol", n.RecipientID)
				}
				if n.Acknowledged {
					t.Error("new notification should be unacknowledged")
				}
			}
		}
		if count != 1 {
			t.Errorf("expected exactly 1 notification for message, got %d", count)
		}
	})

	t.Run("send to self is allowed", func(t *testing.T) {
		msg := mustSend(t, svc, "dave", "dave", "note to self")

		notifications, err := svc.Notifications(ctx, "dave", ListOptions{})
		if err != nil {
			t.Fatalf("notifications failed: %v", err)
		}
		found := false
		for _, n := range notifications {
			if n.MessageID == msg.ID {
				found = true
			}
		}
		if !found {
			t.Error("expected self-send to create a notification")
		}
	})

	t.Run("reply records parent", func(t *testing.T) {
		parent := mustSend(t, svc, "alice", "bob", "root")
		reply := mustReply(t, svc, "bob", "alice", "re: root", parent.ID)

		if reply.ParentID != parent.ID {
			t.Errorf("expected parent %s, got %s", parent.ID, reply.ParentID)
		}
	})

	t.Run("reply to missing parent fails", func(t *testing.T) {
		_, err := svc.Send(ctx, SendRequest{
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    "orphan reply",
			ParentID:   "00000000-0000-0000-0000-000000000000",
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		for _, content := range []string{"", "   ", "\t\n"} {
			_, err := svc.Send(ctx, SendRequest{SenderID: "alice", ReceiverID: "bob", Content: content})
			if !errors.Is(err, ErrInvalidContent) {
				t.Errorf("content %q: expected ErrInvalidContent, got %v", content, err)
			}
		}
	})

	t.Run("rejects invalid users", func(t *testing.T) {
		_, err := svc.Send(ctx, SendRequest{SenderID: "", ReceiverID: "bob", Content: "hi"})
		if !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("empty sender: expected ErrInvalidUserID, got %v", err)
		}
		_, err = svc.Send(ctx, SendRequest{SenderID: "alice", ReceiverID: "bad:id", Content: "hi"})
		if !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("invalid receiver: expected ErrInvalidUserID, got %v", err)
		}
	})

	t.Run("rejects oversized content", func(t *testing.T) {
		small, err := NewService(
			WithStore(memory.New()),
			WithMaxContentSize(16),
		)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if err := small.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		defer small.Close(ctx)

		_, err = small.Send(ctx, SendRequest{
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    strings.Repeat("x", 17),
		})
		if !errors.Is(err, ErrContentTooLarge) {
			t.Errorf("expected ErrContentTooLarge, got %v", err)
		}
	})
}

// notifyFailStore fails notification creation to exercise send rollback.
type notifyFailStore struct {
	*memory.Store
	failNotify bool
}

func (s *notifyFailStore) CreateNotification(ctx context.Context, data store.NotificationData) (*store.Notification, error) {
	if s.failNotify {
		return nil, errors.New("notification backend unavailable")
	}
	return s.Store.CreateNotification(ctx, data)
}

func TestSendRollback(t *testing.T) {
	ctx := context.Background()
	failStore := &notifyFailStore{Store: memory.New(), failNotify: true}

	svc, err := NewService(WithStore(failStore))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer svc.Close(ctx)

	_, err = svc.Send(ctx, SendRequest{SenderID: "alice", ReceiverID: "bob", Content: "doomed"})
	if err == nil {
		t.Fatal("expected send to fail when notification dispatch fails")
	}

	// The message must have been rolled back: no partial send visible.
	failStore.failNotify = false
	count, err := failStore.CountMessages(ctx, []store.Filter{store.SenderIs("alice")})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 messages after rollback, got %d", count)
	}
}
