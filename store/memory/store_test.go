package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/corevane/messaging/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return s
}

func createMessage(t *testing.T, s *Store, sender, receiver, content string) *store.Message {
	t.Helper()
	msg, err := s.CreateMessage(context.Background(), store.MessageData{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
	})
	if err != nil {
		t.Fatalf("create message failed: %v", err)
	}
	return msg
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetMessage(ctx, "id"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before Connect, got %v", err)
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := s.GetMessage(ctx, "id"); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after Close, got %v", err)
	}
}

func TestCreateMessage(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	t.Run("assigns id and timestamp", func(t *testing.T) {
		msg := createMessage(t, s, "alice", "bob", "hi")
		if msg.ID == "" || msg.CreatedAt.IsZero() {
			t.Errorf("expected assigned identity, got %+v", msg)
		}
	})

	t.Run("creation order is total", func(t *testing.T) {
		a := createMessage(t, s, "alice", "bob", "a")
		b := createMessage(t, s, "alice", "bob", "b")
		if !b.CreatedAt.After(a.CreatedAt) {
			t.Error("expected strictly increasing creation timestamps")
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, store.MessageData{SenderID: "a", ReceiverID: "b", Content: "  "})
		if !errors.Is(err, store.ErrEmptyContent) {
			t.Errorf("expected ErrEmptyContent, got %v", err)
		}
	})

	t.Run("rejects missing parent", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, store.MessageData{
			SenderID: "a", ReceiverID: "b", Content: "x", ParentID: "missing",
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("returned message is a copy", func(t *testing.T) {
		msg := createMessage(t, s, "alice", "bob", "mutate me")
		msg.Content = "mutated locally"

		stored, err := s.GetMessage(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if stored.Content != "mutate me" {
			t.Error("store must not share memory with returned messages")
		}
	})
}

func TestApplyContentEdit(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	t.Run("applies when content matches", func(t *testing.T) {
		msg := createMessage(t, s, "alice", "bob", "old")

		updated, entry, applied, err := s.ApplyContentEdit(ctx, store.ContentEdit{
			MessageID:       msg.ID,
			ExpectedContent: "old",
			NewContent:      "new",
			EditorID:        "alice",
		})
		if err != nil || !applied {
			t.Fatalf("expected applied edit, got applied=%v err=%v", applied, err)
		}
		if updated.Content != "new" || !updated.Edited || updated.EditedBy != "alice" {
			t.Errorf("unexpected updated message %+v", updated)
		}
		if entry == nil || entry.OldContent != "old" || entry.EditorID != "alice" {
			t.Errorf("unexpected audit entry %+v", entry)
		}
	})

	t.Run("conflict when content moved", func(t *testing.T) {
		msg := createMessage(t, s, "alice", "bob", "current")

		current, entry, applied, err := s.ApplyContentEdit(ctx, store.ContentEdit{
			MessageID:       msg.ID,
			ExpectedContent: "stale",
			NewContent:      "new",
			EditorID:        "alice",
		})
		if err != nil {
			t.Fatalf("conflict must not be an error: %v", err)
		}
		if applied || entry != nil {
			t.Error("conflicting edit must not apply or write audit entries")
		}
		if current.Content != "current" {
			t.Errorf("expected current content back, got %q", current.Content)
		}

		entries, _ := s.HistoryFor(ctx, msg.ID, store.ListOptions{})
		if len(entries) != 0 {
			t.Errorf("conflict left %d audit entries", len(entries))
		}
	})

	t.Run("missing message", func(t *testing.T) {
		_, _, _, err := s.ApplyContentEdit(ctx, store.ContentEdit{
			MessageID: "missing", ExpectedContent: "a", NewContent: "b",
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteMessageCascade(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	msg := createMessage(t, s, "alice", "bob", "v1")
	if _, _, _, err := s.ApplyContentEdit(ctx, store.ContentEdit{
		MessageID: msg.ID, ExpectedContent: "v1", NewContent: "v2", EditorID: "alice",
	}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if _, err := s.CreateNotification(ctx, store.NotificationData{
		RecipientID: "bob", MessageID: msg.ID,
	}); err != nil {
		t.Fatalf("notification failed: %v", err)
	}

	reply, err := s.CreateMessage(ctx, store.MessageData{
		SenderID: "bob", ReceiverID: "alice", Content: "reply", ParentID: msg.ID,
	})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}

	if err := s.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := s.GetMessage(ctx, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("message should be gone, got %v", err)
	}

	entries, _ := s.HistoryFor(ctx, msg.ID, store.ListOptions{})
	if len(entries) != 0 {
		t.Errorf("audit entries should cascade, got %d", len(entries))
	}

	notifications, _ := s.NotificationsFor(ctx, "bob", store.ListOptions{})
	if len(notifications) != 0 {
		t.Errorf("notification should cascade, got %d", len(notifications))
	}

	got, err := s.GetMessage(ctx, reply.ID)
	if err != nil {
		t.Fatalf("reply should survive: %v", err)
	}
	if got.ParentID != "" {
		t.Errorf("expected nullified parent, got %q", got.ParentID)
	}
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	msg1 := createMessage(t, s, "alice", "bob", "one")
	msg2 := createMessage(t, s, "alice", "bob", "two")

	n1, err := s.CreateNotification(ctx, store.NotificationData{RecipientID: "bob", MessageID: msg1.ID})
	if err != nil {
		t.Fatalf("create notification failed: %v", err)
	}
	if _, err := s.CreateNotification(ctx, store.NotificationData{RecipientID: "bob", MessageID: msg2.ID}); err != nil {
		t.Fatalf("create notification failed: %v", err)
	}

	t.Run("newest first", func(t *testing.T) {
		list, err := s.NotificationsFor(ctx, "bob", store.ListOptions{})
		if err != nil {
			t.Fatalf("notifications failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 notifications, got %d", len(list))
		}
		if list[0].MessageID != msg2.ID {
			t.Error("expected newest notification first")
		}
	})

	t.Run("cursor pagination", func(t *testing.T) {
		msg3 := createMessage(t, s, "alice", "bob", "three")
		if _, err := s.CreateNotification(ctx, store.NotificationData{RecipientID: "bob", MessageID: msg3.ID}); err != nil {
			t.Fatalf("create notification failed: %v", err)
		}

		seen := make(map[string]bool)
		opts := store.ListOptions{Limit: 1}
		for {
			list, err := s.NotificationsFor(ctx, "bob", opts)
			if err != nil {
				t.Fatalf("notifications failed: %v", err)
			}
			if len(list) == 0 {
				break
			}
			for _, n := range list {
				if seen[n.ID] {
					t.Errorf("notification %s returned twice", n.ID)
				}
				seen[n.ID] = true
			}
			opts.StartAfter = list[len(list)-1].ID
		}
		if len(seen) != 3 {
			t.Errorf("expected to page through 3 notifications, got %d", len(seen))
		}
	})

	t.Run("unknown cursor yields empty page", func(t *testing.T) {
		list, err := s.NotificationsFor(ctx, "bob", store.ListOptions{StartAfter: "vanished"})
		if err != nil {
			t.Fatalf("notifications failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected empty page for unknown cursor, got %d", len(list))
		}
	})

	t.Run("acknowledge", func(t *testing.T) {
		if err := s.AcknowledgeNotification(ctx, n1.ID); err != nil {
			t.Fatalf("acknowledge failed: %v", err)
		}
		list, _ := s.NotificationsFor(ctx, "bob", store.ListOptions{})
		for _, n := range list {
			if n.ID == n1.ID && !n.Acknowledged {
				t.Error("expected notification acknowledged")
			}
		}
	})

	t.Run("acknowledge missing", func(t *testing.T) {
		if err := s.AcknowledgeNotification(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects missing message", func(t *testing.T) {
		_, err := s.CreateNotification(ctx, store.NotificationData{RecipientID: "bob", MessageID: "missing"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
