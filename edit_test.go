package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/corevane/messaging/store"
)

func TestEdit(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	t.Run("snapshots old content before overwrite", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "first draft")

		updated, err := svc.Edit(ctx, msg.ID, "second draft", "alice")
		if err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		if updated.Content != "second draft" {
			t.Errorf("expected new content, got %q", updated.Content)
		}
		if !updated.Edited {
			t.Error("expected edited flag to be set")
		}
		if updated.EditedBy != "alice" {
			t.Errorf("expected editor alice, got %q", updated.EditedBy)
		}

		history, err := svc.History(ctx, msg.ID, ListOptions{})
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 audit entry, got %d", len(history))
		}
		if history[0].OldContent != "first draft" {
			t.Errorf("expected snapshot of %q, got %q", "first draft", history[0].OldContent)
		}
		if history[0].EditorID != "alice" {
			t.Errorf("expected editor alice, got %q", history[0].EditorID)
		}
		if history[0].MessageID != msg.ID {
			t.Errorf("entry bound to %q, want %q", history[0].MessageID, msg.ID)
		}
	})

	t.Run("history is ordered oldest first", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "v1")

		if _, err := svc.Edit(ctx, msg.ID, "v2", "alice"); err != nil {
			t.Fatalf("first edit failed: %v", err)
		}
		if _, err := svc.Edit(ctx, msg.ID, "v3", "bob"); err != nil {
			t.Fatalf("second edit failed: %v", err)
		}

		history, err := svc.History(ctx, msg.ID, ListOptions{})
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 audit entries, got %d", len(history))
		}
		if history[0].OldContent != "v1" || history[1].OldContent != "v2" {
			t.Errorf("expected snapshots [v1 v2], got [%s %s]",
				history[0].OldContent, history[1].OldContent)
		}
		if history[1].EditedAt.Before(history[0].EditedAt) {
			t.Error("expected entries ordered by edit time ascending")
		}

		got, err := svc.Get(ctx, msg.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Content != "v3" {
			t.Errorf("expected final content v3, got %q", got.Content)
		}
	})

	t.Run("identical content is a no-op", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "same")

		updated, err := svc.Edit(ctx, msg.ID, "same", "alice")
		if err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		if updated.Edited {
			t.Error("no-op edit should not set edited flag")
		}

		history, err := svc.History(ctx, msg.ID, ListOptions{})
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("no-op edit should not write audit entries, got %d", len(history))
		}
	})

	t.Run("edit of missing message fails", func(t *testing.T) {
		_, err := svc.Edit(ctx, "00000000-0000-0000-0000-000000000000", "new", "alice")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects empty content", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "keep me")

		_, err := svc.Edit(ctx, msg.ID, "   ", "alice")
		if !errors.Is(err, ErrInvalidContent) {
			t.Errorf("expected ErrInvalidContent, got %v", err)
		}

		got, _ := svc.Get(ctx, msg.ID)
		if got.Content != "keep me" {
			t.Errorf("rejected edit must not change content, got %q", got.Content)
		}
	})

	t.Run("rejects invalid editor", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "content")
		_, err := svc.Edit(ctx, msg.ID, "changed", "")
		if !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("expected ErrInvalidUserID, got %v", err)
		}
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	t.Run("empty for unedited message", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "never edited")

		history, err := svc.History(ctx, msg.ID, ListOptions{})
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected empty history, got %d entries", len(history))
		}
	})

	t.Run("missing message is an error", func(t *testing.T) {
		_, err := svc.History(ctx, "00000000-0000-0000-0000-000000000000", ListOptions{})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("edited flag tracks history presence", func(t *testing.T) {
		msg := mustSend(t, svc, "alice", "bob", "v1")

		got, _ := svc.Get(ctx, msg.ID)
		if got.Edited {
			t.Error("unedited message must not carry the edited flag")
		}

		if _, err := svc.Edit(ctx, msg.ID, "v2", "alice"); err != nil {
			t.Fatalf("edit failed: %v", err)
		}

		got, _ = svc.Get(ctx, msg.ID)
		history, _ := svc.History(ctx, msg.ID, ListOptions{})
		if !got.Edited || len(history) == 0 {
			t.Error("edited message must carry the flag and at least one entry")
		}
	})
}
