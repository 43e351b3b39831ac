package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/corevane/messaging/retry"
	"github.com/corevane/messaging/store"
)

// Edit overwrites a message's content. The pre-edit content is snapshotted
// to the audit trail in the same store transaction as the overwrite, so a
// reader never sees new content without its history entry.
//
// Editing to identical content is an idempotent no-op: no audit entry is
// written and the edited flag is untouched.
//
// Concurrent edits are serialized by a compare-and-swap on the stored
// content: a lost race re-reads and retries, so each successful edit records
// exactly the content it replaced and the last writer wins. Retries are
// bounded by WithEditRetryLimit.
func (s *service) Edit(ctx context.Context, messageID, newContent, editorID string) (*store.Message, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	if !isValidUserID(editorID) {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(newContent) == "" {
		return nil, ErrInvalidContent
	}
	if len(newContent) > s.opts.maxContentSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrContentTooLarge, len(newContent), s.opts.maxContentSize)
	}

	ctx, endSpan := s.otel.startSpan(ctx, "messaging.edit",
		attribute.String("message_id", messageID),
		attribute.String("editor_id", editorID),
	)
	start := time.Now()
	var editErr error
	defer func() {
		endSpan(editErr)
		s.otel.recordEdit(ctx, time.Since(start), editErr)
	}()

	msg, err := retry.DoWithResult(ctx, retry.Config{
		MaxRetries:     s.opts.editRetryLimit,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		IsRetryable: func(err error) bool {
			return errors.Is(err, ErrEditConflict)
		},
	}, func(ctx context.Context) (*store.Message, error) {
		return s.tryEdit(ctx, messageID, newContent, editorID)
	})
	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			editErr = fmt.Errorf("edit message %s: %w", messageID, err)
			return nil, editErr
		}
		editErr = err
		return nil, editErr
	}

	return msg, nil
}

// tryEdit performs one read-then-swap attempt.
func (s *service) tryEdit(ctx context.Context, messageID, newContent, editorID string) (*store.Message, error) {
	current, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	// Idempotent no-op: nothing to capture, nothing to flip.
	if current.Content == newContent {
		return current, nil
	}

	updated, entry, applied, err := s.store.ApplyContentEdit(ctx, store.ContentEdit{
		MessageID:       messageID,
		ExpectedContent: current.Content,
		NewContent:      newContent,
		EditorID:        editorID,
	})
	if err != nil {
		return nil, fmt.Errorf("apply content edit: %w", err)
	}
	if !applied {
		// Someone else swapped first. The conflict marker routes this
		// attempt back through the retry loop.
		return nil, fmt.Errorf("%w: message %s", ErrEditConflict, messageID)
	}

	if err := s.events.MessageEdited.Publish(ctx, MessageEditedEvent{
		MessageID:  updated.ID,
		EditorID:   editorID,
		OldContent: entry.OldContent,
		EditedAt:   entry.EditedAt,
	}); err != nil {
		if s.opts.eventErrorsFatal {
			return updated, &EventPublishError{Event: "MessageEdited", MessageID: updated.ID, Err: err}
		}
		s.opts.safeEventPublishFailure("MessageEdited", err)
	}

	return updated, nil
}

// History returns a message's audit entries, oldest first. Entries are
// immutable once written; one entry exists per completed edit.
func (s *service) History(ctx context.Context, messageID string, opts ListOptions) ([]store.AuditEntry, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	// Reject history requests for messages that don't exist, as opposed
	// to returning an empty list for messages that were never edited.
	if _, err := s.store.GetMessage(ctx, messageID); err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	opts.Limit = s.opts.capLimit(opts.Limit)
	entries, err := s.store.HistoryFor(ctx, messageID, opts)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}
