package messaging

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/corevane/messaging/store"
)

// Get retrieves a message by ID.
func (s *service) Get(ctx context.Context, messageID string) (*store.Message, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// MarkRead flips a message's read flag. Marking an already-read message
// read again is a no-op at the store level.
func (s *service) MarkRead(ctx context.Context, messageID string, read bool) error {
	if err := s.checkAccess(); err != nil {
		return err
	}

	if err := s.store.MarkRead(ctx, messageID, read); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Delete removes a message. The store cascades the message's audit entries
// and notification; replies survive with their parent reference cleared so
// they re-anchor as top-level messages.
func (s *service) Delete(ctx context.Context, messageID string) error {
	if err := s.checkAccess(); err != nil {
		return err
	}

	ctx, endSpan := s.otel.startSpan(ctx, "messaging.delete",
		attribute.String("message_id", messageID),
	)
	start := time.Now()
	var deleteErr error
	defer func() {
		endSpan(deleteErr)
		s.otel.recordDelete(ctx, time.Since(start), deleteErr)
	}()

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		deleteErr = fmt.Errorf("delete message: %w", err)
		return deleteErr
	}

	if err := s.events.MessageDeleted.Publish(ctx, MessageDeletedEvent{
		MessageID: messageID,
		DeletedAt: time.Now().UTC(),
	}); err != nil {
		if s.opts.eventErrorsFatal {
			deleteErr = &EventPublishError{Event: "MessageDeleted", MessageID: messageID, Err: err}
			return deleteErr
		}
		s.opts.safeEventPublishFailure("MessageDeleted", err)
	}

	return nil
}
