package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/corevane/messaging/store"
)

// SendRequest contains the data needed to send a message.
type SendRequest struct {
	// SenderID identifies the sending user. Sending to yourself is allowed.
	SenderID string
	// ReceiverID identifies the receiving user.
	ReceiverID string
	// Content is the message text. Must be non-empty after trimming.
	Content string
	// ParentID optionally marks this message as a reply. The parent
	// must exist.
	ParentID string
}

// Send creates a message and dispatches exactly one notification to the
// receiver. The pair is atomic from the caller's perspective: if the
// notification cannot be created, the message is rolled back and the send
// fails as a whole.
func (s *service) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	if !isValidUserID(req.SenderID) || !isValidUserID(req.ReceiverID) {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrInvalidContent
	}
	if len(req.Content) > s.opts.maxContentSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrContentTooLarge, len(req.Content), s.opts.maxContentSize)
	}

	// Setup tracing
	ctx, endSpan := s.otel.startSpan(ctx, "messaging.send",
		attribute.String("sender_id", req.SenderID),
		attribute.String("receiver_id", req.ReceiverID),
		attribute.Bool("is_reply", req.ParentID != ""),
	)
	start := time.Now()
	var sendErr error
	defer func() {
		endSpan(sendErr)
		s.otel.recordSend(ctx, time.Since(start), sendErr)
	}()

	// Bound concurrent sends
	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		sendErr = err
		return nil, sendErr
	}
	defer s.sendSem.Release(1)

	msg, err := s.store.CreateMessage(ctx, store.MessageData{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ParentID:   req.ParentID,
	})
	if err != nil {
		sendErr = fmt.Errorf("create message: %w", err)
		return nil, sendErr
	}

	// Exactly one notification per new message. On dispatch failure the
	// message is rolled back so the caller never observes a message
	// without its notification.
	if _, err := s.dispatch(ctx, msg); err != nil {
		if deleteErr := s.store.DeleteMessage(ctx, msg.ID); deleteErr != nil {
			s.logger.Error("CRITICAL: failed to rollback message after notification dispatch failure - orphaned message",
				"error", deleteErr, "message_id", msg.ID)
			sendErr = &RollbackError{MessageID: msg.ID, Cause: err, RollbackErr: deleteErr}
			return nil, sendErr
		}
		sendErr = fmt.Errorf("dispatch notification: %w", err)
		return nil, sendErr
	}

	if err := s.events.MessageSent.Publish(ctx, MessageSentEvent{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		ParentID:   msg.ParentID,
		SentAt:     msg.CreatedAt,
	}); err != nil {
		if s.opts.eventErrorsFatal {
			// Message and notification exist - return them WITH the error
			sendErr = &EventPublishError{Event: "MessageSent", MessageID: msg.ID, Err: err}
			return msg, sendErr
		}
		s.opts.safeEventPublishFailure("MessageSent", err)
	}

	return msg, nil
}

// dispatch creates the receiver's notification for a new message.
// Called exactly once per send; there is no deduplication.
func (s *service) dispatch(ctx context.Context, msg *store.Message) (*store.Notification, error) {
	n, err := s.store.CreateNotification(ctx, store.NotificationData{
		RecipientID: msg.ReceiverID,
		MessageID:   msg.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}
