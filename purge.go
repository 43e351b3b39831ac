package messaging

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/corevane/messaging/store"
)

// PurgeUser removes every trace of a user in a single store transaction:
// messages they sent or received, notifications addressed to them or
// attached to their messages, and audit entries they authored or that
// belong to their messages. Either everything is removed or nothing is.
//
// Purging a user whose messages have replies from other users leaves those
// replies in place with their parent reference cleared.
//
// The returned counts report exactly how many rows of each kind were
// removed. Purging a user with no data succeeds with zero counts.
func (s *service) PurgeUser(ctx context.Context, userID string) (*store.PurgeResult, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}
	if !isValidUserID(userID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}

	ctx, endSpan := s.otel.startSpan(ctx, "messaging.purge",
		attribute.String("user_id", userID),
	)
	start := time.Now()
	var purgeErr error
	defer func() {
		endSpan(purgeErr)
		s.otel.recordPurge(ctx, time.Since(start), purgeErr)
	}()

	res, err := s.store.PurgeUserData(ctx, userID)
	if err != nil {
		purgeErr = fmt.Errorf("purge user %s: %w", userID, err)
		return nil, purgeErr
	}
	result := &res

	s.logger.Info("purged user data",
		"user_id", userID,
		"messages", result.Messages,
		"notifications", result.Notifications,
		"audit_entries", result.AuditEntries,
	)

	if err := s.events.UserPurged.Publish(ctx, UserPurgedEvent{
		UserID:        userID,
		Messages:      result.Messages,
		Notifications: result.Notifications,
		AuditEntries:  result.AuditEntries,
		PurgedAt:      time.Now().UTC(),
	}); err != nil {
		if s.opts.eventErrorsFatal {
			return result, &EventPublishError{
				Event: "UserPurged",
				Err:   err,
			}
		}
		s.opts.safeEventPublishFailure("UserPurged", err)
	}

	return result, nil
}
