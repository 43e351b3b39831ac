package messaging

import (
	"context"
	"fmt"

	"github.com/corevane/messaging/store"
)

// Notifications returns a user's notifications, newest first.
func (s *service) Notifications(ctx context.Context, userID string, opts ListOptions) ([]store.Notification, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}
	if !isValidUserID(userID) {
		return nil, ErrInvalidUserID
	}

	opts.Limit = s.opts.capLimit(opts.Limit)
	notifications, err := s.store.NotificationsFor(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return notifications, nil
}

// Acknowledge marks a notification as seen.
func (s *service) Acknowledge(ctx context.Context, notificationID string) error {
	if err := s.checkAccess(); err != nil {
		return err
	}

	if err := s.store.AcknowledgeNotification(ctx, notificationID); err != nil {
		return fmt.Errorf("acknowledge notification: %w", err)
	}
	return nil
}
