package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event name suffixes. Each service instance prefixes these with a unique
// bus-scoped name so that multiple services in one process do not collide.
const (
	eventMessageSent    = "message.sent"
	eventMessageEdited  = "message.edited"
	eventMessageDeleted = "message.deleted"
	eventUserPurged     = "user.purged"
)

// MessageSentEvent is published after a message and its notification are
// durably stored.
type MessageSentEvent struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageEditedEvent is published after an edit is committed together with
// its audit entry.
type MessageEditedEvent struct {
	MessageID  string    `json:"message_id"`
	EditorID   string    `json:"editor_id"`
	OldContent string    `json:"old_content"`
	EditedAt   time.Time `json:"edited_at"`
}

// MessageDeletedEvent is published after a message is removed.
type MessageDeletedEvent struct {
	MessageID string    `json:"message_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// UserPurgedEvent is published after all data belonging to a user has been
// removed in a single purge.
type UserPurgedEvent struct {
	UserID        string    `json:"user_id"`
	Messages      int64     `json:"messages"`
	Notifications int64     `json:"notifications"`
	AuditEntries  int64     `json:"audit_entries"`
	PurgedAt      time.Time `json:"purged_at"`
}

// ServiceEvents holds the typed events a service publishes. Subscribe before
// Connect to observe every event the service emits.
type ServiceEvents struct {
	// MessageSent is published after a send completes.
	MessageSent event.Event[MessageSentEvent]

	// MessageEdited is published after an edit commits.
	MessageEdited event.Event[MessageEditedEvent]

	// MessageDeleted is published after a message is removed.
	MessageDeleted event.Event[MessageDeletedEvent]

	// UserPurged is published after a user purge completes.
	UserPurged event.Event[UserPurgedEvent]
}

func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageSent:    event.New[MessageSentEvent](namePrefix + "." + eventMessageSent),
		MessageEdited:  event.New[MessageEditedEvent](namePrefix + "." + eventMessageEdited),
		MessageDeleted: event.New[MessageDeletedEvent](namePrefix + "." + eventMessageDeleted),
		UserPurged:     event.New[UserPurgedEvent](namePrefix + "." + eventUserPurged),
	}
}

func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageEdited); err != nil {
		return fmt.Errorf("register MessageEdited: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageDeleted); err != nil {
		return fmt.Errorf("register MessageDeleted: %w", err)
	}
	if err := event.Register(ctx, bus, events.UserPurged); err != nil {
		return fmt.Errorf("register UserPurged: %w", err)
	}
	return nil
}
