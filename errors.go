package messaging

import (
	"errors"
	"fmt"

	"github.com/corevane/messaging/store"
)

// Sentinel errors for the messaging package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, messaging.ErrNotFound) will match both service-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message, notification, or audit
	// entry cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("messaging: %w", store.ErrNotFound)

	// ErrInvalidContent is returned when message content is empty or
	// whitespace-only, or exceeds the configured size limit.
	// Wraps store.ErrEmptyContent for consistent error checking.
	ErrInvalidContent = fmt.Errorf("messaging: %w", store.ErrEmptyContent)

	// ErrCorruptStructure is returned when thread assembly detects a
	// parent cycle in stored data. The detection is read-only; the
	// store is left untouched.
	ErrCorruptStructure = errors.New("messaging: corrupt thread structure")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("messaging: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("messaging: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("messaging: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("messaging: %w", store.ErrInvalidID)

	// ErrInvalidUserID is returned when a user ID is empty or contains
	// invalid characters.
	ErrInvalidUserID = errors.New("messaging: invalid user id")

	// ErrContentTooLarge is returned when message content exceeds the
	// configured maximum size.
	ErrContentTooLarge = errors.New("messaging: content too large")

	// ErrEditConflict is the retryable marker for a lost edit race: the
	// stored content changed between the read and the compare-and-swap.
	// The service retries internally; callers only see it wrapped in a
	// retry exhaustion error.
	ErrEditConflict = errors.New("messaging: concurrent edit conflict")

	// ErrFilterInvalid is returned when a filter or field projection is invalid.
	// Wraps store.ErrFilterInvalid for consistent error checking.
	ErrFilterInvalid = fmt.Errorf("messaging: %w", store.ErrFilterInvalid)
)

// EventPublishError is returned when event publishing fails but the operation
// succeeded. The message was sent/edited/deleted, but the event notification
// failed. Check the MessageID field to identify which message this applies to.
type EventPublishError struct {
	Event     string // The event name (e.g., "MessageSent", "MessageEdited")
	MessageID string // The message ID the event was for
	Err       error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("messaging: event %s publish failed for message %s: %v", e.Event, e.MessageID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and
// returns details. This is useful when eventErrorsFatal=true but you still
// want to know the operation succeeded.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}

// RollbackError is returned when an operation failed and the compensating
// delete of already-written state also failed, leaving an orphaned record.
type RollbackError struct {
	// MessageID identifies the orphaned message.
	MessageID string
	// Cause is the failure that triggered the rollback.
	Cause error
	// RollbackErr is the failure of the rollback itself.
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("messaging: operation failed and rollback failed (orphaned message %s): %v (rollback: %v)",
		e.MessageID, e.Cause, e.RollbackErr)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}
