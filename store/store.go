// Package store provides interfaces and types for messaging storage.
// Implementations are in the store/memory and store/postgres subpackages.
//
// # Architectural Principle: No Distributed Locks
//
// This package avoids distributed locks entirely. All concurrency concerns
// are handled through database-level atomicity:
//
//  1. Atomic Operations: multi-row mutations (ApplyContentEdit,
//     PurgeUserData) execute inside a single storage transaction. Either
//     every row changes or none does.
//
//  2. Optimistic Concurrency: content edits are a compare-and-set on the
//     stored content. The store rejects an edit whose expected content is
//     stale; the caller re-reads and retries. Two racing edits therefore
//     always produce two audit entries, each recording the content it
//     actually replaced, never a lost update.
//
//  3. Cascades stay in the store: deleting a message removes its audit
//     entries and notification in the same operation, and nullifies the
//     parent reference of surviving replies. No caller ever observes a
//     half-cascaded state.
//
// This design gives simpler architecture (no external lock service), ACID
// reliability, and automatic deadlock prevention.
package store

import (
	"context"
)

// Store is the storage interface for the messaging core.
//
// All operations must be safe for concurrent use. Implementations must use
// database-level atomicity (transactions, atomic operations) rather than
// external locking mechanisms. See package documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Message operations
	MessageStore

	// Audit trail operations - immutable pre-edit content snapshots
	AuditStore

	// Notification operations - one record per delivered message
	NotificationStore

	// Purge operations - transactional removal of a user's derived data
	PurgeStore
}

// MessageReader provides read operations for messages.
type MessageReader interface {
	// GetMessage retrieves a message by ID.
	// Returns ErrNotFound if the message doesn't exist.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// FindMessages retrieves messages matching the filters.
	FindMessages(ctx context.Context, filters []Filter, opts ListOptions) (*MessageList, error)

	// CountMessages returns the count of messages matching the filters.
	CountMessages(ctx context.Context, filters []Filter) (int64, error)
}

// MessageWriter provides mutation operations for messages.
// Mutations are specific operations, not general setters.
type MessageWriter interface {
	// CreateMessage creates a new message from the given data.
	// The store assigns the ID and creation timestamp.
	CreateMessage(ctx context.Context, data MessageData) (*Message, error)

	// MarkRead sets the read flag of a message.
	// Returns ErrNotFound if the message doesn't exist.
	MarkRead(ctx context.Context, id string, read bool) error

	// ApplyContentEdit atomically snapshots the current content into a new
	// audit entry, sets the edited flag and last editor, and overwrites the
	// content, all in one transaction, conditioned on the stored content
	// still matching edit.ExpectedContent.
	//
	// Returns:
	//   - (updated, entry, true, nil): the edit applied
	//   - (current, nil, false, nil): conflict - the stored content no
	//     longer matches; callers should re-read current and retry
	//   - (nil, nil, false, error): the message is missing or storage failed
	ApplyContentEdit(ctx context.Context, edit ContentEdit) (*Message, *AuditEntry, bool, error)

	// DeleteMessage permanently removes a message together with its audit
	// entries and notification, and nullifies the parent reference of any
	// replies. Returns ErrNotFound if the message doesn't exist.
	DeleteMessage(ctx context.Context, id string) error
}

// MessageStore provides operations for messages.
//
// Concurrency: all operations are safe for concurrent use and rely on
// database-level atomicity. No external locking is required or desired.
type MessageStore interface {
	MessageReader
	MessageWriter
}

// AuditStore provides read access to the append-only audit trail.
// Entries are created only through ApplyContentEdit.
type AuditStore interface {
	// HistoryFor returns the audit entries for a message, oldest first.
	// An empty slice (not ErrNotFound) is returned for a message with no
	// edit history.
	HistoryFor(ctx context.Context, messageID string, opts ListOptions) ([]AuditEntry, error)

	// CountAuditEntries returns the number of audit entries for a message.
	CountAuditEntries(ctx context.Context, messageID string) (int64, error)
}

// NotificationStore provides operations for notifications.
type NotificationStore interface {
	// CreateNotification creates a notification record.
	// The store assigns the ID and creation timestamp.
	CreateNotification(ctx context.Context, data NotificationData) (*Notification, error)

	// NotificationsFor returns a user's notifications, newest first.
	// Supports Limit, Offset, and StartAfter; a StartAfter cursor resumes
	// past the named notification's position in creation order.
	NotificationsFor(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error)

	// AcknowledgeNotification marks a notification as acknowledged.
	// Returns ErrNotFound if the notification doesn't exist.
	AcknowledgeNotification(ctx context.Context, id string) error
}

// PurgeStore provides the transactional user-data purge.
type PurgeStore interface {
	// PurgeUserData removes, in one transaction: every message the user
	// sent or received (cascading their audit entries and notifications),
	// every remaining notification addressed to the user, and every
	// remaining audit entry recorded by the user as editor.
	//
	// The operation is all-or-nothing: on error nothing is deleted. A user
	// with no associated data is a valid no-op and returns a zero result.
	PurgeUserData(ctx context.Context, userID string) (PurgeResult, error)
}
