package store

import (
	"time"
)

// Message is a directed communication unit between two users.
//
// Content is mutated only through ApplyContentEdit, which snapshots the
// previous content into an AuditEntry in the same atomic operation. The
// Edited flag is true iff at least one AuditEntry exists for the message.
//
// ParentID is a non-owning structural reference: a message does not own its
// replies, and deleting a parent nullifies the ParentID of its replies
// rather than deleting them.
type Message struct {
	ID         string     `json:"id" db:"id"`
	SenderID   string     `json:"sender_id" db:"sender_id"`
	ReceiverID string     `json:"receiver_id" db:"receiver_id"`
	Content    string     `json:"content" db:"content"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	Edited     bool       `json:"edited" db:"edited"`
	Read       bool       `json:"read" db:"read"`
	ReadAt     *time.Time `json:"read_at,omitempty" db:"read_at"`
	// EditedBy is the user who performed the most recent edit.
	// Empty when the message was never edited or the editor was purged.
	EditedBy string `json:"edited_by,omitempty" db:"edited_by"`
	// ParentID links a reply to the message it answers. Empty for
	// top-level messages and for replies whose parent was deleted.
	ParentID string `json:"parent_id,omitempty" db:"parent_id"`
}

// IsReply reports whether the message currently links to a parent.
func (m *Message) IsReply() bool {
	return m.ParentID != ""
}

// AuditEntry is an immutable snapshot of a message's content taken
// immediately before an edit overwrote it. Entries are append-only and are
// never mutated after creation; exactly one entry exists per completed edit.
type AuditEntry struct {
	ID         string    `json:"id" db:"id"`
	MessageID  string    `json:"message_id" db:"message_id"`
	OldContent string    `json:"old_content" db:"old_content"`
	EditedAt   time.Time `json:"edited_at" db:"edited_at"`
	// EditorID is the user who performed the edit. Empty when the editor
	// was purged after the edit.
	EditorID string `json:"editor_id,omitempty" db:"editor_id"`
}

// Notification records, for its recipient, that a message exists and whether
// it has been acknowledged. Exactly one notification is created per message
// at creation time, addressed to the message's receiver; edits never create
// notifications.
type Notification struct {
	ID           string    `json:"id" db:"id"`
	RecipientID  string    `json:"recipient_id" db:"recipient_id"`
	MessageID    string    `json:"message_id" db:"message_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
}

// MessageData contains data for creating a new message.
type MessageData struct {
	SenderID   string
	ReceiverID string
	Content    string
	ParentID   string
}

// NotificationData contains data for creating a new notification.
type NotificationData struct {
	RecipientID string
	MessageID   string
}

// ContentEdit describes an atomic compare-and-set content overwrite.
//
// ExpectedContent is the content the caller last observed. The edit applies
// only if the stored content still equals it; otherwise the store reports a
// conflict and the caller re-reads and retries.
type ContentEdit struct {
	MessageID       string
	ExpectedContent string
	NewContent      string
	EditorID        string
}

// PurgeResult reports how many rows a PurgeUserData call removed.
type PurgeResult struct {
	Messages      int64
	Notifications int64
	AuditEntries  int64
}

// Empty reports whether the purge removed nothing.
func (r PurgeResult) Empty() bool {
	return r.Messages == 0 && r.Notifications == 0 && r.AuditEntries == 0
}

// MessageList represents one page of messages.
type MessageList struct {
	Messages   []Message
	Total      int64
	HasMore    bool
	NextCursor string
}
