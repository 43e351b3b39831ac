// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corevane/messaging/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory maps.
// Thread-safe for concurrent use. Not suitable for production.
//
// A single mutex guards all three record maps so that the multi-entity
// operations (ApplyContentEdit, DeleteMessage, PurgeUserData) are atomic,
// mirroring what the SQL backends get from transactions.
type Store struct {
	mu            sync.RWMutex
	messages      map[string]*store.Message
	history       map[string][]store.AuditEntry // message ID -> entries, append order
	notifications map[string]*store.Notification
	lastCreated   time.Time
	connected     int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		messages:      make(map[string]*store.Message),
		history:       make(map[string][]store.AuditEntry),
		notifications: make(map[string]*store.Notification),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// now returns a strictly increasing UTC timestamp so that records created in
// quick succession still have a total creation order.
// Caller must hold s.mu.
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.lastCreated) {
		t = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = t
	return t
}

// =============================================================================
// Message Operations
// =============================================================================

// CreateMessage creates a new message.
func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.Content) == "" {
		return nil, store.ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data.ParentID != "" {
		if _, ok := s.messages[data.ParentID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	msg := &store.Message{
		ID:         uuid.New().String(),
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Content,
		CreatedAt:  s.now(),
		ParentID:   data.ParentID,
	}
	s.messages[msg.ID] = msg

	return cloneMessage(msg), nil
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneMessage(msg), nil
}

// MarkRead sets the read flag of a message.
func (s *Store) MarkRead(ctx context.Context, id string, read bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Read = read
	if read {
		now := time.Now().UTC()
		msg.ReadAt = &now
	} else {
		msg.ReadAt = nil
	}
	return nil
}

// ApplyContentEdit atomically captures the current content into an audit
// entry and overwrites it, conditioned on the stored content still matching
// edit.ExpectedContent.
func (s *Store) ApplyContentEdit(ctx context.Context, edit store.ContentEdit) (*store.Message, *store.AuditEntry, bool, error) {
	if err := s.checkConnected(); err != nil {
		return nil, nil, false, err
	}
	if edit.MessageID == "" {
		return nil, nil, false, store.ErrInvalidID
	}
	if strings.TrimSpace(edit.NewContent) == "" {
		return nil, nil, false, store.ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[edit.MessageID]
	if !ok {
		return nil, nil, false, store.ErrNotFound
	}

	// Conflict: the content moved since the caller read it.
	if msg.Content != edit.ExpectedContent {
		return cloneMessage(msg), nil, false, nil
	}

	entry := store.AuditEntry{
		ID:         uuid.New().String(),
		MessageID:  msg.ID,
		OldContent: msg.Content,
		EditedAt:   s.now(),
		EditorID:   edit.EditorID,
	}
	s.history[msg.ID] = append(s.history[msg.ID], entry)

	msg.Content = edit.NewContent
	msg.Edited = true
	msg.EditedBy = edit.EditorID

	return cloneMessage(msg), &entry, true, nil
}

// DeleteMessage removes a message, its audit entries, and its notification.
// Replies keep existing with their parent reference cleared.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}

	s.deleteMessageLocked(id)
	return nil
}

// deleteMessageLocked removes one message and its owned rows.
// Caller must hold s.mu.
func (s *Store) deleteMessageLocked(id string) {
	delete(s.messages, id)
	delete(s.history, id)
	for nid, n := range s.notifications {
		if n.MessageID == id {
			delete(s.notifications, nid)
		}
	}
	for _, m := range s.messages {
		if m.ParentID == id {
			m.ParentID = ""
		}
	}
}

// =============================================================================
// Audit Operations
// =============================================================================

// HistoryFor returns the audit entries for a message, oldest first.
func (s *Store) HistoryFor(ctx context.Context, messageID string, opts store.ListOptions) ([]store.AuditEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if messageID == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[messageID]
	start := opts.Offset
	if start > len(entries) {
		start = len(entries)
	}
	end := len(entries)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]store.AuditEntry, end-start)
	copy(out, entries[start:end])
	return out, nil
}

// CountAuditEntries returns the number of audit entries for a message.
func (s *Store) CountAuditEntries(ctx context.Context, messageID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.history[messageID])), nil
}

// =============================================================================
// Notification Operations
// =============================================================================

// CreateNotification creates a notification record.
func (s *Store) CreateNotification(ctx context.Context, data store.NotificationData) (*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if data.MessageID == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[data.MessageID]; !ok {
		return nil, store.ErrNotFound
	}

	n := &store.Notification{
		ID:          uuid.New().String(),
		RecipientID: data.RecipientID,
		MessageID:   data.MessageID,
		CreatedAt:   s.now(),
	}
	s.notifications[n.ID] = n

	out := *n
	return &out, nil
}

// NotificationsFor returns a user's notifications, newest first.
// StartAfter resumes past the cursor notification's sort position.
func (s *Store) NotificationsFor(ctx context.Context, recipientID string, opts store.ListOptions) ([]store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []store.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID {
			out = append(out, *n)
		}
	}
	var cursor *store.Notification
	if opts.StartAfter != "" {
		if c, ok := s.notifications[opts.StartAfter]; ok {
			tmp := *c
			cursor = &tmp
		}
	}
	s.mu.RUnlock()

	sortNotifications(out)

	start := 0
	if opts.StartAfter != "" {
		if cursor == nil {
			return nil, nil
		}
		for start < len(out) && notificationCompare(out[start], *cursor) <= 0 {
			start++
		}
	}
	start += opts.Offset
	if start > len(out) {
		start = len(out)
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

// AcknowledgeNotification marks a notification as acknowledged.
func (s *Store) AcknowledgeNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return store.ErrNotFound
	}
	n.Acknowledged = true
	return nil
}

// =============================================================================
// Purge Operations
// =============================================================================

// PurgeUserData removes all message-derived data attributable to a user.
// The whole purge runs under one lock acquisition, so concurrent readers see
// either all of the user's data or none of it.
func (s *Store) PurgeUserData(ctx context.Context, userID string) (store.PurgeResult, error) {
	var result store.PurgeResult
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	if userID == "" {
		return result, store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Messages sent or received by the user, cascading their owned rows.
	for id, m := range s.messages {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		result.AuditEntries += int64(len(s.history[id]))
		for nid, n := range s.notifications {
			if n.MessageID == id {
				delete(s.notifications, nid)
				result.Notifications++
			}
		}
		s.deleteMessageLocked(id)
		result.Messages++
	}

	// Remaining notifications addressed to the user.
	for nid, n := range s.notifications {
		if n.RecipientID == userID {
			delete(s.notifications, nid)
			result.Notifications++
		}
	}

	// Remaining audit entries recorded by the user as editor.
	for mid, entries := range s.history {
		kept := entries[:0]
		for _, e := range entries {
			if e.EditorID == userID {
				result.AuditEntries++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.history, mid)
		} else {
			s.history[mid] = kept
		}
	}

	return result, nil
}

func cloneMessage(m *store.Message) *store.Message {
	out := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	return &out
}
