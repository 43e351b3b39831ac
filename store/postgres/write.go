package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/corevane/messaging/store"
)

// foreignKeyViolation is the PostgreSQL error code for FK failures.
const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(data.Content) == "" {
		return nil, store.ErrEmptyContent
	}
	if data.ParentID != "" {
		if _, err := uuid.Parse(data.ParentID); err != nil {
			return nil, store.ErrInvalidID
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	id := uuid.New().String()
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, sender_id, receiver_id, content, parent_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6)
	`, s.opts.messagesTable)

	_, err := s.db.ExecContext(ctx, query,
		id, data.SenderID, data.ReceiverID, data.Content, data.ParentID, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			// Parent does not exist.
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &store.Message{
		ID:         id,
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Content,
		CreatedAt:  now,
		ParentID:   data.ParentID,
	}, nil
}

func (s *Store) MarkRead(ctx context.Context, id string, read bool) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var query string
	var args []any

	if read {
		query = fmt.Sprintf(`
			UPDATE %s SET read = true, read_at = $1
			WHERE id = $2
		`, s.opts.messagesTable)
		args = []any{time.Now().UTC(), id}
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET read = false, read_at = NULL
			WHERE id = $1
		`, s.opts.messagesTable)
		args = []any{id}
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// ApplyContentEdit performs the compare-and-swap edit in one transaction:
// the row is locked, the stored content checked against the expected
// content, the audit row inserted and the message overwritten together.
// A content mismatch returns the current row with applied=false and no
// error so the caller can re-read and retry.
func (s *Store) ApplyContentEdit(ctx context.Context, edit store.ContentEdit) (*store.Message, *store.AuditEntry, bool, error) {
	if err := s.checkConnected(); err != nil {
		return nil, nil, false, err
	}

	if _, err := uuid.Parse(edit.MessageID); err != nil {
		return nil, nil, false, store.ErrInvalidID
	}
	if strings.TrimSpace(edit.NewContent) == "" {
		return nil, nil, false, store.ErrEmptyContent
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lockQuery := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
		FOR UPDATE
	`, messageColumns, s.opts.messagesTable)

	var msg store.Message
	if err := tx.GetContext(ctx, &msg, lockQuery, edit.MessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, false, store.ErrNotFound
		}
		return nil, nil, false, fmt.Errorf("lock message: %w", err)
	}

	if msg.Content != edit.ExpectedContent {
		// Lost the race. Hand the current row back for a retry.
		return &msg, nil, false, nil
	}

	now := time.Now().UTC()
	entry := store.AuditEntry{
		ID:         uuid.New().String(),
		MessageID:  msg.ID,
		OldContent: msg.Content,
		EditedAt:   now,
		EditorID:   edit.EditorID,
	}

	auditQuery := fmt.Sprintf(`
		INSERT INTO %s (id, message_id, old_content, edited_at, editor_id)
		VALUES ($1, $2, $3, $4, $5)
	`, s.opts.auditTable)

	if _, err := tx.ExecContext(ctx, auditQuery,
		entry.ID, entry.MessageID, entry.OldContent, entry.EditedAt, entry.EditorID); err != nil {
		return nil, nil, false, fmt.Errorf("insert audit entry: %w", err)
	}

	updateQuery := fmt.Sprintf(`
		UPDATE %s SET content = $1, edited = true, edited_by = $2
		WHERE id = $3
	`, s.opts.messagesTable)

	if _, err := tx.ExecContext(ctx, updateQuery,
		edit.NewContent, edit.EditorID, msg.ID); err != nil {
		return nil, nil, false, fmt.Errorf("update message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, false, fmt.Errorf("%w: commit edit: %v", store.ErrTransactionFailed, err)
	}

	msg.Content = edit.NewContent
	msg.Edited = true
	msg.EditedBy = edit.EditorID
	return &msg, &entry, true, nil
}

// DeleteMessage removes a message. Its audit entries and notifications go
// with it via FK cascade; replies keep living with parent_id set to NULL.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.opts.messagesTable)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (s *Store) CreateNotification(ctx context.Context, data store.NotificationData) (*store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	if data.RecipientID == "" {
		return nil, store.ErrInvalidID
	}
	if _, err := uuid.Parse(data.MessageID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	id := uuid.New().String()
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, recipient_id, message_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, s.opts.notificationsTable)

	_, err := s.db.ExecContext(ctx, query, id, data.RecipientID, data.MessageID, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			// Message does not exist.
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	return &store.Notification{
		ID:          id,
		RecipientID: data.RecipientID,
		MessageID:   data.MessageID,
		CreatedAt:   now,
	}, nil
}

func (s *Store) AcknowledgeNotification(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE %s SET acknowledged = true WHERE id = $1
	`, s.opts.notificationsTable)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("acknowledge notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}

	return nil
}

// PurgeUserData deletes everything attributable to a user in a single
// transaction: their sent and received messages with every owned audit
// entry and notification, then notifications addressed to them, then
// audit entries they recorded on other users' messages.
func (s *Store) PurgeUserData(ctx context.Context, userID string) (store.PurgeResult, error) {
	var result store.PurgeResult
	if err := s.checkConnected(); err != nil {
		return result, err
	}
	if userID == "" {
		return result, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	userMessages := fmt.Sprintf(`SELECT id FROM %s WHERE sender_id = $1 OR receiver_id = $1`,
		s.opts.messagesTable)

	// Owned rows are deleted explicitly ahead of their messages so the
	// counts are exact rather than left to the FK cascade.
	auditDelete := fmt.Sprintf(`
		DELETE FROM %s WHERE editor_id = $1 OR message_id IN (%s)
	`, s.opts.auditTable, userMessages)
	res, err := tx.ExecContext(ctx, auditDelete, userID)
	if err != nil {
		return result, fmt.Errorf("purge audit entries: %w", err)
	}
	if result.AuditEntries, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("rows affected: %w", err)
	}

	notificationDelete := fmt.Sprintf(`
		DELETE FROM %s WHERE recipient_id = $1 OR message_id IN (%s)
	`, s.opts.notificationsTable, userMessages)
	res, err = tx.ExecContext(ctx, notificationDelete, userID)
	if err != nil {
		return result, fmt.Errorf("purge notifications: %w", err)
	}
	if result.Notifications, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("rows affected: %w", err)
	}

	messageDelete := fmt.Sprintf(`
		DELETE FROM %s WHERE sender_id = $1 OR receiver_id = $1
	`, s.opts.messagesTable)
	res, err = tx.ExecContext(ctx, messageDelete, userID)
	if err != nil {
		return result, fmt.Errorf("purge messages: %w", err)
	}
	if result.Messages, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.PurgeResult{}, fmt.Errorf("%w: commit purge: %v", store.ErrTransactionFailed, err)
	}

	return result, nil
}
