package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/corevane/messaging/store"
)

// messageColumns is the canonical SELECT column list for scanning messages.
// parent_id is stored as a nullable UUID; NULL scans as the empty string.
const messageColumns = `id, sender_id, receiver_id, content, created_at, edited, read, read_at,
       edited_by, COALESCE(parent_id::text, '') AS parent_id`

func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, messageColumns, s.opts.messagesTable)

	var msg store.Message
	if err := s.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	return &msg, nil
}

func (s *Store) FindMessages(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	columns, err := s.selectColumns(opts.Fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	// Apply defaults
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.SortBy == "" {
		opts.SortBy = "created_at"
		opts.SortOrder = store.SortDesc
	}

	// Build WHERE clause
	where, args, err := s.buildWhereClause(filters)
	if err != nil {
		return nil, err
	}

	// Count total
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.messagesTable, where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	// Build ORDER BY
	sortOrder := "DESC"
	if opts.SortOrder == store.SortAsc {
		sortOrder = "ASC"
	}
	sortField := s.mapSortField(opts.SortBy)

	// Cursor-based pagination: use keyset filtering when StartAfter is provided
	if opts.StartAfter != "" {
		if _, err := uuid.Parse(opts.StartAfter); err != nil {
			return nil, store.ErrInvalidID
		}
		comp := "<"
		if opts.SortOrder == store.SortAsc {
			comp = ">"
		}
		where = where + fmt.Sprintf(` AND (%s, id) %s (SELECT %s, id FROM %s WHERE id = $%d)`,
			sortField, comp, sortField, s.opts.messagesTable, len(args)+1)
		args = append(args, opts.StartAfter)
	}

	// Query messages
	var query string
	if opts.StartAfter != "" {
		// Cursor-based: no OFFSET needed
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s
			ORDER BY %s %s
			LIMIT $%d
		`, columns, s.opts.messagesTable, where, sortField, sortOrder, len(args)+1)
		args = append(args, opts.Limit+1)
	} else {
		// Offset-based
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s
			ORDER BY %s %s
			LIMIT $%d OFFSET $%d
		`, columns, s.opts.messagesTable, where, sortField, sortOrder, len(args)+1, len(args)+2)
		args = append(args, opts.Limit+1, opts.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.StructScan(&msg); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(messages) > opts.Limit
	if hasMore {
		messages = messages[:opts.Limit]
	}

	var nextCursor string
	if len(messages) > 0 {
		nextCursor = messages[len(messages)-1].ID
	}

	return &store.MessageList{
		Messages:   messages,
		Total:      total,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, nil
}

func (s *Store) CountMessages(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args, err := s.buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.messagesTable, where)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	return count, nil
}

// HistoryFor returns the audit entries for a message, oldest first.
func (s *Store) HistoryFor(ctx context.Context, messageID string, opts store.ListOptions) ([]store.AuditEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(messageID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, message_id, old_content, edited_at, editor_id
		FROM %s
		WHERE message_id = $1
		ORDER BY edited_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, s.opts.auditTable)

	var entries []store.AuditEntry
	if err := s.db.SelectContext(ctx, &entries, query, messageID, limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	return entries, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, messageID string) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	if _, err := uuid.Parse(messageID); err != nil {
		return 0, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE message_id = $1`, s.opts.auditTable)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, messageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}

	return count, nil
}

// NotificationsFor returns a recipient's notifications, newest first.
func (s *Store) NotificationsFor(ctx context.Context, recipientID string, opts store.ListOptions) ([]store.Notification, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	if recipientID == "" {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	where := "recipient_id = $1"
	args := []any{recipientID}
	if opts.StartAfter != "" {
		if _, err := uuid.Parse(opts.StartAfter); err != nil {
			return nil, store.ErrInvalidID
		}
		where += fmt.Sprintf(` AND (created_at, id) < (SELECT created_at, id FROM %s WHERE id = $2)`,
			s.opts.notificationsTable)
		args = append(args, opts.StartAfter)
	}

	query := fmt.Sprintf(`
		SELECT id, recipient_id, message_id, created_at, acknowledged
		FROM %s
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, s.opts.notificationsTable, where, len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	var notifications []store.Notification
	if err := s.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}

	return notifications, nil
}

// selectColumns resolves a sparse field projection to a SQL column list.
// The id column is always included so cursors keep working.
func (s *Store) selectColumns(fields []string) (string, error) {
	if len(fields) == 0 {
		return messageColumns, nil
	}

	columns := []string{"id"}
	for _, field := range fields {
		key, ok := store.MessageFieldKey(field)
		if !ok {
			return "", fmt.Errorf("%w: unknown field: %s", store.ErrFilterInvalid, field)
		}
		if key == "id" {
			continue
		}
		if key == "parent_id" {
			columns = append(columns, `COALESCE(parent_id::text, '') AS parent_id`)
			continue
		}
		columns = append(columns, key)
	}
	return strings.Join(columns, ", "), nil
}

func (s *Store) buildWhereClause(filters []store.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "1=1", nil, nil
	}

	var conditions []string
	var args []any
	argIdx := 1

	for _, f := range filters {
		cond, arg, err := s.filterToCondition(f, &argIdx)
		if err != nil {
			return "", nil, err
		}
		if cond != "" {
			conditions = append(conditions, cond)
			if arg != nil {
				args = append(args, arg)
			}
		}
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}

	return strings.Join(conditions, " AND "), args, nil
}

func (s *Store) filterToCondition(f store.Filter, argIdx *int) (string, any, error) {
	key, ok := store.MessageFieldKey(f.Key())
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown filter field: %s", store.ErrFilterInvalid, f.Key())
	}
	op := f.Operator()
	val := f.Value()

	// UUID columns compare as text so that string parameters and arrays
	// bind without explicit casts on the caller side.
	col := key
	if key == "id" || key == "parent_id" {
		col = key + "::text"
	}

	switch op {
	case "eq", "":
		// Empty-string equality on parent_id means "no parent" (NULL).
		if key == "parent_id" && val == "" {
			return "parent_id IS NULL", nil, nil
		}
		cond := fmt.Sprintf("%s = $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "ne":
		if key == "parent_id" && val == "" {
			return "parent_id IS NOT NULL", nil, nil
		}
		cond := fmt.Sprintf("%s != $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "gt":
		cond := fmt.Sprintf("%s > $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "gte":
		cond := fmt.Sprintf("%s >= $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "lt":
		cond := fmt.Sprintf("%s < $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "lte":
		cond := fmt.Sprintf("%s <= $%d", col, *argIdx)
		*argIdx++
		return cond, val, nil
	case "in":
		cond := fmt.Sprintf("%s = ANY($%d)", col, *argIdx)
		*argIdx++
		return cond, pq.Array(toStringSlice(val)), nil
	case "exists":
		if key == "parent_id" {
			if val == true {
				return "parent_id IS NOT NULL", nil, nil
			}
			return "parent_id IS NULL", nil, nil
		}
		if val == true {
			return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", key, key), nil, nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s = '')", key, key), nil, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported operator: %s", store.ErrFilterInvalid, op)
	}
}

// toStringSlice normalizes "in" filter values to a []string for pq.Array.
func toStringSlice(val any) []string {
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (s *Store) mapSortField(field string) string {
	switch field {
	case "SenderID", "sender_id":
		return "sender_id"
	case "ReceiverID", "receiver_id":
		return "receiver_id"
	default:
		return "created_at"
	}
}
