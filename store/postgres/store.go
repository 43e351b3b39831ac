// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/corevane/messaging/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL",
		"messages", s.opts.messagesTable,
		"audit", s.opts.auditTable,
		"notifications", s.opts.notificationsTable)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return nil
	}
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	// Messages. A deleted parent nullifies parent_id on its replies so
	// they survive as top-level messages.
	createMessages := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sender_id VARCHAR(255) NOT NULL,
			receiver_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			edited_by VARCHAR(255) NOT NULL DEFAULT '',
			parent_id UUID REFERENCES %s(id) ON DELETE SET NULL
		)
	`, s.opts.messagesTable, s.opts.messagesTable)

	if _, err := s.db.ExecContext(ctx, createMessages); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	// Audit entries are owned by their message and go with it.
	createAudit := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			message_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			old_content TEXT NOT NULL,
			edited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			editor_id VARCHAR(255) NOT NULL DEFAULT ''
		)
	`, s.opts.auditTable, s.opts.messagesTable)

	if _, err := s.db.ExecContext(ctx, createAudit); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}

	createNotifications := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			recipient_id VARCHAR(255) NOT NULL,
			message_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE
		)
	`, s.opts.notificationsTable, s.opts.messagesTable)

	if _, err := s.db.ExecContext(ctx, createNotifications); err != nil {
		return fmt.Errorf("create notifications table: %w", err)
	}

	m := s.opts.messagesTable
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sender ON %s(sender_id)`, m, m),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_receiver ON %s(receiver_id)`, m, m),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at DESC)`, m, m),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_parent ON %s(parent_id) WHERE parent_id IS NOT NULL`, m, m),
		// Compound index for the unread view
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_receiver_unread ON %s(receiver_id, created_at DESC) WHERE read = false`, m, m),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_message ON %s(message_id)`, s.opts.auditTable, s.opts.auditTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_editor ON %s(editor_id)`, s.opts.auditTable, s.opts.auditTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s(recipient_id, created_at DESC)`, s.opts.notificationsTable, s.opts.notificationsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_message ON %s(message_id)`, s.opts.notificationsTable, s.opts.notificationsTable),
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}
