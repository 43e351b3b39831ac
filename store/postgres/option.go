package postgres

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMessagesTable      = "messages"
	DefaultAuditTable         = "message_audit"
	DefaultNotificationsTable = "notifications"
	DefaultTimeout            = 10 * time.Second
)

// options holds PostgreSQL store configuration.
type options struct {
	messagesTable      string
	auditTable         string
	notificationsTable string
	timeout            time.Duration
	logger             *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		messagesTable:      DefaultMessagesTable,
		auditTable:         DefaultAuditTable,
		notificationsTable: DefaultNotificationsTable,
		timeout:            DefaultTimeout,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a PostgreSQL store.
type Option func(*options)

// WithMessagesTable sets the messages table name.
func WithMessagesTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.messagesTable = name
		}
	}
}

// WithAuditTable sets the audit trail table name.
func WithAuditTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.auditTable = name
		}
	}
}

// WithNotificationsTable sets the notifications table name.
func WithNotificationsTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.notificationsTable = name
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
