package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"golang.org/x/sync/semaphore"

	"github.com/corevane/messaging/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the messaging package without importing
// store directly.
type (
	ListOptions = store.ListOptions
	SortOrder   = store.SortOrder
)

// Re-exported sort order constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc
)

// ServiceHealth provides health and state information about the service.
type ServiceHealth interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool
}

// MessageWriter provides the message lifecycle mutations.
type MessageWriter interface {
	// Send creates a message and its recipient notification as a pair.
	Send(ctx context.Context, req SendRequest) (*store.Message, error)
	// Edit overwrites a message's content, snapshotting the previous
	// content to the audit trail first. Editing to identical content is
	// an idempotent no-op.
	Edit(ctx context.Context, messageID, newContent, editorID string) (*store.Message, error)
	// Delete removes a message with its audit entries and notification.
	// Replies survive with their parent reference cleared.
	Delete(ctx context.Context, messageID string) error
	// MarkRead flips a message's read flag.
	MarkRead(ctx context.Context, messageID string, read bool) error
}

// MessageReader provides single message retrieval.
type MessageReader interface {
	Get(ctx context.Context, messageID string) (*store.Message, error)
}

// AuditTrail provides access to the immutable pre-edit content snapshots.
type AuditTrail interface {
	// History returns a message's audit entries, oldest first.
	History(ctx context.Context, messageID string, opts ListOptions) ([]store.AuditEntry, error)
}

// NotificationReader provides access to per-user notifications.
type NotificationReader interface {
	// Notifications returns a user's notifications, newest first.
	Notifications(ctx context.Context, userID string, opts ListOptions) ([]store.Notification, error)
	// Acknowledge marks a notification as seen.
	Acknowledge(ctx context.Context, notificationID string) error
}

// UnreadIndex provides the lazy per-user view of unread messages.
type UnreadIndex interface {
	// UnreadFor returns an iterator over the user's unread received
	// messages. The iterator is lazy and restartable: each batch fetch
	// reflects live store state, and a fresh call starts over.
	UnreadFor(ctx context.Context, userID string, opts StreamOptions) (MessageIterator, error)
}

// ThreadAssembler reconstructs reply trees.
type ThreadAssembler interface {
	// AssembleThread materializes the full reply tree rooted at the
	// given message, children ordered oldest first.
	AssembleThread(ctx context.Context, rootID string) (*ThreadNode, error)
}

// CascadeCleaner removes all traces of a user.
type CascadeCleaner interface {
	// PurgeUser deletes the user's messages with their audit entries and
	// notifications, notifications addressed to the user, and audit
	// entries the user recorded on other users' messages. The whole
	// purge is one store transaction. Absent data is a valid no-op.
	PurgeUser(ctx context.Context, userID string) (*store.PurgeResult, error)
}

// Service manages the message exchange backend.
//
// Composed of:
//   - ServiceHealth: Health and state queries (IsConnected)
//   - MessageWriter / MessageReader: message lifecycle and reads
//   - AuditTrail: pre-edit content history
//   - NotificationReader: per-user notification access
//   - UnreadIndex: lazy unread message view
//   - ThreadAssembler: reply tree reconstruction
//   - CascadeCleaner: whole-user data removal
type Service interface {
	ServiceHealth
	MessageWriter
	MessageReader
	AuditTrail
	NotificationReader
	UnreadIndex
	ThreadAssembler
	CascadeCleaner

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close closes all connections after draining in-flight sends.
	Close(ctx context.Context) error
	// Events returns per-service event instances for subscribing and
	// publishing. Each service has its own events bound to its own event
	// bus, enabling independent event routing and parallel testing.
	Events() *ServiceEvents
}

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store    store.Store
	logger   *slog.Logger
	opts     *options
	state    int32 // stateDisconnected, stateConnecting, or stateConnected
	otel     *otelInstrumentation
	sendSem  *semaphore.Weighted // Limits concurrent sends to prevent resource exhaustion
	eventBus *event.Bus          // Event bus for publishing events
	events   *ServiceEvents      // Per-service event instances
}

// NewService creates a new messaging service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	return &service{
		store:   o.store,
		logger:  o.logger,
		opts:    o,
		otel:    otelInstr,
		sendSem: semaphore.NewWeighted(int64(o.maxConcurrentSends)),
	}, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// checkAccess verifies the service is ready for operations.
func (s *service) checkAccess() error {
	if atomic.LoadInt32(&s.state) != stateConnected {
		return ErrNotConnected
	}
	return nil
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// Use three-state to prevent operations from seeing partial
	// initialization: stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	// Reset to disconnected on failure, set to connected on success
	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("messaging service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus initializes the event bus for this service.
// Each service creates its own bus with its own event instances.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "messaging"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}

	return nil
}

// Close closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// Wait for in-flight send operations to complete (graceful shutdown).
	// After setting state to disconnected, no new sends can start because
	// checkAccess fails. We acquire all semaphore slots to wait for existing
	// operations to finish.
	s.logger.Info("waiting for in-flight operations to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.sendSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentSends)); err != nil {
		s.logger.Warn("timeout waiting for in-flight operations, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.sendSem.Release(int64(s.opts.maxConcurrentSends))
		s.logger.Info("all in-flight operations completed")
	}

	// Close event bus only if using a real transport.
	// For noop transport, the bus doesn't hold resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// isValidUserID checks if a user ID is valid.
// Valid user IDs are non-empty and contain only safe characters.
func isValidUserID(userID string) bool {
	if userID == "" {
		return false
	}
	// Allow alphanumeric, hyphen, underscore, period, at-sign
	// Disallow: *, :, /, \, spaces, and control characters
	for _, c := range userID {
		if c == '*' || c == ':' || c == '/' || c == '\\' ||
			c == ' ' || c == '\t' || c == '\n' || c == '\r' ||
			c < 32 || c == 127 {
			return false
		}
	}
	return true
}
