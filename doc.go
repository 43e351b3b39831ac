// Package messaging provides the consistency core of a direct-messaging
// backend for Go.
//
// It keeps four kinds of state in lockstep: the messages themselves,
// per-message edit history, per-recipient notifications, and each user's
// unread view. Every operation either completes with all of them consistent
// or fails without leaving partial state behind. All functionality is
// exposed via interfaces, with pluggable storage backends (PostgreSQL,
// in-memory).
//
// # Basic Usage
//
//	// Create in-memory store for testing
//	st := memory.New()
//
//	// Create messaging service
//	svc, err := messaging.NewService(
//	    messaging.WithStore(st),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect initializes schema and the event bus
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// Send a message
//	msg, err := svc.Send(ctx, messaging.SendRequest{
//	    SenderID:   "alice",
//	    ReceiverID: "bob",
//	    Content:    "hello",
//	})
//
// # Operations
//
//   - Send: store a message and exactly one notification for the receiver
//   - Edit: replace content with a pre-edit audit snapshot, atomically
//   - Delete/MarkRead/Get: message lifecycle and retrieval
//   - History: audit snapshots for a message, oldest first
//   - Notifications/Acknowledge: the receiver side of delivery
//   - UnreadFor: lazy batched iterator over a user's unread messages
//   - AssembleThread: reconstruct a reply tree, cycles rejected
//   - PurgeUser: remove every trace of a user in one transaction
//
// # Storage Backends
//
// The store package provides implementations for:
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB or *sql.DB
//   - In-memory (store/memory) - for testing
//
// # Events
//
// Messaging provides typed events for message lifecycle notifications.
// Events use the github.com/rbaliyan/event/v3 library which supports
// multiple transports (Redis Streams, NATS, Kafka, in-memory channel).
//
// To enable events, pass WithRedisClient or WithEventTransport when creating
// the service:
//
//	svc, err := messaging.NewService(
//	    messaging.WithStore(st),
//	    messaging.WithRedisClient(redisClient),
//	)
//
// Events are automatically registered during Connect(). Access per-service
// events via the Events() method:
//
//	events := svc.Events()
//	events.MessageSent.Subscribe(ctx, handler)
//	events.MessageEdited.Subscribe(ctx, handler)
//
// Available events:
//   - MessageSent - when a message and its notification are stored
//   - MessageEdited - when an edit commits with its audit entry
//   - MessageDeleted - when a message is removed
//   - UserPurged - when a user purge completes
package messaging
