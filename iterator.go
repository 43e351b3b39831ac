package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/corevane/messaging/store"
)

// ErrIteratorOutOfBounds is returned when Message() is called without a
// successful Next().
var ErrIteratorOutOfBounds = errors.New("messaging: iterator out of bounds - call Next() first")

// MessageIterator provides streaming access to messages.
// Use Next() to advance, Message() to get the current message.
//
// The iterator is lazy: nothing is fetched until the first Next() call, and
// each batch is fetched from live store state, so messages read or deleted
// between batches are reflected in later batches.
//
// Ownership: MessageIterator holds no resources requiring cleanup.
// There is no Close method. Simply stop calling Next() when done.
//
// Thread Safety: MessageIterator is NOT safe for concurrent use. Each
// iterator should be used by a single goroutine.
type MessageIterator interface {
	// Next advances to the next message.
	// Returns (true, nil) if there is a message available.
	// Returns (false, nil) if iteration is done.
	// Returns (false, error) if an error occurred (e.g. service
	// disconnected, context cancelled).
	// Must be called before accessing Message().
	Next(ctx context.Context) (bool, error)

	// Message returns the current message.
	// Must be called after a Next() call that returned (true, nil).
	// Returns ErrIteratorOutOfBounds otherwise.
	Message() (*store.Message, error)
}

// StreamOptions configures streaming behavior.
type StreamOptions struct {
	// BatchSize is the number of messages fetched per batch.
	// Larger batches reduce round-trips but use more memory.
	// Default: 100
	BatchSize int
}

// batchFetchFunc fetches the next batch of messages.
type batchFetchFunc func(ctx context.Context) ([]store.Message, error)

// batchIterator provides shared cursor-based batch fetching logic.
// Uses StartAfter for keyset pagination, avoiding the skipped-row and
// repeated-row issues of offset pagination when data changes between
// fetches.
type batchIterator struct {
	service   *service
	fetch     batchFetchFunc
	setCursor func(lastID string)
	batchSize int
	batch     []store.Message
	batchIdx  int
	done      bool
	fetched   bool
}

func (it *batchIterator) Next(ctx context.Context) (bool, error) {
	if it.done {
		return false, nil
	}

	// Verify service is still connected on each iteration
	if err := it.service.checkAccess(); err != nil {
		it.done = true
		return false, err
	}

	if it.batchIdx >= len(it.batch) {
		// A short batch means the previous fetch drained the results
		if it.fetched && len(it.batch) < it.batchSize {
			it.done = true
			return false, nil
		}

		messages, err := it.fetch(ctx)
		if err != nil {
			it.done = true
			return false, err
		}

		it.batch = messages
		it.batchIdx = 0
		it.fetched = true

		if len(it.batch) > 0 {
			it.setCursor(it.batch[len(it.batch)-1].ID)
		}

		if len(it.batch) == 0 {
			it.done = true
			return false, nil
		}
	}

	it.batchIdx++
	return true, nil
}

func (it *batchIterator) Message() (*store.Message, error) {
	if it.batchIdx <= 0 || it.batchIdx > len(it.batch) {
		return nil, ErrIteratorOutOfBounds
	}
	msg := it.batch[it.batchIdx-1]
	return &msg, nil
}

// unreadIterator implements MessageIterator over a user's unread messages.
type unreadIterator struct {
	batchIterator
	storeRef store.Store
	filters  []store.Filter
	opts     store.ListOptions
}

// unreadProjection limits unread batches to the fields list views need.
// Read state and edit metadata are omitted: everything in the result is
// unread by construction.
var unreadProjection = []string{"id", "sender_id", "receiver_id", "content", "created_at"}

func newUnreadIterator(s *service, userID string, streamOpts StreamOptions) *unreadIterator {
	batchSize := streamOpts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	it := &unreadIterator{
		storeRef: s.store,
		filters: []store.Filter{
			store.ReceiverIs(userID),
			store.IsReadFilter(false),
		},
		opts: store.ListOptions{
			Limit:     batchSize,
			SortBy:    "created_at",
			SortOrder: store.SortDesc,
			Fields:    unreadProjection,
		},
	}
	it.service = s
	it.batchSize = batchSize
	it.fetch = func(ctx context.Context) ([]store.Message, error) {
		list, err := it.storeRef.FindMessages(ctx, it.filters, it.opts)
		if err != nil {
			return nil, err
		}
		return list.Messages, nil
	}
	it.setCursor = func(lastID string) {
		it.opts.StartAfter = lastID
	}
	return it
}

// UnreadFor returns an iterator over the user's unread received messages,
// newest first. The iterator fetches lazily in batches; marking a message
// read while iterating removes it from batches not yet fetched.
func (s *service) UnreadFor(ctx context.Context, userID string, opts StreamOptions) (MessageIterator, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}
	if !isValidUserID(userID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return newUnreadIterator(s, userID, opts), nil
}
