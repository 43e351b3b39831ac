package messaging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/corevane/messaging/store"
)

// ThreadNode is one message in a materialized reply tree.
type ThreadNode struct {
	// Message is the node's message.
	Message store.Message
	// Replies are the direct replies, ordered by creation time ascending.
	Replies []*ThreadNode
}

// Depth returns the number of levels in the subtree rooted at this node.
// A node with no replies has depth 1.
func (n *ThreadNode) Depth() int {
	depth := 0
	for _, r := range n.Replies {
		if d := r.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

// Size returns the total number of messages in the subtree rooted at this
// node, including the node itself.
func (n *ThreadNode) Size() int {
	size := 1
	for _, r := range n.Replies {
		size += r.Size()
	}
	return size
}

// Walk visits the subtree rooted at this node depth-first, parents before
// replies. Returning false from fn stops the walk.
func (n *ThreadNode) Walk(fn func(*ThreadNode) bool) bool {
	if !fn(n) {
		return false
	}
	for _, r := range n.Replies {
		if !r.Walk(fn) {
			return false
		}
	}
	return true
}

// AssembleThread materializes the full reply tree rooted at the given
// message. The tree is loaded generation by generation: one store round-trip
// fetches all replies to the current frontier, regardless of how many
// messages that generation holds, so the number of queries equals the tree
// depth rather than the tree size.
//
// A visited-ID set guards against parent cycles in stored data; a repeated
// ID aborts the assembly with ErrCorruptStructure before any infinite loop.
// The check is read-only and leaves the store untouched.
func (s *service) AssembleThread(ctx context.Context, rootID string) (*ThreadNode, error) {
	if err := s.checkAccess(); err != nil {
		return nil, err
	}

	ctx, endSpan := s.otel.startSpan(ctx, "messaging.thread",
		attribute.String("root_id", rootID),
	)
	start := time.Now()
	var threadErr error
	var size int
	defer func() {
		endSpan(threadErr)
		s.otel.recordThread(ctx, time.Since(start), size, threadErr)
	}()

	rootMsg, err := s.store.GetMessage(ctx, rootID)
	if err != nil {
		threadErr = fmt.Errorf("get thread root: %w", err)
		return nil, threadErr
	}

	root := &ThreadNode{Message: *rootMsg}
	nodes := map[string]*ThreadNode{root.Message.ID: root}
	visited := map[string]bool{root.Message.ID: true}
	frontier := []string{root.Message.ID}

	for len(frontier) > 0 {
		generation, err := s.fetchReplies(ctx, frontier)
		if err != nil {
			threadErr = err
			return nil, threadErr
		}

		next := make([]string, 0, len(generation))
		for _, msg := range generation {
			if visited[msg.ID] {
				threadErr = fmt.Errorf("%w: message %s revisited while assembling thread %s",
					ErrCorruptStructure, msg.ID, rootID)
				return nil, threadErr
			}
			visited[msg.ID] = true

			node := &ThreadNode{Message: msg}
			nodes[msg.ID] = node
			// The parent is always present: this generation was fetched
			// by the parents' IDs.
			parent := nodes[msg.ParentID]
			parent.Replies = append(parent.Replies, node)
			next = append(next, msg.ID)
		}
		frontier = next
	}

	// Replies arrive grouped per generation, not per parent. Order each
	// sibling list by creation time.
	for _, node := range nodes {
		sort.SliceStable(node.Replies, func(i, j int) bool {
			return node.Replies[i].Message.CreatedAt.Before(node.Replies[j].Message.CreatedAt)
		})
	}

	size = root.Size()
	return root, nil
}

// fetchReplies loads every direct reply to the given parent IDs in pages.
func (s *service) fetchReplies(ctx context.Context, parentIDs []string) ([]store.Message, error) {
	filters := []store.Filter{store.ParentIn(parentIDs...)}
	opts := store.ListOptions{
		Limit:     s.opts.maxQueryLimit,
		SortBy:    "created_at",
		SortOrder: store.SortAsc,
	}

	var out []store.Message
	for {
		list, err := s.store.FindMessages(ctx, filters, opts)
		if err != nil {
			return nil, fmt.Errorf("fetch replies: %w", err)
		}
		out = append(out, list.Messages...)
		if !list.HasMore || list.NextCursor == "" {
			return out, nil
		}
		opts.StartAfter = list.NextCursor
	}
}
