package store

import (
	"fmt"
)

// SortOrder represents the sort direction.
type SortOrder int

const (
	// SortAsc sorts in ascending order.
	SortAsc SortOrder = 1
	// SortDesc sorts in descending order.
	SortDesc SortOrder = -1
)

// ListOptions configures message listing.
type ListOptions struct {
	Limit      int
	Offset     int
	SortBy     string
	SortOrder  SortOrder
	// StartAfter is a keyset pagination cursor: results resume past the
	// named record's sort position, even when that record no longer
	// matches the query's filters.
	StartAfter string
	// Fields restricts the columns populated on returned messages.
	// Empty means all fields. Unknown field names are rejected with
	// ErrFilterInvalid by implementations.
	Fields []string
}

// Filter represents a query filter with a field key, comparison operator, and value.
type Filter struct {
	key      string
	value    any
	operator string
}

// Key returns the storage field key.
func (f Filter) Key() string { return f.key }

// Value returns the filter value.
func (f Filter) Value() any { return f.value }

// Operator returns the comparison operator (eq, ne, gt, gte, lt, lte, in, exists).
func (f Filter) Operator() string { return f.operator }

// FilterBuilder builds filters for a specific message field.
// Use MessageFilter() to create one, then chain a comparison method:
//
//	filter, err := store.MessageFilter("CreatedAt").GreaterThan(cutoff)
type FilterBuilder struct {
	key string
	err error
}

// validOperators is the set of supported filter operators.
var validOperators = map[string]bool{
	"eq":     true,
	"ne":     true,
	"gt":     true,
	"gte":    true,
	"lt":     true,
	"lte":    true,
	"in":     true,
	"exists": true,
}

// NewFilter creates a filter with the given key, operator, and value.
// The key must be a valid message field (validated via MessageFieldKey).
// Returns ErrFilterInvalid if the key or operator is invalid.
func NewFilter(key, operator string, value any) (Filter, error) {
	storageKey, ok := MessageFieldKey(key)
	if !ok {
		return Filter{}, fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, key)
	}
	if !validOperators[operator] {
		return Filter{}, fmt.Errorf("%w: unsupported operator: %s", ErrFilterInvalid, operator)
	}
	return Filter{key: storageKey, value: value, operator: operator}, nil
}

// FilterError represents an error in filter building.
type FilterError struct {
	Key string
	Err error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Key, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

func (b *FilterBuilder) build(op string, v any) (Filter, error) {
	if b.err != nil {
		return Filter{}, &FilterError{Key: b.key, Err: b.err}
	}
	return Filter{key: b.key, value: v, operator: op}, nil
}

func (b *FilterBuilder) Equal(v any) (Filter, error)            { return b.build("eq", v) }
func (b *FilterBuilder) NotEqual(v any) (Filter, error)         { return b.build("ne", v) }
func (b *FilterBuilder) GreaterThan(v any) (Filter, error)      { return b.build("gt", v) }
func (b *FilterBuilder) GreaterThanEqual(v any) (Filter, error) { return b.build("gte", v) }
func (b *FilterBuilder) LessThan(v any) (Filter, error)         { return b.build("lt", v) }
func (b *FilterBuilder) LessThanEqual(v any) (Filter, error)    { return b.build("lte", v) }
func (b *FilterBuilder) In(v ...any) (Filter, error)            { return b.build("in", v) }
func (b *FilterBuilder) Exists(v bool) (Filter, error)          { return b.build("exists", v) }

// MessageFilter returns a filter builder for message fields.
func MessageFilter(field string) *FilterBuilder {
	key, ok := MessageFieldKey(field)
	if !ok {
		return &FilterBuilder{key: field, err: fmt.Errorf("unsupported field: %s", field)}
	}
	return &FilterBuilder{key: key}
}

// MessageFieldKey maps field names to storage keys.
func MessageFieldKey(field string) (string, bool) {
	switch field {
	case "ID", "id":
		return "id", true
	case "SenderID", "sender_id":
		return "sender_id", true
	case "ReceiverID", "receiver_id":
		return "receiver_id", true
	case "Content", "content":
		return "content", true
	case "CreatedAt", "created_at":
		return "created_at", true
	case "Edited", "edited":
		return "edited", true
	case "Read", "read":
		return "read", true
	case "EditedBy", "edited_by":
		return "edited_by", true
	case "ParentID", "parent_id":
		return "parent_id", true
	default:
		return "", false
	}
}

// Convenience filter functions

// SenderIs returns a filter for messages from a specific sender.
func SenderIs(senderID string) Filter {
	f, _ := MessageFilter("SenderID").Equal(senderID)
	return f
}

// ReceiverIs returns a filter for messages addressed to a specific receiver.
func ReceiverIs(receiverID string) Filter {
	f, _ := MessageFilter("ReceiverID").Equal(receiverID)
	return f
}

// IsReadFilter returns a filter for read/unread messages.
func IsReadFilter(read bool) Filter {
	f, _ := MessageFilter("Read").Equal(read)
	return f
}

// EditedIs returns a filter for edited/unedited messages.
func EditedIs(edited bool) Filter {
	f, _ := MessageFilter("Edited").Equal(edited)
	return f
}

// ParentIs returns a filter for direct replies to a specific message.
func ParentIs(messageID string) Filter {
	f, _ := MessageFilter("ParentID").Equal(messageID)
	return f
}

// ParentIn returns a filter for replies to any of the given messages.
// This is the bulk per-generation fetch used by thread assembly.
func ParentIn(messageIDs ...string) Filter {
	vals := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		vals[i] = id
	}
	f, _ := MessageFilter("ParentID").In(vals...)
	return f
}

// HasParent returns a filter for messages that are replies.
func HasParent() Filter {
	f, _ := MessageFilter("ParentID").Exists(true)
	return f
}
