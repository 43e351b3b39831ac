package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/corevane/messaging/store"
)

// FindMessages retrieves messages matching the filters.
func (s *Store) FindMessages(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	for _, field := range opts.Fields {
		if _, ok := store.MessageFieldKey(field); !ok {
			return nil, fmt.Errorf("%w: unknown field: %s", store.ErrFilterInvalid, field)
		}
	}

	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	order := opts.SortOrder
	if order == 0 {
		order = store.SortDesc
	}

	// Clone inside the lock; sorting and projection run on private copies.
	// The cursor message is resolved from the unfiltered map: a record that
	// left the filtered set (marked read, say) still anchors the page
	// boundary by its sort position.
	s.mu.RLock()
	var all []*store.Message
	for _, m := range s.messages {
		if matchesFilters(m, filters) {
			all = append(all, cloneMessage(m))
		}
	}
	var cursor *store.Message
	if opts.StartAfter != "" {
		if c, ok := s.messages[opts.StartAfter]; ok {
			cursor = cloneMessage(c)
		}
	}
	s.mu.RUnlock()

	sortMessages(all, sortBy, order)

	total := int64(len(all))

	// Keyset pagination: resume past the cursor's sort position.
	start := 0
	if opts.StartAfter != "" {
		if cursor == nil {
			// Cursor record deleted. The page boundary is unknown, so
			// callers re-query without a cursor.
			return &store.MessageList{Total: total}, nil
		}
		for start < len(all) && keysetCompare(all[start], cursor, sortBy, order) <= 0 {
			start++
		}
	}
	start += opts.Offset
	if start > len(all) {
		start = len(all)
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(all) {
		end = len(all)
	}

	result := all[start:end]
	messages := make([]store.Message, len(result))
	for i, m := range result {
		messages[i] = projectMessage(m, opts.Fields)
	}

	list := &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  end < len(all),
	}
	if len(messages) > 0 {
		list.NextCursor = messages[len(messages)-1].ID
	}
	return list, nil
}

// CountMessages returns the count of messages matching the filters.
func (s *Store) CountMessages(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if err := validateFilters(filters); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.messages {
		if matchesFilters(m, filters) {
			count++
		}
	}
	return count, nil
}

// validateFilters rejects filters whose key is not a message field, the same
// way FindMessages rejects unknown projection fields.
func validateFilters(filters []store.Filter) error {
	for _, f := range filters {
		if _, ok := store.MessageFieldKey(f.Key()); !ok {
			return fmt.Errorf("%w: unknown filter field: %s", store.ErrFilterInvalid, f.Key())
		}
	}
	return nil
}

// keysetCompare orders two messages the way sortMessages lays them out, with
// the id as tiebreak so a cursor resolves to a single position. Negative
// means a pages before b.
func keysetCompare(a, b *store.Message, sortBy string, order store.SortOrder) int {
	var c int
	switch sortBy {
	case "sender_id":
		c = strings.Compare(a.SenderID, b.SenderID)
	case "receiver_id":
		c = strings.Compare(a.ReceiverID, b.ReceiverID)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if order == store.SortDesc {
		c = -c
	}
	return c
}

func matchesFilters(m *store.Message, filters []store.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(m, f) {
			return false
		}
	}
	return true
}

func matchesFilter(m *store.Message, f store.Filter) bool {
	var fieldValue any
	switch f.Key() {
	case "id":
		fieldValue = m.ID
	case "sender_id":
		fieldValue = m.SenderID
	case "receiver_id":
		fieldValue = m.ReceiverID
	case "content":
		fieldValue = m.Content
	case "created_at":
		fieldValue = m.CreatedAt
	case "edited":
		fieldValue = m.Edited
	case "read":
		fieldValue = m.Read
	case "edited_by":
		fieldValue = m.EditedBy
	case "parent_id":
		fieldValue = m.ParentID
	default:
		// Unreachable for validated filters.
		return false
	}

	value := f.Value()
	switch f.Operator() {
	case "eq", "=", "":
		return fieldValue == value
	case "ne", "!=":
		return fieldValue != value
	case "lt", "<":
		return compareValues(fieldValue, value) < 0
	case "lte", "<=":
		return compareValues(fieldValue, value) <= 0
	case "gt", ">":
		return compareValues(fieldValue, value) > 0
	case "gte", ">=":
		return compareValues(fieldValue, value) >= 0
	case "exists":
		exists, _ := value.(bool)
		isEmpty := fieldValue == "" || fieldValue == nil
		return exists != isEmpty
	case "in":
		return valueInSet(fieldValue, value)
	default:
		return false
	}
}

// valueInSet checks if a scalar value is in a set (slice) of values.
func valueInSet(fieldValue any, set any) bool {
	switch s := set.(type) {
	case []string:
		fv, ok := fieldValue.(string)
		if !ok {
			return false
		}
		for _, v := range s {
			if v == fv {
				return true
			}
		}
	case []any:
		for _, v := range s {
			if v == fieldValue {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}

func sortMessages(msgs []*store.Message, sortBy string, order store.SortOrder) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if order == 0 {
		order = store.SortDesc
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "sender_id":
			less = msgs[i].SenderID < msgs[j].SenderID
		case "receiver_id":
			less = msgs[i].ReceiverID < msgs[j].ReceiverID
		default: // created_at
			less = msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		if order == store.SortDesc {
			return !less
		}
		return less
	})
}

func sortNotifications(ns []store.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		return notificationCompare(ns[i], ns[j]) < 0
	})
}

// notificationCompare orders notifications newest first with the id as
// tiebreak, matching the SQL backend's ORDER BY created_at DESC, id DESC.
func notificationCompare(a, b store.Notification) int {
	if a.CreatedAt.After(b.CreatedAt) {
		return -1
	}
	if b.CreatedAt.After(a.CreatedAt) {
		return 1
	}
	return strings.Compare(b.ID, a.ID)
}

// projectMessage copies a message, keeping only the requested fields.
// ID is always populated so that cursors keep working on sparse results.
func projectMessage(m *store.Message, fields []string) store.Message {
	if len(fields) == 0 {
		return *cloneMessage(m)
	}

	out := store.Message{ID: m.ID}
	for _, field := range fields {
		key, ok := store.MessageFieldKey(field)
		if !ok {
			continue
		}
		switch key {
		case "sender_id":
			out.SenderID = m.SenderID
		case "receiver_id":
			out.ReceiverID = m.ReceiverID
		case "content":
			out.Content = m.Content
		case "created_at":
			out.CreatedAt = m.CreatedAt
		case "edited":
			out.Edited = m.Edited
		case "read":
			out.Read = m.Read
		case "edited_by":
			out.EditedBy = m.EditedBy
		case "parent_id":
			out.ParentID = m.ParentID
		}
	}
	return out
}
