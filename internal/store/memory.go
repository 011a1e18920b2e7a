package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps items in process. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*Item
	byConv map[string][]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:  make(map[int64]*Item),
		byConv: make(map[string][]int64),
	}
}

// Add appends a new unchecked item.
func (s *MemoryStore) Add(_ context.Context, conv, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.items[id] = &Item{ID: id, ConversationID: conv, Text: text}
	s.byConv[conv] = append(s.byConv[conv], id)
	return id, nil
}

// Enumerate returns live items of conv with the given checked flag in insertion order.
func (s *MemoryStore) Enumerate(_ context.Context, conv string, checked bool) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, id := range s.byConv[conv] {
		if it := s.items[id]; it != nil && it.Checked == checked {
			out = append(out, Entry{ID: it.ID, Text: it.Text})
		}
	}
	return out, nil
}

// List is the text projection of Enumerate.
func (s *MemoryStore) List(ctx context.Context, conv string, checked bool) ([]string, error) {
	return listVia(ctx, s, conv, checked)
}

// Check marks the item checked.
func (s *MemoryStore) Check(ctx context.Context, conv string, id int64) (bool, *Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		logStale(ctx, "check", conv, id)
		return true, nil, nil
	}
	if it.ConversationID != conv {
		logNotOwned(ctx, "check", conv, id, it.ConversationID)
		return false, nil, nil
	}
	it.Checked = true
	cp := *it
	return true, &cp, nil
}

// Swap exchanges the texts of a and b.
func (s *MemoryStore) Swap(ctx context.Context, conv string, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	first, err := s.owned(ctx, conv, a)
	if err != nil {
		return err
	}
	second, err := s.owned(ctx, conv, b)
	if err != nil {
		return err
	}
	first.Text, second.Text = second.Text, first.Text
	return nil
}

func (s *MemoryStore) owned(ctx context.Context, conv string, id int64) (*Item, error) {
	it, ok := s.items[id]
	if !ok {
		logStale(ctx, "swap", conv, id)
		return nil, ErrNotFound
	}
	if it.ConversationID != conv {
		logNotOwned(ctx, "swap", conv, id, it.ConversationID)
		return nil, ErrNotOwned
	}
	return it, nil
}

// RemoveChecked deletes every checked item of conv.
func (s *MemoryStore) RemoveChecked(_ context.Context, conv string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byConv[conv]
	kept := ids[:0]
	removed := 0
	for _, id := range ids {
		if it := s.items[id]; it != nil && it.Checked {
			delete(s.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		delete(s.byConv, conv)
	} else {
		s.byConv[conv] = kept
	}
	return removed, nil
}

// Dump returns a copy of all items ordered by id.
func (s *MemoryStore) Dump(_ context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
