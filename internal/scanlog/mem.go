package scanlog

import (
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemStore)(nil)

// DefaultMemCapacity is the number of entries a [MemStore] keeps when no
// capacity is given.
const DefaultMemCapacity = 256

// MemStore keeps the most recent entries in memory. Older entries are
// evicted once the capacity is reached.
type MemStore struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewMemStore creates a MemStore holding up to capacity entries.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{cap: capacity}
}

// Record implements [Store].
func (s *MemStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.cap {
		s.entries = slices.Delete(s.entries, 0, 1)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
