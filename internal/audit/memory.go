package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}}
}

func (s *MemoryStore) Insert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		s.order = append(s.order, e.ID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *MemoryStore) Update(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return fmt.Errorf("audit entry %s not found", e.ID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok, nil
}

// List orders by timestamp, newest first; entries with equal timestamps
// come out in reverse insertion order.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	all := make([]Entry, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		all = append(all, s.entries[s.order[i]])
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	out := []Entry{}
	for _, e := range all {
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	return ComputeStats(all), nil
}
