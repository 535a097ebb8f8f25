package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps entries in memory for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List returns a copy of every recorded entry in append order.
func (s *InMemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...), nil
}

// ListByRequest returns entries correlated to one request ID.
func (s *InMemoryStore) ListByRequest(_ context.Context, requestID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Entry
	for _, e := range s.entries {
		if e.RequestID == requestID {
			matched = append(matched, e)
		}
	}
	return matched, nil
}
