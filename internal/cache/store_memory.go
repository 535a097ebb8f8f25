package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vcgate/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in a mutex-guarded map. Expired entries are
// lazily evicted on read; an optional sweeper bounds memory for fingerprints
// that are never read again. Behavior is identical with or without the
// sweeper running.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry

	// now is swappable for TTL boundary tests.
	now func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Get(_ context.Context, fingerprint string) (Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, sentinel.ErrNotFound
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock: a fresh Put may have replaced the
		// expired entry between the two lock acquisitions.
		if current, ok := s.entries[fingerprint]; ok && current.Expired(s.now()) {
			delete(s.entries, fingerprint)
		}
		s.mu.Unlock()
		return Entry{}, sentinel.ErrNotFound
	}
	return entry, nil
}

func (s *InMemoryStore) Put(_ context.Context, fingerprint string, result json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Result:      result,
		StoredAt:    s.now(),
		TTL:         ttl,
	}
	return nil
}

// Sweep evicts every expired entry. Exposed so both the background sweeper
// and tests can trigger it directly.
func (s *InMemoryStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, fp)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *InMemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Len reports the current entry count, expired included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
