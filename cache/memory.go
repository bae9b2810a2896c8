package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
//
// It does not share entries between server instances, so production
// deployments running more than one process should use a shared backend
// (see the redisstore and sqlstore packages). It is the store used in tests
// and single-instance development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	claims  map[string]time.Time
	clock   Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for expiry. Default: SystemClock.
func WithClock(c Clock) MemoryOption {
	return func(s *MemoryStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		claims:  make(map[string]time.Time),
		clock:   SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live entry for key. Expired entries are dropped lazily.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}

	if entry.Expired(s.clock.Now()) {
		s.mu.Lock()
		// Only drop the entry we saw; a concurrent Put may have replaced it.
		if current, ok := s.entries[key]; ok && current.CreatedAt.Equal(entry.CreatedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}

	return entry, true, nil
}

// Put stores a copy of value under key until now+ttl.
func (s *MemoryStore) Put(_ context.Context, name, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := s.clock.Now()
	entry := Entry{
		Name:      name,
		Key:       key,
		Value:     append([]byte(nil), value...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return nil
}

// Claim takes the lease for key unless another holder's lease is still live.
func (s *MemoryStore) Claim(_ context.Context, key string, lease time.Duration) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if until, held := s.claims[key]; held && now.Before(until) {
		return false, nil
	}
	s.claims[key] = now.Add(lease)
	return true, nil
}

// Release drops the lease for key.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.claims, key)
	s.mu.Unlock()
	return nil
}

// Prune removes expired entries and lapsed claims.
func (s *MemoryStore) Prune(_ context.Context) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	for key, until := range s.claims {
		if !now.Before(until) {
			delete(s.claims, key)
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Claimer = (*MemoryStore)(nil)
	_ Pruner  = (*MemoryStore)(nil)
)
