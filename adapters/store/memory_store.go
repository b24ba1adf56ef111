package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/gatekeeper/core"
)

type memoryEntry struct {
	rev       core.Revocation
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the RevocationStore interface.
// Records are only visible to the process that wrote them.
type MemoryStore struct {
	revoked map[string]memoryEntry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory store that expires records using now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		revoked: make(map[string]memoryEntry),
		now:     now,
	}
}

// Revoke records a revocation until ttl elapses
func (s *MemoryStore) Revoke(ctx context.Context, tokenID string, rev core.Revocation, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	s.revoked[tokenID] = memoryEntry{rev: rev, expiresAt: now.Add(ttl)}

	return nil
}

// Revocation returns the record for a token if it has not expired
func (s *MemoryStore) Revocation(ctx context.Context, tokenID string) (*core.Revocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.revoked[tokenID]
	if !exists || !s.now().Before(entry.expiresAt) {
		return nil, nil
	}

	rev := entry.rev
	return &rev, nil
}

// sweep drops expired records; callers hold the write lock
func (s *MemoryStore) sweep(now time.Time) {
	for id, entry := range s.revoked {
		if !now.Before(entry.expiresAt) {
			delete(s.revoked, id)
		}
	}
}
