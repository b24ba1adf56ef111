package identity

import (
	"context"
	"sync"

	"github.com/layer-3/gatekeeper/core"
)

// MemoryStore is an in-memory identity lookup, used in tests and local runs
type MemoryStore struct {
	identities map[core.SubjectID]core.Identity
	mu         sync.RWMutex
}

// NewMemoryStore creates a store seeded with identities
func NewMemoryStore(identities ...core.Identity) *MemoryStore {
	s := &MemoryStore{
		identities: make(map[core.SubjectID]core.Identity, len(identities)),
	}
	for _, ident := range identities {
		s.identities[ident.ID] = ident
	}
	return s
}

// Put adds or replaces an identity
func (s *MemoryStore) Put(ident core.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[ident.ID] = ident
}

// Delete removes an identity
func (s *MemoryStore) Delete(id core.SubjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
}

// FindByID returns the identity or core.ErrIdentityNotFound
func (s *MemoryStore) FindByID(ctx context.Context, id core.SubjectID) (*core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[id]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return &ident, nil
}
