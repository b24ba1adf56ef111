package ports

import (
	"context"
	"time"

	"github.com/layer-3/gatekeeper/core"
)

// RevocationStore records credential ids that must no longer be honoured
type RevocationStore interface {
	// Revoke stores a revocation record for tokenID that lives for ttl
	Revoke(ctx context.Context, tokenID string, rev core.Revocation, ttl time.Duration) error
	// Revocation returns the record for tokenID, or nil when it was never revoked
	Revocation(ctx context.Context, tokenID string) (*core.Revocation, error)
}

// IdentityLookup resolves subjects to identities.
// FindByID returns core.ErrIdentityNotFound for missing or disabled identities;
// any other error means the store could not answer.
type IdentityLookup interface {
	FindByID(ctx context.Context, id core.SubjectID) (*core.Identity, error)
}
