package trust

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists trust records with optimistic versioning. This is the only
// persistence path for tier state; no other component writes Records.
//
// Implementations return sentinel errors:
//   - sentinel.ErrNotFound when no record exists for the identity
//   - sentinel.ErrConflict when Create races another creation or Update
//     sees a stale version token
type Store interface {
	Get(ctx context.Context, identityID id.IdentityID) (*Record, error)
	Create(ctx context.Context, record *Record) error
	// Update commits the record if the stored version matches
	// record.Version and increments the token.
	Update(ctx context.Context, record *Record) error
}
