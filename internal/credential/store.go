package credential

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists Credential records with optimistic versioning.
//
// Implementations return sentinel errors:
//   - sentinel.ErrNotFound when the credential does not exist
//   - sentinel.ErrConflict when Create hits a duplicate fingerprint or
//     Update sees a stale version token
type Store interface {
	Create(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, credentialID id.CredentialID) (*Credential, error)
	// Update commits the record if the stored version matches cred.Version
	// and increments the token.
	Update(ctx context.Context, cred *Credential) error
}

// EvidenceSink receives evidence events produced by verification ceremonies.
// The trust tier engine consumes them; an adapter wires the two packages
// without a direct dependency.
type EvidenceSink interface {
	CredentialVerified(ctx context.Context, identityID id.IdentityID, credentialID id.CredentialID, strength Strength) error
	FraudSignal(ctx context.Context, identityID id.IdentityID, credentialID id.CredentialID, reason string) error
}
