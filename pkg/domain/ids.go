// Package domain holds typed identifiers shared across the trust core.
// Each ID is a distinct UUID-backed type so the compiler rejects mixing an
// identity with a credential or a protected resource.
package domain

import (
	"github.com/google/uuid"

	dErrors "quorum/pkg/domain-errors"
)

// IdentityID identifies a platform identity. Identities are never deleted,
// only deactivated, so an IdentityID stays valid forever.
type IdentityID uuid.UUID

// CredentialID identifies a public-key credential bound to one identity.
type CredentialID uuid.UUID

// ResourceID identifies a protected resource (e.g. a poll) whose aggregate
// disclosure is bounded by a privacy budget.
type ResourceID uuid.UUID

// NewIdentityID returns a fresh random IdentityID.
func NewIdentityID() IdentityID { return IdentityID(uuid.New()) }

// NewCredentialID returns a fresh random CredentialID.
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }

// NewResourceID returns a fresh random ResourceID.
func NewResourceID() ResourceID { return ResourceID(uuid.New()) }

func (id IdentityID) String() string   { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }
func (id ResourceID) String() string   { return uuid.UUID(id).String() }

func (id IdentityID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ResourceID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// ParseIdentityID parses and validates an identity ID string.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s, "identity_id")
	return IdentityID(u), err
}

// ParseCredentialID parses and validates a credential ID string.
func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential_id")
	return CredentialID(u), err
}

// ParseResourceID parses and validates a resource ID string.
func ParseResourceID(s string) (ResourceID, error) {
	u, err := parseUUID(s, "resource_id")
	return ResourceID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", field)
	}
	return u, nil
}
