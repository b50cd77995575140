// Package credential verifies public-key assertion ceremonies and detects
// credential cloning through the signature counter. It owns the Credential
// record; every successful verification emits evidence toward the trust tier
// engine through the EvidenceSink port.
package credential

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// Strength grades how much a successful verification is worth as evidence.
// Device-attested credentials prove possession of hardware-bound keys and
// count as strong evidence for tier derivation.
type Strength string

const (
	StrengthBasic  Strength = "basic"
	StrengthStrong Strength = "strong"
)

// Credential is a public key bound to exactly one identity.
//
// Invariant: SignCount strictly increases across successful verifications.
// A non-increasing counter is a cloning signal and permanently invalidates
// the credential.
type Credential struct {
	ID            id.CredentialID
	IdentityID    id.IdentityID
	PublicKey     ed25519.PublicKey
	Fingerprint   string
	SignCount     uint32
	Attested      bool
	Invalidated   bool
	InvalidatedAt *time.Time
	CreatedAt     time.Time
	// Version is the optimistic concurrency token checked by Update.
	Version int64
}

// Assertion is a challenge/response presented for verification.
type Assertion struct {
	CredentialID id.CredentialID
	Challenge    []byte
	Signature    []byte
	SignCount    uint32
}

// Verification is the successful outcome of a ceremony.
type Verification struct {
	CredentialID id.CredentialID
	IdentityID   id.IdentityID
	Strength     Strength
	SignCount    uint32
	VerifiedAt   time.Time
}

// NewCredential creates a Credential with domain invariant validation. The
// caller supplies now so credential age stays on the injected clock.
func NewCredential(identityID id.IdentityID, publicKey []byte, attested bool, initialCounter uint32, now time.Time) (*Credential, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity_id is required")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "public key must be %d bytes", ed25519.PublicKeySize)
	}

	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, publicKey)

	return &Credential{
		ID:          id.NewCredentialID(),
		IdentityID:  identityID,
		PublicKey:   key,
		Fingerprint: Fingerprint(key),
		SignCount:   initialCounter,
		Attested:    attested,
		CreatedAt:   now.UTC(),
		Version:     1,
	}, nil
}

// EvidenceStrength grades the evidence this credential produces on a
// successful verification.
func (c *Credential) EvidenceStrength() Strength {
	if c.Attested {
		return StrengthStrong
	}
	return StrengthBasic
}

// Fingerprint derives the stable identifier used to detect duplicate key
// registrations across identities.
func Fingerprint(publicKey ed25519.PublicKey) string {
	sum := blake2b.Sum256(publicKey)
	return hex.EncodeToString(sum[:])
}
