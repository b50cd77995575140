// Package trust classifies an identity into a verification tier derived
// purely from its accumulated evidence log. Tier is never written directly:
// every change, including administrative overrides, flows through evidence
// plus recomputation so the record stays auditable.
package trust

import (
	"time"

	"github.com/google/uuid"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// Tier is the discrete trust classification of an identity.
type Tier string

const (
	// TierT0 Anonymous: no verified evidence.
	TierT0 Tier = "T0"
	// TierT1 Contact-Verified: a confirmed out-of-band channel.
	TierT1 Tier = "T1"
	// TierT2 Credential-Bound: T1 plus a valid, clone-free credential.
	TierT2 Tier = "T2"
	// TierT3 Strongly-Verified: T2 plus credential age and a clean trailing
	// fraud window.
	TierT3 Tier = "T3"
)

var tierLevels = map[Tier]int{
	TierT0: 0,
	TierT1: 1,
	TierT2: 2,
	TierT3: 3,
}

// tierWeights gate throughput and data-release policy per tier.
var tierWeights = map[Tier]float64{
	TierT0: 1.0,
	TierT1: 2.0,
	TierT2: 5.0,
	TierT3: 10.0,
}

// Level returns the ordinal of the tier for comparisons. Unknown tiers map
// to -1 and never satisfy a minimum.
func (t Tier) Level() int {
	if lvl, ok := tierLevels[t]; ok {
		return lvl
	}
	return -1
}

// Weight returns the scoring weight of the tier.
func (t Tier) Weight() float64 {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return 0
}

func (t Tier) IsValid() bool {
	_, ok := tierLevels[t]
	return ok
}

// AtLeast reports whether t satisfies the given minimum tier.
func (t Tier) AtLeast(minimum Tier) bool {
	return t.Level() >= minimum.Level()
}

// EvidenceType classifies an entry in the evidence log.
type EvidenceType string

const (
	// EvidenceContactVerified records a confirmed out-of-band contact
	// channel (required for T1).
	EvidenceContactVerified EvidenceType = "contact_verified"
	// EvidenceCredentialVerified records a successful credential ceremony
	// (required for T2, aged for T3).
	EvidenceCredentialVerified EvidenceType = "credential_verified"
	// EvidenceFraudSignal records clone detection, credential revocation,
	// abuse signals, or confirmed abuse reports. Downgrades immediately.
	EvidenceFraudSignal EvidenceType = "fraud_signal"
	// EvidenceOverride records a manual administrative action. Overrides
	// are evidence, not direct tier writes.
	EvidenceOverride EvidenceType = "override"
)

// FraudSeverity grades fraud signals. Critical signals (duplicate
// registration fraud, confirmed account takeover) freeze the identity.
type FraudSeverity string

const (
	SeverityStandard FraudSeverity = "standard"
	SeverityCritical FraudSeverity = "critical"
)

// Evidence is one append-only entry in an identity's evidence log.
type Evidence struct {
	ID         uuid.UUID
	IdentityID id.IdentityID
	Type       EvidenceType
	// CredentialID ties credential-verified and credential-scoped fraud
	// evidence to the credential involved.
	CredentialID id.CredentialID
	// Strength carries the verifier's grading of credential evidence.
	Strength string
	Severity FraudSeverity
	Reason   string
	// Override fields. TargetTier caps the derived tier; nil lifts any
	// previous cap. Unfreeze clears a frozen state.
	TargetTier    *Tier
	Unfreeze      bool
	ActorID       string
	Justification string
	OccurredAt    time.Time
}

// Record is the trust state of one identity.
//
// Invariant: Tier is a pure function of the still-valid evidence below it.
// Version is the optimistic concurrency token; commits with a stale token
// are rejected and recomputed from the latest state.
type Record struct {
	IdentityID     id.IdentityID
	Tier           Tier
	Score          float64
	Evidence       []Evidence
	Frozen         bool
	LastTransition time.Time
	Version        int64
}

// NewRecord returns the implicit starting state for an identity that has
// produced no evidence yet.
func NewRecord(identityID id.IdentityID, now time.Time) *Record {
	return &Record{
		IdentityID:     identityID,
		Tier:           TierT0,
		Score:          TierT0.Weight(),
		LastTransition: now,
		Version:        1,
	}
}

// NewContactEvidence records a confirmed out-of-band contact channel.
func NewContactEvidence(identityID id.IdentityID, reason string, now time.Time) (Evidence, error) {
	if identityID.IsNil() {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "identity_id is required")
	}
	return Evidence{
		ID:         uuid.New(),
		IdentityID: identityID,
		Type:       EvidenceContactVerified,
		Reason:     reason,
		OccurredAt: now,
	}, nil
}

// NewCredentialEvidence records a successful verification ceremony.
func NewCredentialEvidence(identityID id.IdentityID, credentialID id.CredentialID, strength string, now time.Time) (Evidence, error) {
	if identityID.IsNil() {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "identity_id is required")
	}
	if credentialID.IsNil() {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "credential_id is required")
	}
	return Evidence{
		ID:           uuid.New(),
		IdentityID:   identityID,
		Type:         EvidenceCredentialVerified,
		CredentialID: credentialID,
		Strength:     strength,
		OccurredAt:   now,
	}, nil
}

// NewFraudEvidence records a fraud signal. A critical severity freezes the
// identity until an unfreeze override lands later in the log.
func NewFraudEvidence(identityID id.IdentityID, credentialID id.CredentialID, severity FraudSeverity, reason string, now time.Time) (Evidence, error) {
	if identityID.IsNil() {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "identity_id is required")
	}
	if severity != SeverityStandard && severity != SeverityCritical {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "invalid fraud severity")
	}
	return Evidence{
		ID:           uuid.New(),
		IdentityID:   identityID,
		Type:         EvidenceFraudSignal,
		CredentialID: credentialID,
		Severity:     severity,
		Reason:       reason,
		OccurredAt:   now,
	}, nil
}

// OverrideRequest is the administrative input for ApplyOverride.
type OverrideRequest struct {
	// TargetTier, when set, caps the derived tier (manual demotion).
	TargetTier *Tier
	// Unfreeze clears a frozen identity.
	Unfreeze      bool
	ActorID       string
	Justification string
}

// NewOverrideEvidence records a manual override as evidence.
func NewOverrideEvidence(identityID id.IdentityID, req OverrideRequest, now time.Time) (Evidence, error) {
	if identityID.IsNil() {
		return Evidence{}, dErrors.New(dErrors.CodeInvariantViolation, "identity_id is required")
	}
	if req.Justification == "" {
		return Evidence{}, dErrors.New(dErrors.CodeInvalidInput, "override justification is required")
	}
	if req.TargetTier != nil && !req.TargetTier.IsValid() {
		return Evidence{}, dErrors.New(dErrors.CodeInvalidInput, "invalid target tier")
	}
	return Evidence{
		ID:            uuid.New(),
		IdentityID:    identityID,
		Type:          EvidenceOverride,
		TargetTier:    req.TargetTier,
		Unfreeze:      req.Unfreeze,
		ActorID:       req.ActorID,
		Justification: req.Justification,
		OccurredAt:    now,
	}, nil
}
