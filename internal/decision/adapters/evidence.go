// Package adapters wires the credential verifier and rate limiter into the
// trust evidence log without those packages importing each other.
package adapters

import (
	"context"
	"time"

	"quorum/internal/credential"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
)

// criticalReasons are the fraud signals that freeze an identity rather than
// just downgrading it.
var criticalReasons = map[string]bool{
	"duplicate_registration_fraud": true,
	"takeover_confirmed":           true,
}

// EvidenceRelay turns verifier and rate-limiter signals into trust evidence.
// It implements both credential.EvidenceSink and ratelimit.AbuseSink.
type EvidenceRelay struct {
	tiers *trust.Service
	clock func() time.Time
}

type RelayOption func(*EvidenceRelay)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) RelayOption {
	return func(r *EvidenceRelay) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewEvidenceRelay(tiers *trust.Service, opts ...RelayOption) *EvidenceRelay {
	r := &EvidenceRelay{
		tiers: tiers,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *EvidenceRelay) CredentialVerified(ctx context.Context, identityID id.IdentityID, credentialID id.CredentialID, strength credential.Strength) error {
	ev, err := trust.NewCredentialEvidence(identityID, credentialID, string(strength), r.clock().UTC())
	if err != nil {
		return err
	}
	_, err = r.tiers.AppendEvidence(ctx, identityID, ev)
	return err
}

func (r *EvidenceRelay) FraudSignal(ctx context.Context, identityID id.IdentityID, credentialID id.CredentialID, reason string) error {
	severity := trust.SeverityStandard
	if criticalReasons[reason] {
		severity = trust.SeverityCritical
	}
	ev, err := trust.NewFraudEvidence(identityID, credentialID, severity, reason, r.clock().UTC())
	if err != nil {
		return err
	}
	_, err = r.tiers.AppendEvidence(ctx, identityID, ev)
	return err
}

func (r *EvidenceRelay) AbuseSignal(ctx context.Context, identityID id.IdentityID, reason string) error {
	return r.FraudSignal(ctx, identityID, id.CredentialID{}, reason)
}
