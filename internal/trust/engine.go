package trust

import "time"

// EngineConfig tunes tier derivation. The exact evidence thresholds are
// policy, not code: they are validated configuration with defaults.
type EngineConfig struct {
	// CredentialMinAge is how long a credential must have been bound before
	// it can support T3.
	CredentialMinAge time.Duration
	// FraudWindow is the trailing window that must be free of fraud signals
	// for T3.
	FraudWindow time.Duration
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CredentialMinAge: 30 * 24 * time.Hour,
		FraudWindow:      90 * 24 * time.Hour,
	}
}

// Derivation is the pure output of evaluating an evidence log.
type Derivation struct {
	Tier   Tier
	Frozen bool
	Score  float64
}

// Derive computes the maximal tier satisfied by the still-valid evidence.
// This is pure domain logic - no I/O, no side effects. Transitions are
// evaluated, not commanded: the log is the single source of truth.
//
// Log order is authoritative for freeze/unfreeze and override resolution;
// timestamps only drive the age and trailing-window checks.
func Derive(evidence []Evidence, now time.Time, cfg EngineConfig) Derivation {
	var (
		hasContact      bool
		frozen          bool
		activeCap       *Tier
		lastFraudAt     time.Time
		invalidCreds    = map[string]bool{}
		firstVerifiedAt = map[string]time.Time{}
	)

	for _, ev := range evidence {
		switch ev.Type {
		case EvidenceContactVerified:
			hasContact = true

		case EvidenceCredentialVerified:
			key := ev.CredentialID.String()
			if _, seen := firstVerifiedAt[key]; !seen {
				firstVerifiedAt[key] = ev.OccurredAt
			}

		case EvidenceFraudSignal:
			if ev.OccurredAt.After(lastFraudAt) {
				lastFraudAt = ev.OccurredAt
			}
			if !ev.CredentialID.IsNil() {
				invalidCreds[ev.CredentialID.String()] = true
			}
			if ev.Severity == SeverityCritical {
				frozen = true
			}

		case EvidenceOverride:
			if ev.Unfreeze {
				frozen = false
			}
			// The latest override wins: a nil target lifts any earlier cap.
			activeCap = ev.TargetTier
		}
	}

	var oldestValidCred time.Time
	hasValidCred := false
	for key, at := range firstVerifiedAt {
		if invalidCreds[key] {
			continue
		}
		if !hasValidCred || at.Before(oldestValidCred) {
			oldestValidCred = at
		}
		hasValidCred = true
	}

	tier := TierT0
	if hasContact {
		tier = TierT1
	}
	if tier == TierT1 && hasValidCred {
		tier = TierT2
	}
	if tier == TierT2 &&
		!oldestValidCred.After(now.Add(-cfg.CredentialMinAge)) &&
		(lastFraudAt.IsZero() || lastFraudAt.Before(now.Add(-cfg.FraudWindow))) {
		tier = TierT3
	}

	if activeCap != nil && tier.Level() > activeCap.Level() {
		tier = *activeCap
	}

	return Derivation{
		Tier:   tier,
		Frozen: frozen,
		Score:  tier.Weight(),
	}
}
