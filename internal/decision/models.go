// Package decision composes the credential verifier, trust tier engine,
// rate limiter and privacy aggregator into the two entry points the
// application layer consumes. The orchestrator holds no state of its own:
// every decision is a function of its collaborators plus the request.
package decision

import (
	"time"

	"quorum/internal/credential"
	"quorum/internal/ratelimit"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// Outcome is the terminal classification of a request.
type Outcome string

const (
	OutcomeAllow    Outcome = "allow"
	OutcomeDeny     Outcome = "deny"
	OutcomeThrottle Outcome = "throttle"
)

// Deny reasons. These are stable strings the application layer can key on.
const (
	ReasonCredentialInvalid = "credential_invalid"
	ReasonCloneDetected     = "clone_detected"
	ReasonIdentityFrozen    = "identity_frozen"
	ReasonContention        = "contention"
	ReasonUnavailable       = "unavailable"
)

// Request is one inbound admission request. Assertion is optional; when
// present, the ceremony runs before the tier is recomputed.
type Request struct {
	IdentityID id.IdentityID
	Assertion  *credential.Assertion
	Class      ratelimit.EndpointClass
}

func (r Request) Validate() error {
	if r.IdentityID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	if !r.Class.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown endpoint class %q", r.Class)
	}
	return nil
}

// Decision is the single answer returned for a request.
type Decision struct {
	Outcome Outcome
	// Reason is set for Deny outcomes.
	Reason string
	// RetryAfter is set for Throttle outcomes.
	RetryAfter time.Duration
	// Tier is the requester's tier as of this decision, when known.
	Tier trust.Tier
}

func allow(tier trust.Tier) *Decision {
	return &Decision{Outcome: OutcomeAllow, Tier: tier}
}

func deny(reason string, tier trust.Tier) *Decision {
	return &Decision{Outcome: OutcomeDeny, Reason: reason, Tier: tier}
}

func throttle(retryAfter time.Duration, tier trust.Tier) *Decision {
	return &Decision{Outcome: OutcomeThrottle, RetryAfter: retryAfter, Tier: tier}
}
