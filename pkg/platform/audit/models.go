// Package audit captures key trust-core actions as structured events. Events
// are transport-agnostic so stores and sinks can fan out: an in-process worker
// drains them to a store, and the Kafka publisher ships them off-box for the
// distributed deployment.
package audit

import (
	"time"

	"github.com/google/uuid"

	id "quorum/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	// Examples: tier overrides, identity freezes, ledger rollovers.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: clone detection, abuse signals, rate limit violations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for operational visibility.
	// These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security-relevant events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	ID         uuid.UUID     `json:"id"`
	Category   EventCategory `json:"category"`
	Timestamp  time.Time     `json:"timestamp"`
	IdentityID id.IdentityID `json:"identity_id,omitempty"`
	// Subject names the entity acted on when it is not the identity itself
	// (a credential ID, a resource ID).
	Subject  string   `json:"subject,omitempty"`
	Action   string   `json:"action"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	// ActorID tracks who performed the action when different from the
	// identity, e.g. the operator applying a tier override.
	ActorID string `json:"actor_id,omitempty"`
}

// AuditEvent enumerates the actions the trust core records.
type AuditEvent string

const (
	// Credential events
	EventCredentialRegistered AuditEvent = "credential_registered"
	EventCloneDetected        AuditEvent = "credential_clone_detected"
	EventCredentialRevoked    AuditEvent = "credential_revoked"

	// Trust tier events
	EventTierChanged     AuditEvent = "trust_tier_changed"
	EventIdentityFrozen  AuditEvent = "identity_frozen"
	EventOverrideApplied AuditEvent = "tier_override_applied"

	// Rate limit events
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventAbuseSignal       AuditEvent = "abuse_signal_emitted"

	// Privacy events
	EventEpsilonCharged  AuditEvent = "epsilon_charged"
	EventBudgetExhausted AuditEvent = "epsilon_budget_exhausted"
	EventLedgerRollover  AuditEvent = "privacy_ledger_rollover"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - require tamper-proof storage
	EventOverrideApplied: CategoryCompliance,
	EventIdentityFrozen:  CategoryCompliance,
	EventLedgerRollover:  CategoryCompliance,

	// Security events - feed into SIEM and alerting
	EventCloneDetected:     CategorySecurity,
	EventCredentialRevoked: CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventAbuseSignal:       CategorySecurity,
	EventBudgetExhausted:   CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventCredentialRegistered: CategoryOperations,
	EventTierChanged:          CategoryOperations,
	EventEpsilonCharged:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// NewEvent builds an Event for the given action with the category derived
// from the action and the timestamp set.
func NewEvent(action AuditEvent, identityID id.IdentityID) Event {
	return Event{
		ID:         uuid.New(),
		Category:   action.Category(),
		Timestamp:  time.Now().UTC(),
		IdentityID: identityID,
		Action:     string(action),
	}
}
