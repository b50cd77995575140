package credential

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quorum/internal/credential/metrics"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	audit "quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// maxVerifyRetries bounds retries when a concurrent verification of the same
// credential wins the version race. Failed attempts have no side effects.
const maxVerifyRetries = 3

type Service struct {
	store          Store
	evidence       EvidenceSink
	auditPublisher audit.Publisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	clock          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithEvidenceSink(sink EvidenceSink) Option {
	return func(s *Service) {
		s.evidence = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	svc := &Service{
		store: store,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Register stores a new credential for the identity. A public key already
// bound to any identity is rejected with CodeDuplicateCredential.
func (s *Service) Register(ctx context.Context, identityID id.IdentityID, publicKey []byte, attested bool, initialCounter uint32) (*Credential, error) {
	cred, err := NewCredential(identityID, publicKey, attested, initialCounter, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateCredential, "public key is already bound to a credential")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
	}

	s.logAudit(ctx, audit.EventCredentialRegistered, identityID, cred.ID.String(), "", audit.SeverityInfo)
	return cred, nil
}

// Verify checks the assertion signature against the stored public key and
// compares counters:
//   - counter > stored: success, counter persisted, evidence emitted
//   - counter <= stored: clone detected, credential permanently invalidated
//   - bad signature: CodeCredentialInvalid, no mutation
func (s *Service) Verify(ctx context.Context, assertion Assertion) (*Verification, error) {
	var lastErr error
	for attempt := 0; attempt < maxVerifyRetries; attempt++ {
		verification, err := s.verifyOnce(ctx, assertion)
		if err != nil && errors.Is(err, sentinel.ErrConflict) {
			lastErr = err
			continue
		}
		return verification, err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeStaleVersion, "credential version conflict retries exhausted")
}

func (s *Service) verifyOnce(ctx context.Context, assertion Assertion) (*Verification, error) {
	cred, err := s.store.Get(ctx, assertion.CredentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}

	if cred.Invalidated {
		s.observeVerification("invalidated")
		return nil, dErrors.New(dErrors.CodeCredentialInvalid, "credential is permanently invalidated")
	}

	if !ed25519.Verify(cred.PublicKey, assertion.Challenge, assertion.Signature) {
		// No counter mutation on a bad signature: an attacker must not be
		// able to burn a victim's credential with garbage assertions.
		s.observeVerification("invalid_signature")
		return nil, dErrors.New(dErrors.CodeCredentialInvalid, "assertion signature does not verify")
	}

	if assertion.SignCount <= cred.SignCount {
		return nil, s.handleCloneSignal(ctx, cred, assertion.SignCount)
	}

	cred.SignCount = assertion.SignCount
	if err := s.store.Update(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist counter")
	}

	now := s.clock().UTC()
	strength := cred.EvidenceStrength()
	if s.evidence != nil {
		if err := s.evidence.CredentialVerified(ctx, cred.IdentityID, cred.ID, strength); err != nil {
			// The verification stands; the tier engine picks the evidence up
			// on the next recomputation cycle.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "failed to emit verification evidence",
					"credential_id", cred.ID,
					"error", err,
				)
			}
		}
	}

	s.observeVerification("verified")
	return &Verification{
		CredentialID: cred.ID,
		IdentityID:   cred.IdentityID,
		Strength:     strength,
		SignCount:    cred.SignCount,
		VerifiedAt:   now,
	}, nil
}

// handleCloneSignal permanently invalidates the credential and reports the
// fraud signal. The presented counter not advancing means either a replayed
// assertion or a cloned authenticator; both are unrecoverable.
func (s *Service) handleCloneSignal(ctx context.Context, cred *Credential, presented uint32) error {
	now := s.clock().UTC()
	cred.Invalidated = true
	cred.InvalidatedAt = &now

	if err := s.store.Update(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate cloned credential")
	}

	if s.evidence != nil {
		if err := s.evidence.FraudSignal(ctx, cred.IdentityID, cred.ID, "clone_detected"); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "failed to emit fraud signal",
					"credential_id", cred.ID,
					"error", err,
				)
			}
		}
	}

	s.observeVerification("clone_detected")
	if s.metrics != nil {
		s.metrics.IncrementClonesDetected()
	}
	s.logAudit(ctx, audit.EventCloneDetected, cred.IdentityID, cred.ID.String(),
		fmt.Sprintf("presented counter %d, stored counter %d", presented, cred.SignCount),
		audit.SeverityCritical)

	return dErrors.New(dErrors.CodeCloneDetected, "signature counter did not advance")
}

// Revoke invalidates a credential out-of-band (lost device, admin action)
// and emits a fraud signal so the tier engine downgrades immediately.
func (s *Service) Revoke(ctx context.Context, credentialID id.CredentialID) error {
	cred, err := s.store.Get(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if cred.Invalidated {
		return nil
	}

	now := s.clock().UTC()
	cred.Invalidated = true
	cred.InvalidatedAt = &now
	if err := s.store.Update(ctx, cred); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}

	if s.evidence != nil {
		if err := s.evidence.FraudSignal(ctx, cred.IdentityID, cred.ID, "credential_revoked"); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "failed to emit revocation evidence",
					"credential_id", cred.ID,
					"error", err,
				)
			}
		}
	}

	s.logAudit(ctx, audit.EventCredentialRevoked, cred.IdentityID, cred.ID.String(), "revoked", audit.SeverityWarning)
	return nil
}

func (s *Service) observeVerification(result string) {
	if s.metrics != nil {
		s.metrics.ObserveVerification(result)
	}
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, identityID id.IdentityID, subject, reason string, severity audit.Severity) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(action),
			"identity_id", identityID,
			"subject", subject,
			"reason", reason,
			"event", string(action),
			"log_type", "audit",
		)
	}
	if s.auditPublisher == nil {
		return
	}
	event := audit.NewEvent(action, identityID)
	event.Subject = subject
	event.Reason = reason
	event.Severity = severity
	_ = s.auditPublisher.Emit(ctx, event)
}
