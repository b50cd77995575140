package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quorum/internal/trust/metrics"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	audit "quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

// Config tunes the service around the pure engine.
type Config struct {
	Engine EngineConfig
	// MaxRecomputeRetries bounds optimistic commit retries before the
	// conflict is surfaced as CodeStaleVersion.
	MaxRecomputeRetries int
}

func DefaultConfig() Config {
	return Config{
		Engine:              DefaultEngineConfig(),
		MaxRecomputeRetries: 3,
	}
}

func (c Config) Validate() error {
	if c.MaxRecomputeRetries < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "max recompute retries must be at least 1")
	}
	if c.Engine.CredentialMinAge < 0 || c.Engine.FraudWindow < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "engine windows cannot be negative")
	}
	return nil
}

type Service struct {
	store          Store
	config         Config
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

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
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
		return nil, fmt.Errorf("trust store is required")
	}

	svc := &Service{
		store:  store,
		config: DefaultConfig(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Current returns the stored record, or the implicit T0 record for an
// identity the core has never seen. The implicit record is not persisted.
func (s *Service) Current(ctx context.Context, identityID id.IdentityID) (*Record, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	record, err := s.store.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return NewRecord(identityID, s.clock().UTC()), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust record")
	}
	return record, nil
}

// Recompute re-derives the tier from the full evidence log and commits it
// under the record's version token. A frozen identity blocks recomputation
// and is surfaced as CodeFrozenIdentity.
func (s *Service) Recompute(ctx context.Context, identityID id.IdentityID) (*Record, error) {
	return s.mutate(ctx, identityID, nil)
}

// AppendEvidence appends one evidence entry and recomputes in the same
// optimistic commit. Evidence is accepted even while frozen (the log stays
// append-only); the tier simply does not move until unfrozen.
func (s *Service) AppendEvidence(ctx context.Context, identityID id.IdentityID, ev Evidence) (*Record, error) {
	record, err := s.mutate(ctx, identityID, &ev)
	if err != nil && dErrors.HasCode(err, dErrors.CodeFrozenIdentity) {
		// The append itself succeeded; frozen only blocks the tier move.
		return record, nil
	}
	return record, err
}

// ApplyOverride records a manual override as audited evidence and forces
// recomputation. Overrides never write the tier directly.
func (s *Service) ApplyOverride(ctx context.Context, identityID id.IdentityID, req OverrideRequest) (*Record, error) {
	ev, err := NewOverrideEvidence(identityID, req, s.clock().UTC())
	if err != nil {
		return nil, err
	}

	record, err := s.mutate(ctx, identityID, &ev)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeFrozenIdentity) {
		return nil, err
	}

	event := audit.NewEvent(audit.EventOverrideApplied, identityID)
	event.ActorID = req.ActorID
	event.Reason = req.Justification
	if req.TargetTier != nil {
		event.Subject = string(*req.TargetTier)
	}
	s.emitAudit(ctx, event)

	return record, nil
}

// mutate is the single read-compute-commit path for tier state. The
// algorithm is pure over the data read, with one commit step, so a version
// conflict retries without re-running side effects.
func (s *Service) mutate(ctx context.Context, identityID id.IdentityID, ev *Evidence) (*Record, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}

	var lastErr error
	for attempt := 0; attempt < s.config.MaxRecomputeRetries; attempt++ {
		record, created, err := s.getOrNew(ctx, identityID)
		if err != nil {
			return nil, err
		}

		if ev != nil {
			record.Evidence = append(record.Evidence, *ev)
		}

		now := s.clock().UTC()
		derivation := Derive(record.Evidence, now, s.config.Engine)

		previousTier := record.Tier
		wasFrozen := record.Frozen
		record.Frozen = derivation.Frozen

		if !derivation.Frozen {
			if derivation.Tier != record.Tier {
				record.Tier = derivation.Tier
				record.Score = derivation.Score
				record.LastTransition = now
			}
		}

		if err := s.commit(ctx, record, created); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				lastErr = err
				if s.metrics != nil {
					s.metrics.IncrementCommitConflicts()
				}
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit trust record")
		}

		s.observeTransition(ctx, record, previousTier, wasFrozen)

		if record.Frozen {
			return record, dErrors.New(dErrors.CodeFrozenIdentity, "identity is frozen pending manual review")
		}
		return record, nil
	}

	return nil, dErrors.Wrap(lastErr, dErrors.CodeStaleVersion, "trust record version conflict retries exhausted")
}

func (s *Service) getOrNew(ctx context.Context, identityID id.IdentityID) (*Record, bool, error) {
	record, err := s.store.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return NewRecord(identityID, s.clock().UTC()), true, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust record")
	}
	return record, false, nil
}

func (s *Service) commit(ctx context.Context, record *Record, created bool) error {
	if created {
		return s.store.Create(ctx, record)
	}
	return s.store.Update(ctx, record)
}

func (s *Service) observeTransition(ctx context.Context, record *Record, previousTier Tier, wasFrozen bool) {
	if record.Frozen && !wasFrozen {
		if s.metrics != nil {
			s.metrics.IncrementFreezes()
		}
		event := audit.NewEvent(audit.EventIdentityFrozen, record.IdentityID)
		event.Severity = audit.SeverityCritical
		s.emitAudit(ctx, event)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "identity frozen",
				"identity_id", record.IdentityID,
				"event", string(audit.EventIdentityFrozen),
				"log_type", "audit",
			)
		}
		return
	}

	if record.Tier == previousTier {
		return
	}

	direction := "up"
	if record.Tier.Level() < previousTier.Level() {
		direction = "down"
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(direction)
	}

	event := audit.NewEvent(audit.EventTierChanged, record.IdentityID)
	event.Subject = string(record.Tier)
	event.Reason = fmt.Sprintf("from %s", previousTier)
	s.emitAudit(ctx, event)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "trust tier changed",
			"identity_id", record.IdentityID,
			"from", previousTier,
			"to", record.Tier,
			"event", string(audit.EventTierChanged),
			"log_type", "audit",
		)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, event)
}
