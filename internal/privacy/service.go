package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"quorum/internal/privacy/metrics"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	audit "quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

type Service struct {
	cohorts        CohortSource
	ledger         LedgerStore
	noiser         *Noiser
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

func WithNoiser(noiser *Noiser) Option {
	return func(s *Service) {
		if noiser != nil {
			s.noiser = noiser
		}
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

func New(cohorts CohortSource, ledger LedgerStore, opts ...Option) (*Service, error) {
	if cohorts == nil {
		return nil, fmt.Errorf("cohort source is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger store is required")
	}

	svc := &Service{
		cohorts: cohorts,
		ledger:  ledger,
		noiser:  NewNoiser(),
		config:  DefaultConfig(),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if err := svc.config.Validate(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Evaluate runs one aggregation query for a requester of the given tier.
//
// Policy checks run first, then the true grouping with k-suppression, then
// noising, and only then the atomic ledger charge. A query rejected for
// budget never charges; a fully suppressed query is a valid empty result
// and still spends its epsilon, since the suppression bit itself is an
// observation of the data.
func (s *Service) Evaluate(ctx context.Context, requesterTier trust.Tier, query AggregationQuery) (*Result, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.K < s.config.MinK {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "k below the policy floor of %d", s.config.MinK)
	}

	ceiling, ok := s.config.TierEpsilonCeiling[requesterTier]
	if !ok {
		ceiling = s.config.TierEpsilonCeiling[trust.TierT0]
	}
	if query.Epsilon > ceiling {
		s.observeQuery(query.Statistic, "rejected_epsilon")
		return nil, dErrors.Newf(dErrors.CodeForbidden,
			"requested epsilon %.3f exceeds the %.3f ceiling for tier %s", query.Epsilon, ceiling, requesterTier)
	}

	cohorts, err := s.cohorts.Cohorts(ctx, query.Resource, query.Dimension)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cohorts")
	}

	groups, suppressed, err := s.release(cohorts, query)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Charge(ctx, query.Resource, query.Epsilon, s.config.ResourceBudget)
	if err != nil {
		if errors.Is(err, sentinel.ErrExhausted) {
			s.observeQuery(query.Statistic, "budget_exhausted")
			event := audit.NewEvent(audit.EventBudgetExhausted, id.IdentityID{})
			event.Subject = query.Resource.String()
			event.Severity = audit.SeverityWarning
			s.emitAudit(ctx, event)
			return nil, dErrors.New(dErrors.CodeBudgetExhausted, "resource epsilon budget exhausted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to charge privacy ledger")
	}

	s.observeQuery(query.Statistic, "released")
	if s.metrics != nil {
		s.metrics.ObserveSuppressed(suppressed)
		s.metrics.ObserveEpsilonSpent(query.Epsilon)
	}

	event := audit.NewEvent(audit.EventEpsilonCharged, id.IdentityID{})
	event.Subject = query.Resource.String()
	event.Reason = fmt.Sprintf("epsilon %.3f, cumulative %.3f", query.Epsilon, entry.Spent)
	s.emitAudit(ctx, event)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "aggregation released",
			"resource", query.Resource,
			"statistic", query.Statistic,
			"groups", len(groups),
			"suppressed_groups", suppressed,
			"epsilon", query.Epsilon,
			"cumulative_spend", entry.Spent,
		)
	}

	return &Result{
		Resource:         query.Resource,
		Statistic:        query.Statistic,
		Groups:           groups,
		SuppressedGroups: suppressed,
		EpsilonCharged:   query.Epsilon,
		EvaluatedAt:      s.clock().UTC(),
	}, nil
}

// release applies k-suppression and noising. Suppression happens on true
// counts before any noise: a small cohort is dropped entirely, never noised.
func (s *Service) release(cohorts []Cohort, query AggregationQuery) ([]GroupResult, int, error) {
	surviving := make([]Cohort, 0, len(cohorts))
	suppressed := 0
	totalWeight := 0.0
	for _, cohort := range cohorts {
		totalWeight += cohort.Weight
		if cohort.Size < query.K {
			suppressed++
			continue
		}
		surviving = append(surviving, cohort)
	}

	groups := make([]GroupResult, 0, len(surviving))
	for _, cohort := range surviving {
		var value, sensitivity float64
		switch query.Statistic {
		case StatisticCount:
			value = float64(cohort.Size)
			sensitivity = 1.0
		case StatisticWeightedShare:
			if totalWeight == 0 {
				continue
			}
			value = cohort.Weight / totalWeight
			// One member moving in or out shifts the ratio by at most the
			// heaviest weight over the total.
			sensitivity = trust.TierT3.Weight() / totalWeight
		}

		noise, err := s.drawNoise(sensitivity, query.Epsilon)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to draw noise")
		}
		noised := value + noise

		switch query.Statistic {
		case StatisticCount:
			noised = math.Max(0, math.Round(noised))
		case StatisticWeightedShare:
			noised = math.Min(1, math.Max(0, noised))
		}

		groups = append(groups, GroupResult{Key: cohort.Key, Value: noised})
	}
	return groups, suppressed, nil
}

func (s *Service) drawNoise(sensitivity, epsilon float64) (float64, error) {
	if s.config.Mechanism == MechanismGaussian {
		return s.noiser.Gaussian(sensitivity, epsilon, s.config.Delta)
	}
	return s.noiser.Laplace(sensitivity, epsilon)
}

// Spent reports the resource's cumulative spend in the current window.
func (s *Service) Spent(ctx context.Context, resource id.ResourceID) (*LedgerEntry, error) {
	if resource.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "resource is required")
	}
	entry, err := s.ledger.Entry(ctx, resource)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &LedgerEntry{Resource: resource, Budget: s.config.ResourceBudget}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read privacy ledger")
	}
	entry.Budget = s.config.ResourceBudget
	return entry, nil
}

// Rollover closes the resource's accounting window and resets its spend.
// This is the only path that lowers a ledger balance, and it is always
// audited with the operator and justification.
func (s *Service) Rollover(ctx context.Context, resource id.ResourceID, actorID, justification string) (float64, error) {
	if resource.IsNil() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "resource is required")
	}
	if justification == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "rollover justification is required")
	}

	closedSpend, err := s.ledger.Rollover(ctx, resource)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to roll over privacy ledger")
	}

	event := audit.NewEvent(audit.EventLedgerRollover, id.IdentityID{})
	event.Subject = resource.String()
	event.ActorID = actorID
	event.Reason = justification
	s.emitAudit(ctx, event)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "privacy ledger rolled over",
			"resource", resource,
			"closed_spend", closedSpend,
			"actor_id", actorID,
			"event", string(audit.EventLedgerRollover),
			"log_type", "audit",
		)
	}
	return closedSpend, nil
}

func (s *Service) observeQuery(statistic Statistic, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(string(statistic), outcome)
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, event)
}
