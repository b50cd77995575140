package decision

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"quorum/internal/decision/metrics"
	"quorum/internal/privacy"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

type Service struct {
	verifier   CredentialVerifier
	tiers      TrustEngine
	limiter    RateLimiter
	aggregator Aggregator
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("quorum/internal/decision")
	}
}

func New(verifier CredentialVerifier, tiers TrustEngine, limiter RateLimiter, aggregator Aggregator, opts ...Option) (*Service, error) {
	if verifier == nil {
		return nil, fmt.Errorf("credential verifier is required")
	}
	if tiers == nil {
		return nil, fmt.Errorf("trust engine is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}

	svc := &Service{
		verifier:   verifier,
		tiers:      tiers,
		limiter:    limiter,
		aggregator: aggregator,
		tracer:     otel.Tracer("quorum/internal/decision"),
	}

	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// EvaluateRequest runs verification (when an assertion is present), tier
// recomputation and the rate check, and collapses them into one decision.
//
// Nothing here fails open: any ambiguous state - store unavailable, retry
// bound exhausted - resolves to Deny. Domain failures come back as decisions,
// not errors; the error return is reserved for invalid input.
func (s *Service) EvaluateRequest(ctx context.Context, req Request) (*Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "decision.EvaluateRequest",
		trace.WithAttributes(attribute.String("endpoint.class", string(req.Class))))
	defer span.End()

	decision := s.evaluateRequest(ctx, req)

	span.SetAttributes(attribute.String("decision.outcome", string(decision.Outcome)))
	if s.metrics != nil {
		s.metrics.ObserveDecision(string(req.Class), string(decision.Outcome), decision.Reason)
	}
	if s.logger != nil && decision.Outcome == OutcomeDeny {
		s.logger.InfoContext(ctx, "request denied",
			"identity_id", req.IdentityID,
			"endpoint_class", req.Class,
			"reason", decision.Reason,
		)
	}
	return decision, nil
}

func (s *Service) evaluateRequest(ctx context.Context, req Request) *Decision {
	if req.Assertion != nil {
		verifyCtx, span := s.tracer.Start(ctx, "decision.verifyCredential")
		verification, err := s.verifier.Verify(verifyCtx, *req.Assertion)
		span.End()
		if err != nil {
			switch {
			case dErrors.HasCode(err, dErrors.CodeCloneDetected):
				return deny(ReasonCloneDetected, "")
			case dErrors.HasCode(err, dErrors.CodeCredentialInvalid),
				dErrors.HasCode(err, dErrors.CodeNotFound),
				dErrors.HasCode(err, dErrors.CodeInvalidInput):
				return deny(ReasonCredentialInvalid, "")
			case dErrors.HasCode(err, dErrors.CodeStaleVersion):
				return deny(ReasonContention, "")
			default:
				return deny(ReasonUnavailable, "")
			}
		}
		// The ceremony only vouches for the credential's owner. An assertion
		// borrowed from another identity proves nothing about the requester.
		if verification.IdentityID != req.IdentityID {
			return deny(ReasonCredentialInvalid, "")
		}
	}

	tierCtx, span := s.tracer.Start(ctx, "decision.recomputeTier")
	record, err := s.tiers.Recompute(tierCtx, req.IdentityID)
	span.End()
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeFrozenIdentity):
			return deny(ReasonIdentityFrozen, tierOf(record))
		case dErrors.HasCode(err, dErrors.CodeStaleVersion):
			return deny(ReasonContention, "")
		default:
			return deny(ReasonUnavailable, "")
		}
	}

	rateCtx, span := s.tracer.Start(ctx, "decision.rateCheck")
	result, err := s.limiter.CheckAndConsume(rateCtx, req.IdentityID, record.Tier, req.Class)
	span.End()
	if err != nil {
		return deny(ReasonUnavailable, record.Tier)
	}
	if !result.Allowed {
		return throttle(result.RetryAfter, record.Tier)
	}
	return allow(record.Tier)
}

// EvaluateAggregationQuery reads the requester's current tier and delegates
// to the privacy aggregator. The tier read and the ledger precheck are
// independent reads and run concurrently; the authoritative budget check
// stays inside the aggregator's atomic charge.
func (s *Service) EvaluateAggregationQuery(ctx context.Context, identityID id.IdentityID, query privacy.AggregationQuery) (*privacy.Result, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "decision.EvaluateAggregationQuery",
		trace.WithAttributes(attribute.String("statistic", string(query.Statistic))))
	defer span.End()

	var (
		record *trust.Record
		entry  *privacy.LedgerEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = s.tiers.Current(gctx, identityID)
		return err
	})
	g.Go(func() error {
		var err error
		entry, err = s.aggregator.Spent(gctx, query.Resource)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare aggregation decision")
	}

	if record.Frozen {
		return nil, dErrors.New(dErrors.CodeFrozenIdentity, "identity is frozen")
	}
	if entry.Budget > 0 && entry.Spent+query.Epsilon > entry.Budget {
		// Cheap precheck; the charge inside Evaluate remains the one that
		// counts under concurrency.
		return nil, dErrors.New(dErrors.CodeBudgetExhausted, "resource epsilon budget exhausted")
	}

	result, err := s.aggregator.Evaluate(ctx, record.Tier, query)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("groups.released", len(result.Groups)),
		attribute.Int("groups.suppressed", result.SuppressedGroups),
	)
	return result, nil
}

func tierOf(record *trust.Record) trust.Tier {
	if record == nil {
		return ""
	}
	return record.Tier
}
