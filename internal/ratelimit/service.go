package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quorum/internal/ratelimit/metrics"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	audit "quorum/pkg/platform/audit"
)

type Service struct {
	buckets        BucketStore
	config         Config
	abuseSink      AbuseSink
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

func WithAbuseSink(sink AbuseSink) Option {
	return func(s *Service) {
		s.abuseSink = sink
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

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, fmt.Errorf("bucket store is required")
	}

	svc := &Service{
		buckets: buckets,
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

// CheckAndConsume admits or throttles one request. The counter increment and
// the quota comparison happen against the same atomic count, so exactly
// Quota.Requests calls are admitted per window regardless of concurrency.
func (s *Service) CheckAndConsume(ctx context.Context, identityID id.IdentityID, tier trust.Tier, class EndpointClass) (*Result, error) {
	if identityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	if !class.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown endpoint class %q", class)
	}

	quota, ok := s.config.Lookup(tier, class)
	if !ok {
		// Default-deny: an unconfigured class never fails open.
		s.logAudit(ctx, "rate_limit_config_missing",
			"identity_id", identityID,
			"endpoint_class", class,
		)
		return &Result{
			Allowed:    false,
			ResetAt:    s.clock(),
			RetryAfter: time.Minute,
		}, nil
	}

	now := s.clock().UTC()
	windowStart := now.Truncate(quota.Window)
	resetAt := windowStart.Add(quota.Window)

	count, err := s.buckets.Increment(ctx, bucketKey(identityID, class, windowStart), quota.Window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume rate bucket")
	}

	if s.metrics != nil {
		s.metrics.ObserveCheck(string(class), string(tier), count <= int64(quota.Requests))
	}

	if count <= int64(quota.Requests) {
		return &Result{
			Allowed:   true,
			Limit:     quota.Requests,
			Remaining: quota.Requests - int(count),
			ResetAt:   resetAt,
		}, nil
	}

	s.logAudit(ctx, string(audit.EventRateLimitExceeded),
		"identity_id", identityID,
		"endpoint_class", class,
		"tier", tier,
		"limit", quota.Requests,
		"window_seconds", int(quota.Window.Seconds()),
	)
	s.emitAudit(ctx, audit.NewEvent(audit.EventRateLimitExceeded, identityID))

	s.recordThrottle(ctx, identityID, now)

	return &Result{
		Allowed:    false,
		Limit:      quota.Requests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}, nil
}

// recordThrottle counts throttle events in a rolling abuse window and raises
// one abuse signal toward the trust log when the threshold is crossed. The
// equality check means a sustained flood signals once per abuse window, not
// once per excess request.
func (s *Service) recordThrottle(ctx context.Context, identityID id.IdentityID, now time.Time) {
	windowStart := now.Truncate(s.config.AbusePeriod)
	count, err := s.buckets.Increment(ctx, abuseKey(identityID, windowStart), s.config.AbusePeriod)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to count throttle events",
				"identity_id", identityID,
				"error", err,
			)
		}
		return
	}
	if count != int64(s.config.AbuseThreshold) {
		return
	}

	if s.metrics != nil {
		s.metrics.IncrementAbuseSignals()
	}
	event := audit.NewEvent(audit.EventAbuseSignal, identityID)
	event.Reason = fmt.Sprintf("%d throttle events within %s", count, s.config.AbusePeriod)
	s.emitAudit(ctx, event)
	s.logAudit(ctx, string(audit.EventAbuseSignal),
		"identity_id", identityID,
		"throttle_events", count,
	)

	if s.abuseSink == nil {
		return
	}
	if err := s.abuseSink.AbuseSignal(ctx, identityID, "sustained_rate_limit_abuse"); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to deliver abuse signal",
				"identity_id", identityID,
				"error", err,
			)
		}
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, event)
}

func (s *Service) logAudit(ctx context.Context, event string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
