// Package app assembles the decision engine from configuration. Hosts embed
// the engine as a library; Build is the single composition root that picks
// backing stores, wires the audit pipeline and connects the services to each
// other.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"quorum/internal/credential"
	credmetrics "quorum/internal/credential/metrics"
	credmem "quorum/internal/credential/store/memory"
	credpg "quorum/internal/credential/store/postgres"
	"quorum/internal/decision"
	"quorum/internal/decision/adapters"
	decmetrics "quorum/internal/decision/metrics"
	"quorum/internal/platform/config"
	"quorum/internal/platform/logger"
	platformredis "quorum/internal/platform/redis"
	"quorum/internal/privacy"
	privmetrics "quorum/internal/privacy/metrics"
	cohortstore "quorum/internal/privacy/store/cohort"
	ledgerstore "quorum/internal/privacy/store/ledger"
	"quorum/internal/ratelimit"
	rlmetrics "quorum/internal/ratelimit/metrics"
	"quorum/internal/ratelimit/store/bucket"
	"quorum/internal/trust"
	trustmetrics "quorum/internal/trust/metrics"
	trustmem "quorum/internal/trust/store/memory"
	trustpg "quorum/internal/trust/store/postgres"
	audit "quorum/pkg/platform/audit"
	auditpublisher "quorum/pkg/platform/audit/publisher"
	auditmem "quorum/pkg/platform/audit/store/memory"
	auditpg "quorum/pkg/platform/audit/store/postgres"
	auditworker "quorum/pkg/platform/audit/worker"
)

// App is the assembled engine. Fields are the entry points hosts call into;
// Close releases every resource Build acquired.
type App struct {
	Decision    *decision.Service
	Credentials *credential.Service
	Trust       *trust.Service
	RateLimiter *ratelimit.Service
	Aggregator  *privacy.Service
	Cohorts     privacy.CohortSource
	Logger      *slog.Logger

	db      *sql.DB
	pool    *pgxpool.Pool
	redis   *platformredis.Client
	stopFns []func()
	closers []func() error
}

type Option func(*options)

type options struct {
	logger  *slog.Logger
	cohorts privacy.CohortSource
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithCohortSource plugs the host's poll storage in as the cohort source.
// Without it Build falls back to the cohort_members table when Postgres is
// configured, or an in-memory store otherwise.
func WithCohortSource(src privacy.CohortSource) Option {
	return func(o *options) {
		o.cohorts = src
	}
}

type metricSet struct {
	credential *credmetrics.Metrics
	trust      *trustmetrics.Metrics
	ratelimit  *rlmetrics.Metrics
	privacy    *privmetrics.Metrics
	decision   *decmetrics.Metrics
}

// Collectors register on the process-wide default Prometheus registry, so
// they are assembled once and shared across repeated builds.
var (
	metricsOnce sync.Once
	metrics     metricSet
)

func sharedMetrics() *metricSet {
	metricsOnce.Do(func() {
		metrics = metricSet{
			credential: credmetrics.New(),
			trust:      trustmetrics.New(),
			ratelimit:  rlmetrics.New(),
			privacy:    privmetrics.New(),
			decision:   decmetrics.New(),
		}
	})
	return &metrics
}

// Build wires the full engine from cfg. Empty storage settings select the
// in-memory implementations, so a zero-value config yields a self-contained
// engine suitable for tests and local runs.
func Build(ctx context.Context, cfg config.Core, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.LogLevel)
	}

	app := &App{Logger: log}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.db = db
		app.closers = append(app.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open pgx pool: %w", err)
		}
		app.pool = pool
		app.stopFns = append(app.stopFns, pool.Close)
	}

	rc, err := platformredis.New(ctx, cfg.Storage.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		app.redis = rc
		app.closers = append(app.closers, rc.Close)
	}

	publisher, err := app.buildAuditPipeline(cfg, log)
	if err != nil {
		return nil, err
	}

	m := sharedMetrics()

	trustCfg := trust.DefaultConfig()
	if cfg.Policy.CredentialMinAge > 0 {
		trustCfg.Engine.CredentialMinAge = cfg.Policy.CredentialMinAge
	}
	if cfg.Policy.FraudWindow > 0 {
		trustCfg.Engine.FraudWindow = cfg.Policy.FraudWindow
	}

	var trustStore trust.Store
	if app.db != nil {
		trustStore = trustpg.New(app.db)
	} else {
		trustStore = trustmem.New()
	}
	tiers, err := trust.New(trustStore,
		trust.WithLogger(log),
		trust.WithAuditPublisher(publisher),
		trust.WithConfig(trustCfg),
		trust.WithMetrics(m.trust),
	)
	if err != nil {
		return nil, fmt.Errorf("build trust service: %w", err)
	}
	app.Trust = tiers

	relay := adapters.NewEvidenceRelay(tiers)

	var credStore credential.Store
	if app.db != nil {
		credStore = credpg.New(app.db)
	} else {
		credStore = credmem.New()
	}
	creds, err := credential.New(credStore,
		credential.WithLogger(log),
		credential.WithAuditPublisher(publisher),
		credential.WithEvidenceSink(relay),
		credential.WithMetrics(m.credential),
	)
	if err != nil {
		return nil, fmt.Errorf("build credential service: %w", err)
	}
	app.Credentials = creds

	rlCfg := ratelimit.DefaultConfig()
	if cfg.Policy.AbuseThreshold > 0 {
		rlCfg.AbuseThreshold = cfg.Policy.AbuseThreshold
	}
	var buckets ratelimit.BucketStore
	if app.redis != nil {
		buckets = bucket.NewRedisStore(app.redis.Client)
	} else {
		buckets = bucket.NewMemoryStore()
	}
	limiter, err := ratelimit.New(buckets,
		ratelimit.WithLogger(log),
		ratelimit.WithAuditPublisher(publisher),
		ratelimit.WithAbuseSink(relay),
		ratelimit.WithConfig(rlCfg),
		ratelimit.WithMetrics(m.ratelimit),
	)
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}
	app.RateLimiter = limiter

	privCfg := privacy.DefaultConfig()
	if cfg.Policy.MinK > 0 {
		privCfg.MinK = cfg.Policy.MinK
	}
	if cfg.Policy.ResourceEpsilonBudget > 0 {
		privCfg.ResourceBudget = cfg.Policy.ResourceEpsilonBudget
	}

	cohorts := o.cohorts
	if cohorts == nil {
		if app.pool != nil {
			cohorts = cohortstore.NewPostgresStore(app.pool)
		} else {
			cohorts = cohortstore.NewMemoryStore()
		}
	}
	app.Cohorts = cohorts

	var ledger privacy.LedgerStore
	if app.pool != nil {
		ledger = ledgerstore.NewPostgresStore(app.pool)
	} else {
		ledger = ledgerstore.NewMemoryStore()
	}
	aggregator, err := privacy.New(cohorts, ledger,
		privacy.WithLogger(log),
		privacy.WithAuditPublisher(publisher),
		privacy.WithConfig(privCfg),
		privacy.WithMetrics(m.privacy),
	)
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}
	app.Aggregator = aggregator

	engine, err := decision.New(creds, tiers, limiter, aggregator,
		decision.WithLogger(log),
		decision.WithMetrics(m.decision),
	)
	if err != nil {
		return nil, fmt.Errorf("build decision service: %w", err)
	}
	app.Decision = engine

	ok = true
	return app, nil
}

// buildAuditPipeline selects the audit transport: Kafka when brokers are
// configured, otherwise an in-process channel drained into the audit store by
// a background worker.
func (a *App) buildAuditPipeline(cfg config.Core, log *slog.Logger) (audit.Publisher, error) {
	if brokers := cfg.Storage.KafkaBrokers; len(brokers) > 0 {
		kafka, err := auditpublisher.NewKafka(brokers, auditpublisher.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("build kafka audit publisher: %w", err)
		}
		a.stopFns = append(a.stopFns, kafka.Close)
		return kafka, nil
	}

	var store audit.Store
	if a.db != nil {
		store = auditpg.New(a.db)
	} else {
		store = auditmem.New()
	}

	publisher, inbox := audit.NewChannelPublisher(cfg.AuditBuffer, log)
	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = auditworker.NewWorker(store, inbox, log).Run(workerCtx)
	}()
	a.stopFns = append(a.stopFns, func() {
		cancel()
		<-done
	})
	return publisher, nil
}

// Health pings every configured backing service.
func (a *App) Health(ctx context.Context) error {
	var errs []error
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pgx pool: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close stops background workers and releases connections in reverse
// acquisition order.
func (a *App) Close() error {
	for i := len(a.stopFns) - 1; i >= 0; i-- {
		a.stopFns[i]()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
