package trust_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/trust"
	"quorum/internal/trust/store/memory"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/audit"
	"quorum/pkg/platform/sentinel"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Emit(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byAction(action audit.AuditEvent) []audit.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []audit.Event
	for _, ev := range p.events {
		if ev.Action == string(action) {
			out = append(out, ev)
		}
	}
	return out
}

// conflictingStore forces a fixed number of version conflicts on Update
// before delegating, to exercise the optimistic retry loop.
type conflictingStore struct {
	trust.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) Update(ctx context.Context, record *trust.Record) error {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return sentinel.ErrConflict
	}
	return s.Store.Update(ctx, record)
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	publisher *recordingPublisher
	service   *trust.Service
	now       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.publisher = &recordingPublisher{}
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	svc, err := trust.New(s.store,
		trust.WithAuditPublisher(s.publisher),
		trust.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) contact(identityID id.IdentityID) trust.Evidence {
	ev, err := trust.NewContactEvidence(identityID, "email confirmed", s.now)
	s.Require().NoError(err)
	return ev
}

func (s *ServiceSuite) credential(identityID id.IdentityID) trust.Evidence {
	ev, err := trust.NewCredentialEvidence(identityID, id.NewCredentialID(), "strong", s.now)
	s.Require().NoError(err)
	return ev
}

func (s *ServiceSuite) TestCurrent() {
	s.Run("unknown identity gets implicit T0", func() {
		record, err := s.service.Current(s.ctx, id.NewIdentityID())
		s.Require().NoError(err)
		s.Equal(trust.TierT0, record.Tier)
		s.False(record.Frozen)
	})

	s.Run("nil identity rejected", func() {
		_, err := s.service.Current(s.ctx, id.IdentityID{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("implicit record is not persisted", func() {
		identity := id.NewIdentityID()
		_, err := s.service.Current(s.ctx, identity)
		s.Require().NoError(err)
		_, err = s.store.Get(s.ctx, identity)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ServiceSuite) TestAppendEvidence() {
	s.Run("contact evidence promotes to T1", func() {
		identity := id.NewIdentityID()
		record, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)
		s.Equal(trust.TierT1, record.Tier)
		s.Equal(trust.TierT1.Weight(), record.Score)
		s.Len(s.publisher.byAction(audit.EventTierChanged), 1)
	})

	s.Run("credential evidence after contact promotes to T2", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)

		record, err := s.service.AppendEvidence(s.ctx, identity, s.credential(identity))
		s.Require().NoError(err)
		s.Equal(trust.TierT2, record.Tier)
	})

	s.Run("critical fraud freezes and audits", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)

		fraudEv, err := trust.NewFraudEvidence(identity, id.NewCredentialID(), trust.SeverityCritical, "clone_detected", s.now)
		s.Require().NoError(err)

		record, err := s.service.AppendEvidence(s.ctx, identity, fraudEv)
		s.Require().NoError(err)
		s.True(record.Frozen)
		s.Len(s.publisher.byAction(audit.EventIdentityFrozen), 1)

		// Tier stays pinned while frozen.
		_, err = s.service.Recompute(s.ctx, identity)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeFrozenIdentity))
	})

	s.Run("evidence still lands while frozen", func() {
		identity := id.NewIdentityID()
		fraudEv, err := trust.NewFraudEvidence(identity, id.NewCredentialID(), trust.SeverityCritical, "clone_detected", s.now)
		s.Require().NoError(err)
		_, err = s.service.AppendEvidence(s.ctx, identity, fraudEv)
		s.Require().NoError(err)

		record, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)
		s.True(record.Frozen)
		s.Len(record.Evidence, 2)
	})
}

func (s *ServiceSuite) TestApplyOverride() {
	s.Run("unfreeze override restores derivation", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)

		fraudEv, err := trust.NewFraudEvidence(identity, id.NewCredentialID(), trust.SeverityCritical, "takeover_confirmed", s.now)
		s.Require().NoError(err)
		_, err = s.service.AppendEvidence(s.ctx, identity, fraudEv)
		s.Require().NoError(err)

		record, err := s.service.ApplyOverride(s.ctx, identity, trust.OverrideRequest{
			Unfreeze:      true,
			ActorID:       "ops-7",
			Justification: "manual review cleared",
		})
		s.Require().NoError(err)
		s.False(record.Frozen)
		s.Equal(trust.TierT1, record.Tier)
		s.Len(s.publisher.byAction(audit.EventOverrideApplied), 1)
	})

	s.Run("cap override demotes and recomputation respects it", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)
		_, err = s.service.AppendEvidence(s.ctx, identity, s.credential(identity))
		s.Require().NoError(err)

		capTier := trust.TierT0
		record, err := s.service.ApplyOverride(s.ctx, identity, trust.OverrideRequest{
			TargetTier:    &capTier,
			ActorID:       "ops-7",
			Justification: "ban pending investigation",
		})
		s.Require().NoError(err)
		s.Equal(trust.TierT0, record.Tier)

		record, err = s.service.Recompute(s.ctx, identity)
		s.Require().NoError(err)
		s.Equal(trust.TierT0, record.Tier)
	})

	s.Run("missing justification rejected", func() {
		_, err := s.service.ApplyOverride(s.ctx, id.NewIdentityID(), trust.OverrideRequest{ActorID: "ops-7"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestOptimisticRetry() {
	s.Run("recovers from transient version conflicts", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)

		store := &conflictingStore{Store: s.store, conflicts: 2}
		svc, err := trust.New(store,
			trust.WithClock(func() time.Time { return s.now }),
		)
		s.Require().NoError(err)

		record, err := svc.AppendEvidence(s.ctx, identity, s.credential(identity))
		s.Require().NoError(err)
		s.Equal(trust.TierT2, record.Tier)
	})

	s.Run("exhausted retries surface as stale version", func() {
		identity := id.NewIdentityID()
		_, err := s.service.AppendEvidence(s.ctx, identity, s.contact(identity))
		s.Require().NoError(err)

		store := &conflictingStore{Store: s.store, conflicts: 100}
		svc, err := trust.New(store,
			trust.WithClock(func() time.Time { return s.now }),
		)
		s.Require().NoError(err)

		_, err = svc.AppendEvidence(s.ctx, identity, s.credential(identity))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeStaleVersion))
	})
}
