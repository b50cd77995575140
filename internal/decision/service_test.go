package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"quorum/internal/credential"
	"quorum/internal/decision"
	"quorum/internal/decision/mocks"
	"quorum/internal/privacy"
	"quorum/internal/ratelimit"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	verifier   *mocks.MockCredentialVerifier
	tiers      *mocks.MockTrustEngine
	limiter    *mocks.MockRateLimiter
	aggregator *mocks.MockAggregator
	service    *decision.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockCredentialVerifier(s.ctrl)
	s.tiers = mocks.NewMockTrustEngine(s.ctrl)
	s.limiter = mocks.NewMockRateLimiter(s.ctrl)
	s.aggregator = mocks.NewMockAggregator(s.ctrl)

	svc, err := decision.New(s.verifier, s.tiers, s.limiter, s.aggregator)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) record(tier trust.Tier) *trust.Record {
	return &trust.Record{
		IdentityID: id.NewIdentityID(),
		Tier:       tier,
		Score:      tier.Weight(),
	}
}

func (s *ServiceSuite) assertion() *credential.Assertion {
	return &credential.Assertion{
		CredentialID: id.NewCredentialID(),
		Challenge:    []byte("challenge"),
		Signature:    []byte("signature"),
		SignCount:    7,
	}
}

func (s *ServiceSuite) TestEvaluateRequest() {
	s.Run("admitted request without assertion allows", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Recompute(gomock.Any(), identity).Return(s.record(trust.TierT1), nil)
		s.limiter.EXPECT().CheckAndConsume(gomock.Any(), identity, trust.TierT1, ratelimit.ClassVote).
			Return(&ratelimit.Result{Allowed: true, Remaining: 4}, nil)

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{IdentityID: identity, Class: ratelimit.ClassVote})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeAllow, d.Outcome)
		s.Equal(trust.TierT1, d.Tier)
	})

	s.Run("assertion is verified before the tier moves", func() {
		identity := id.NewIdentityID()
		assertion := s.assertion()
		s.verifier.EXPECT().Verify(gomock.Any(), *assertion).
			Return(&credential.Verification{CredentialID: assertion.CredentialID, IdentityID: identity}, nil)
		s.tiers.EXPECT().Recompute(gomock.Any(), identity).Return(s.record(trust.TierT2), nil)
		s.limiter.EXPECT().CheckAndConsume(gomock.Any(), identity, trust.TierT2, ratelimit.ClassVote).
			Return(&ratelimit.Result{Allowed: true}, nil)

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{
			IdentityID: identity,
			Assertion:  assertion,
			Class:      ratelimit.ClassVote,
		})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeAllow, d.Outcome)
	})

	s.Run("assertion owned by another identity denies", func() {
		identity := id.NewIdentityID()
		owner := id.NewIdentityID()
		assertion := s.assertion()
		s.verifier.EXPECT().Verify(gomock.Any(), *assertion).
			Return(&credential.Verification{CredentialID: assertion.CredentialID, IdentityID: owner}, nil)

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{
			IdentityID: identity,
			Assertion:  assertion,
			Class:      ratelimit.ClassVote,
		})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeDeny, d.Outcome)
		s.Equal(decision.ReasonCredentialInvalid, d.Reason)
	})

	s.Run("clone detection denies with its own reason", func() {
		identity := id.NewIdentityID()
		assertion := s.assertion()
		s.verifier.EXPECT().Verify(gomock.Any(), *assertion).
			Return(nil, dErrors.New(dErrors.CodeCloneDetected, "counter regressed"))

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{
			IdentityID: identity,
			Assertion:  assertion,
			Class:      ratelimit.ClassVote,
		})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeDeny, d.Outcome)
		s.Equal(decision.ReasonCloneDetected, d.Reason)
	})

	s.Run("invalid signature denies", func() {
		identity := id.NewIdentityID()
		assertion := s.assertion()
		s.verifier.EXPECT().Verify(gomock.Any(), *assertion).
			Return(nil, dErrors.New(dErrors.CodeCredentialInvalid, "bad signature"))

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{
			IdentityID: identity,
			Assertion:  assertion,
			Class:      ratelimit.ClassVote,
		})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeDeny, d.Outcome)
		s.Equal(decision.ReasonCredentialInvalid, d.Reason)
	})

	s.Run("frozen identity denies", func() {
		identity := id.NewIdentityID()
		frozen := s.record(trust.TierT1)
		frozen.Frozen = true
		s.tiers.EXPECT().Recompute(gomock.Any(), identity).
			Return(frozen, dErrors.New(dErrors.CodeFrozenIdentity, "frozen"))

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{IdentityID: identity, Class: ratelimit.ClassVote})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeDeny, d.Outcome)
		s.Equal(decision.ReasonIdentityFrozen, d.Reason)
	})

	s.Run("store failure fails closed to deny", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Recompute(gomock.Any(), identity).
			Return(nil, errors.New("connection refused"))

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{IdentityID: identity, Class: ratelimit.ClassVote})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeDeny, d.Outcome)
		s.Equal(decision.ReasonUnavailable, d.Reason)
	})

	s.Run("exhausted quota throttles with retry-after", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Recompute(gomock.Any(), identity).Return(s.record(trust.TierT0), nil)
		s.limiter.EXPECT().CheckAndConsume(gomock.Any(), identity, trust.TierT0, ratelimit.ClassVote).
			Return(&ratelimit.Result{Allowed: false, RetryAfter: 12 * time.Second}, nil)

		d, err := s.service.EvaluateRequest(s.ctx, decision.Request{IdentityID: identity, Class: ratelimit.ClassVote})
		s.Require().NoError(err)
		s.Equal(decision.OutcomeThrottle, d.Outcome)
		s.Equal(12*time.Second, d.RetryAfter)
	})

	s.Run("invalid request is an error not a decision", func() {
		_, err := s.service.EvaluateRequest(s.ctx, decision.Request{Class: ratelimit.ClassVote})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestEvaluateAggregationQuery() {
	query := privacy.AggregationQuery{
		Resource:  id.NewResourceID(),
		Statistic: privacy.StatisticCount,
		Dimension: "region",
		K:         5,
		Epsilon:   0.5,
	}

	s.Run("delegates with the requester's current tier", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Current(gomock.Any(), identity).Return(s.record(trust.TierT2), nil)
		s.aggregator.EXPECT().Spent(gomock.Any(), query.Resource).
			Return(&privacy.LedgerEntry{Resource: query.Resource, Spent: 0.2, Budget: 10}, nil)
		s.aggregator.EXPECT().Evaluate(gomock.Any(), trust.TierT2, query).
			Return(&privacy.Result{Resource: query.Resource, Groups: []privacy.GroupResult{{Key: "north", Value: 12}}}, nil)

		result, err := s.service.EvaluateAggregationQuery(s.ctx, identity, query)
		s.Require().NoError(err)
		s.Len(result.Groups, 1)
	})

	s.Run("frozen requester is rejected before evaluation", func() {
		identity := id.NewIdentityID()
		frozen := s.record(trust.TierT1)
		frozen.Frozen = true
		s.tiers.EXPECT().Current(gomock.Any(), identity).Return(frozen, nil)
		s.aggregator.EXPECT().Spent(gomock.Any(), query.Resource).
			Return(&privacy.LedgerEntry{Resource: query.Resource, Budget: 10}, nil)

		_, err := s.service.EvaluateAggregationQuery(s.ctx, identity, query)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeFrozenIdentity))
	})

	s.Run("ledger precheck short-circuits an exhausted budget", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Current(gomock.Any(), identity).Return(s.record(trust.TierT2), nil)
		s.aggregator.EXPECT().Spent(gomock.Any(), query.Resource).
			Return(&privacy.LedgerEntry{Resource: query.Resource, Spent: 9.8, Budget: 10}, nil)

		_, err := s.service.EvaluateAggregationQuery(s.ctx, identity, query)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBudgetExhausted))
	})

	s.Run("aggregator domain errors pass through", func() {
		identity := id.NewIdentityID()
		s.tiers.EXPECT().Current(gomock.Any(), identity).Return(s.record(trust.TierT0), nil)
		s.aggregator.EXPECT().Spent(gomock.Any(), query.Resource).
			Return(&privacy.LedgerEntry{Resource: query.Resource, Budget: 10}, nil)
		s.aggregator.EXPECT().Evaluate(gomock.Any(), trust.TierT0, query).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "epsilon over ceiling"))

		_, err := s.service.EvaluateAggregationQuery(s.ctx, identity, query)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
