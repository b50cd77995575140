package decision

import (
	"context"

	"quorum/internal/credential"
	"quorum/internal/privacy"
	"quorum/internal/ratelimit"
	"quorum/internal/trust"
	id "quorum/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports.go -package=mocks

// CredentialVerifier runs the public-key ceremony for an assertion.
type CredentialVerifier interface {
	Verify(ctx context.Context, assertion credential.Assertion) (*credential.Verification, error)
}

// TrustEngine reads and recomputes trust tier records.
type TrustEngine interface {
	Current(ctx context.Context, identityID id.IdentityID) (*trust.Record, error)
	Recompute(ctx context.Context, identityID id.IdentityID) (*trust.Record, error)
}

// RateLimiter admits or throttles one request against the tier's quota.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, identityID id.IdentityID, tier trust.Tier, class ratelimit.EndpointClass) (*ratelimit.Result, error)
}

// Aggregator evaluates privacy-bounded aggregation queries.
type Aggregator interface {
	Evaluate(ctx context.Context, requesterTier trust.Tier, query privacy.AggregationQuery) (*privacy.Result, error)
	Spent(ctx context.Context, resource id.ResourceID) (*privacy.LedgerEntry, error)
}
