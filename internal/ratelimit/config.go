package ratelimit

import (
	"time"

	"quorum/internal/trust"
	dErrors "quorum/pkg/domain-errors"
)

// Quota is the admission budget for one (tier, endpoint class) pair.
type Quota struct {
	Requests int
	Window   time.Duration
}

// Config carries the per-tier quota table and the abuse feedback policy.
// Quotas must strictly increase with tier for every class.
type Config struct {
	Quotas map[trust.Tier]map[EndpointClass]Quota
	// AbuseThreshold is how many throttle events within AbusePeriod raise
	// one abuse signal toward the trust engine.
	AbuseThreshold int
	AbusePeriod    time.Duration
}

// DefaultConfig returns the production quota table.
func DefaultConfig() Config {
	return Config{
		Quotas: map[trust.Tier]map[EndpointClass]Quota{
			trust.TierT0: {
				ClassVote:      {Requests: 5, Window: time.Minute},
				ClassRead:      {Requests: 60, Window: time.Minute},
				ClassWrite:     {Requests: 2, Window: time.Minute},
				ClassAnalytics: {Requests: 1, Window: time.Minute},
			},
			trust.TierT1: {
				ClassVote:      {Requests: 10, Window: time.Minute},
				ClassRead:      {Requests: 120, Window: time.Minute},
				ClassWrite:     {Requests: 5, Window: time.Minute},
				ClassAnalytics: {Requests: 2, Window: time.Minute},
			},
			trust.TierT2: {
				ClassVote:      {Requests: 30, Window: time.Minute},
				ClassRead:      {Requests: 300, Window: time.Minute},
				ClassWrite:     {Requests: 15, Window: time.Minute},
				ClassAnalytics: {Requests: 5, Window: time.Minute},
			},
			trust.TierT3: {
				ClassVote:      {Requests: 60, Window: time.Minute},
				ClassRead:      {Requests: 600, Window: time.Minute},
				ClassWrite:     {Requests: 30, Window: time.Minute},
				ClassAnalytics: {Requests: 10, Window: time.Minute},
			},
		},
		AbuseThreshold: 10,
		AbusePeriod:    time.Hour,
	}
}

func (c Config) Validate() error {
	if c.AbuseThreshold < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "abuse threshold must be at least 1")
	}
	if c.AbusePeriod <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "abuse period must be positive")
	}

	tiers := []trust.Tier{trust.TierT0, trust.TierT1, trust.TierT2, trust.TierT3}
	classes := []EndpointClass{ClassVote, ClassRead, ClassWrite, ClassAnalytics}
	for _, class := range classes {
		previous := 0
		for _, tier := range tiers {
			quota, ok := c.Quotas[tier][class]
			if !ok {
				return dErrors.Newf(dErrors.CodeInvalidInput, "missing quota for tier %s class %s", tier, class)
			}
			if quota.Requests < 1 || quota.Window <= 0 {
				return dErrors.Newf(dErrors.CodeInvalidInput, "invalid quota for tier %s class %s", tier, class)
			}
			if quota.Requests <= previous {
				return dErrors.Newf(dErrors.CodeInvalidInput, "quota for class %s must strictly increase with tier", class)
			}
			previous = quota.Requests
		}
	}
	return nil
}

// Lookup returns the quota for a tier and class. Unknown tiers fall back to
// the anonymous quota so a malformed tier never fails open.
func (c Config) Lookup(tier trust.Tier, class EndpointClass) (Quota, bool) {
	if !tier.IsValid() {
		tier = trust.TierT0
	}
	quota, ok := c.Quotas[tier][class]
	return quota, ok
}
