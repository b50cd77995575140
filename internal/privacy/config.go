package privacy

import (
	"quorum/internal/trust"
	dErrors "quorum/pkg/domain-errors"
)

// Config carries the disclosure policy: per-tier epsilon ceilings, the
// suppression floor, the per-resource budget, and the noise mechanism. The
// ceilings are hard policy bounds, never caller-configurable.
type Config struct {
	// TierEpsilonCeiling is the maximum epsilon one query may request per
	// requester tier.
	TierEpsilonCeiling map[trust.Tier]float64
	// MinK is the policy floor for k; queries may ask for a larger k but
	// never a smaller one.
	MinK int
	// ResourceBudget is the total epsilon each resource may spend within
	// one accounting window.
	ResourceBudget float64
	Mechanism      Mechanism
	// Delta is the failure probability for the Gaussian mechanism. Unused
	// by Laplace.
	Delta float64
}

func DefaultConfig() Config {
	return Config{
		TierEpsilonCeiling: map[trust.Tier]float64{
			trust.TierT0: 0.1,
			trust.TierT1: 0.5,
			trust.TierT2: 1.0,
			trust.TierT3: 2.0,
		},
		MinK:           5,
		ResourceBudget: 10.0,
		Mechanism:      MechanismLaplace,
		Delta:          1e-5,
	}
}

func (c Config) Validate() error {
	for _, tier := range []trust.Tier{trust.TierT0, trust.TierT1, trust.TierT2, trust.TierT3} {
		ceiling, ok := c.TierEpsilonCeiling[tier]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "missing epsilon ceiling for tier %s", tier)
		}
		if ceiling <= 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput, "epsilon ceiling for tier %s must be positive", tier)
		}
	}
	if c.MinK < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "min k must be at least 1")
	}
	if c.ResourceBudget <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "resource budget must be positive")
	}
	switch c.Mechanism {
	case MechanismLaplace:
	case MechanismGaussian:
		if c.Delta <= 0 || c.Delta >= 1 {
			return dErrors.New(dErrors.CodeInvalidInput, "delta must be in (0,1) for the gaussian mechanism")
		}
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown noise mechanism %q", c.Mechanism)
	}
	return nil
}
