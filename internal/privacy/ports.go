package privacy

import (
	"context"

	id "quorum/pkg/domain"
)

// CohortSource produces the true cohort grouping for a query. Implemented by
// the host's poll storage or the bundled cohort stores; the aggregator only
// ever releases what survives suppression and noising.
type CohortSource interface {
	Cohorts(ctx context.Context, resource id.ResourceID, dimension string) ([]Cohort, error)
}

// LedgerStore tracks cumulative epsilon spend per resource.
//
// Charge must be atomic check-and-increment: two concurrent charges against
// the same resource must never both commit when only one fits the budget.
// A charge that would exceed the budget returns sentinel.ErrExhausted and
// leaves the ledger untouched.
type LedgerStore interface {
	Charge(ctx context.Context, resource id.ResourceID, epsilon, budget float64) (*LedgerEntry, error)
	Entry(ctx context.Context, resource id.ResourceID) (*LedgerEntry, error)
	// Rollover starts a fresh accounting window and returns the spend that
	// was accumulated in the closed one.
	Rollover(ctx context.Context, resource id.ResourceID) (float64, error)
}
