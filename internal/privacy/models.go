// Package privacy releases statistical summaries of poll data under
// k-anonymity suppression and differential-privacy noise, with cumulative
// epsilon spend bounded per resource by an atomically charged ledger.
package privacy

import (
	"time"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

// Statistic selects what is computed per cohort group.
type Statistic string

const (
	// StatisticCount releases noised per-group counts. Sensitivity 1.
	StatisticCount Statistic = "count"
	// StatisticWeightedShare releases each group's share of tier-weighted
	// participation. The ratio is bounded to [0,1] so its sensitivity is
	// rescaled by the largest single weight.
	StatisticWeightedShare Statistic = "weighted_share"
)

func (s Statistic) IsValid() bool {
	return s == StatisticCount || s == StatisticWeightedShare
}

// AggregationQuery asks for one statistic over one dimension of a resource.
type AggregationQuery struct {
	Resource  id.ResourceID
	Statistic Statistic
	// Dimension is the cohort attribute to group by (e.g. "region").
	Dimension string
	// K is the minimum cohort size; groups smaller than K are suppressed.
	K int
	// Epsilon is the requested privacy spend for this query.
	Epsilon float64
}

func (q AggregationQuery) Validate() error {
	if q.Resource.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "resource is required")
	}
	if !q.Statistic.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown statistic %q", q.Statistic)
	}
	if q.Dimension == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "dimension is required")
	}
	if q.K < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "k must be at least 1")
	}
	if q.Epsilon <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "epsilon must be positive")
	}
	return nil
}

// Cohort is one true group as produced by the cohort source. Membership
// counts here are exact and must never leave this package un-noised.
type Cohort struct {
	Key string
	// Size is the true membership count.
	Size int
	// Weight is the sum of the members' tier weights.
	Weight float64
}

// GroupResult is one released group. Value is already noised.
type GroupResult struct {
	Key   string
	Value float64
}

// Result is the outcome of one aggregation query.
//
// Suppression is not an error: a query whose every group fell below K
// returns an empty Groups slice with SuppressedGroups > 0.
type Result struct {
	Resource         id.ResourceID
	Statistic        Statistic
	Groups           []GroupResult
	SuppressedGroups int
	// EpsilonCharged is what this query cost the resource's ledger.
	EpsilonCharged float64
	EvaluatedAt    time.Time
}

// LedgerEntry is the cumulative epsilon spend of one resource within the
// current accounting window.
type LedgerEntry struct {
	Resource        id.ResourceID
	Spent           float64
	Budget          float64
	WindowStartedAt time.Time
}
