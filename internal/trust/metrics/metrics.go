package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TransitionsTotal     *prometheus.CounterVec
	FreezesTotal         prometheus.Counter
	CommitConflictsTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_trust_tier_transitions_total",
			Help: "Total trust tier transitions by direction",
		}, []string{"direction"}),
		FreezesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_trust_identity_freezes_total",
			Help: "Total identities moved to the frozen state",
		}),
		CommitConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_trust_commit_conflicts_total",
			Help: "Total optimistic commit conflicts during tier recomputation",
		}),
	}
}

func (m *Metrics) ObserveTransition(direction string) {
	m.TransitionsTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) IncrementFreezes() {
	m.FreezesTotal.Inc()
}

func (m *Metrics) IncrementCommitConflicts() {
	m.CommitConflictsTotal.Inc()
}
