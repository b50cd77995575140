package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	QueriesTotal          *prometheus.CounterVec
	SuppressedGroupsTotal prometheus.Counter
	EpsilonSpentTotal     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_privacy_queries_total",
			Help: "Total aggregation queries by statistic and outcome",
		}, []string{"statistic", "outcome"}),
		SuppressedGroupsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_privacy_suppressed_groups_total",
			Help: "Total cohort groups suppressed below the k threshold",
		}),
		EpsilonSpentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_privacy_epsilon_spent_total",
			Help: "Total epsilon charged across all resources",
		}),
	}
}

func (m *Metrics) ObserveQuery(statistic, outcome string) {
	m.QueriesTotal.WithLabelValues(statistic, outcome).Inc()
}

func (m *Metrics) ObserveSuppressed(groups int) {
	m.SuppressedGroupsTotal.Add(float64(groups))
}

func (m *Metrics) ObserveEpsilonSpent(epsilon float64) {
	m.EpsilonSpentTotal.Add(epsilon)
}
