package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DecisionsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_decisions_total",
			Help: "Total orchestrator decisions by endpoint class, outcome and reason",
		}, []string{"class", "outcome", "reason"}),
	}
}

func (m *Metrics) ObserveDecision(class, outcome, reason string) {
	m.DecisionsTotal.WithLabelValues(class, outcome, reason).Inc()
}
