package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal       *prometheus.CounterVec
	AbuseSignalsTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_ratelimit_checks_total",
			Help: "Total rate limit checks by endpoint class, tier and outcome",
		}, []string{"class", "tier", "outcome"}),
		AbuseSignalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_ratelimit_abuse_signals_total",
			Help: "Total abuse signals raised from sustained throttling",
		}),
	}
}

func (m *Metrics) ObserveCheck(class, tier string, allowed bool) {
	outcome := "throttled"
	if allowed {
		outcome = "admitted"
	}
	m.ChecksTotal.WithLabelValues(class, tier, outcome).Inc()
}

func (m *Metrics) IncrementAbuseSignals() {
	m.AbuseSignalsTotal.Inc()
}
