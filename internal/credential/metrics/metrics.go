package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	VerificationsTotal   *prometheus.CounterVec
	ClonesDetectedTotal  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_credential_verifications_total",
			Help: "Total credential verification attempts by result",
		}, []string{"result"}),
		ClonesDetectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorum_credential_clones_detected_total",
			Help: "Total credentials permanently invalidated by clone detection",
		}),
	}
}

func (m *Metrics) ObserveVerification(result string) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementClonesDetected() {
	m.ClonesDetectedTotal.Inc()
}
