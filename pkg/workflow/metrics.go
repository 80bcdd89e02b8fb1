package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts request transitions and promotions.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Promotions  *prometheus.CounterVec
}

// NewMetrics registers the workflow metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facility_registry",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Committed facility request status transitions.",
		}, []string{"from", "to"}),
		Promotions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "facility_registry",
			Subsystem: "workflow",
			Name:      "promotions_total",
			Help:      "Promotion attempts by request type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

func (m *Metrics) observeTransition(from, to Status) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) observePromotion(t RequestType, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Promotions.WithLabelValues(string(t), outcome).Inc()
}
