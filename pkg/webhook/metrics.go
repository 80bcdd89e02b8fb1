package webhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbound deliveries and inbound verifications.
type Metrics struct {
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	Inbound          *prometheus.CounterVec
}

// NewMetrics registers the webhook metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_registry_webhook_deliveries_total",
			Help: "Outbound webhook deliveries by event and outcome",
		}, []string{"event", "outcome"}),
		DeliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facility_registry_webhook_delivery_duration_seconds",
			Help:    "Duration of outbound webhook deliveries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"event"}),
		Inbound: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facility_registry_webhook_inbound_total",
			Help: "Inbound webhook calls by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveDelivery records one delivery attempt.
func (m *Metrics) ObserveDelivery(event string, ok bool, start time.Time) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Deliveries.WithLabelValues(event, outcome).Inc()
	m.DeliveryDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

// ObserveInbound records the outcome of one inbound call.
func (m *Metrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.Inbound.WithLabelValues(outcome).Inc()
}
