package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the security pipeline. A nil *Metrics is a valid no-op.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	AuditDropped  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_security_outcomes_total",
			Help: "Pipeline outcomes by reason and route kind",
		}, []string{"outcome", "route_kind"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusgate_security_stage_duration_seconds",
			Help:    "Latency of each pipeline stage",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"stage"}),
		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campusgate_security_audit_dropped_total",
			Help: "Denial audit events that could not be emitted",
		}),
	}
}

func (m *Metrics) IncOutcome(outcome, routeKind string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome, routeKind).Inc()
}

func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}
