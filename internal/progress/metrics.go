package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropSlowSubscriber = "slow_subscriber"
	DropRelayFull      = "relay_full"
	DropRelayOpen      = "relay_open"
	DropRelayFailed    = "relay_failed"
)

// Metrics is nil-safe.
type Metrics struct {
	Published    *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Subscribers  prometheus.Gauge
	Operations   prometheus.Gauge
	RelayBreaker prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_progress_events_published_total",
			Help: "Progress events accepted by the hub, by status",
		}, []string{"status"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_progress_events_dropped_total",
			Help: "Progress events not delivered, by reason",
		}, []string{"reason"}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "campusgate_progress_subscribers",
			Help: "Open progress subscriptions",
		}),
		Operations: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "campusgate_progress_operations",
			Help: "Operations tracked by the hub, finished ones included until pruned",
		}),
		RelayBreaker: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "campusgate_progress_relay_breaker_state",
			Help: "Kafka relay circuit state: 0 closed, 1 open, 2 half-open",
		}),
	}
}

func (m *Metrics) IncPublished(status Status) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddSubscribers(delta int) {
	if m == nil {
		return
	}
	m.Subscribers.Add(float64(delta))
}

func (m *Metrics) SetOperations(n int) {
	if m == nil {
		return
	}
	m.Operations.Set(float64(n))
}

func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.RelayBreaker.Set(float64(state))
}
