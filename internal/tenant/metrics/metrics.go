package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	LookupHit         = "hit"
	LookupNegativeHit = "negative_hit"
	LookupMiss        = "miss"
)

// Metrics covers the tenant directory: cache behaviour, directory latency
// and lifecycle transitions. A nil *Metrics is a valid no-op.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	CacheEvictions     prometheus.Counter
	CacheInvalidations *prometheus.CounterVec
	CacheStaleFills    prometheus.Counter
	DirectoryDuration  *prometheus.HistogramVec
	LifecycleChanges   *prometheus.CounterVec
	BroadcastFailures  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_tenant_cache_lookups_total",
			Help: "Tenant cache lookups by result",
		}, []string{"result"}),
		CacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campusgate_tenant_cache_evictions_total",
			Help: "Entries evicted because the cache reached its size bound",
		}),
		CacheInvalidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_tenant_cache_invalidations_total",
			Help: "Cache invalidations by source",
		}, []string{"source"}),
		CacheStaleFills: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campusgate_tenant_cache_stale_fills_total",
			Help: "Directory fetches discarded because an invalidation raced them",
		}),
		DirectoryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusgate_tenant_directory_duration_seconds",
			Help:    "Directory fetch latency by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"outcome"}),
		LifecycleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "campusgate_tenant_lifecycle_changes_total",
			Help: "Tenant status and tier changes by kind",
		}, []string{"kind"}),
		BroadcastFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "campusgate_tenant_invalidation_broadcast_failures_total",
			Help: "Push invalidations that could not be published; peers fall back to TTL expiry",
		}),
	}
}

func (m *Metrics) IncLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncEviction() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

func (m *Metrics) IncInvalidation(source string) {
	if m == nil {
		return
	}
	m.CacheInvalidations.WithLabelValues(source).Inc()
}

func (m *Metrics) IncStaleFill() {
	if m == nil {
		return
	}
	m.CacheStaleFills.Inc()
}

func (m *Metrics) ObserveDirectoryFetch(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.DirectoryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncLifecycleChange(kind string) {
	if m == nil {
		return
	}
	m.LifecycleChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncBroadcastFailure() {
	if m == nil {
		return
	}
	m.BroadcastFailures.Inc()
}
