package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the operation pipeline.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	InFlight          prometheus.Gauge
	OperationDuration prometheus.Histogram
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	AuditFailures     prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a caller-supplied registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics across cases.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcgate_operations_total",
			Help: "Total pipeline operations by terminal outcome",
		}, []string{"outcome"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcgate_operations_in_flight",
			Help: "Operations currently holding an admission ticket",
		}),
		OperationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcgate_operation_duration_seconds",
			Help:    "Wall-clock duration of executed operations",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcgate_cache_hits_total",
			Help: "Result cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcgate_cache_misses_total",
			Help: "Result cache misses",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcgate_audit_failures_total",
			Help: "Audit entries that could not be persisted",
		}),
	}
}

// ObserveOutcome increments the outcome counter; safe on a nil receiver so
// callers can run without metrics wired.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(outcome).Inc()
}
