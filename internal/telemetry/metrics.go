// Package telemetry provides observability primitives for busbridge.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CoalescedJoins   prometheus.Counter
	SoftEmpties      *prometheus.CounterVec
	UpstreamAttempts *prometheus.CounterVec
	UpstreamErrors   *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "busbridge",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}),

		CoalescedJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "coalesced_joins_total",
			Help:      "Total callers that joined an in-flight upstream fetch.",
		}),

		SoftEmpties: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "soft_empties_total",
			Help:      "Total upstream soft errors converted to empty successes.",
		}, []string{"endpoint"}),

		UpstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "upstream_attempts_total",
			Help:      "Total upstream request attempts, including retries.",
		}, []string{"endpoint"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busbridge",
			Name:      "upstream_errors_total",
			Help:      "Total fatal upstream failures by error code.",
		}, []string{"endpoint", "code"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "busbridge",
			Name:                            "upstream_duration_seconds",
			Help:                            "Upstream attempt duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheHits,
		m.CacheMisses,
		m.CoalescedJoins,
		m.SoftEmpties,
		m.UpstreamAttempts,
		m.UpstreamErrors,
		m.UpstreamDuration,
	)

	return m
}
