package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CacheHits.Inc()
	m.CacheMisses.Inc()
	m.CoalescedJoins.Inc()
	m.UpstreamAttempts.WithLabelValues("gettime").Inc()
	m.UpstreamErrors.WithLabelValues("gettime", "UPSTREAM_REQUEST_FAILED").Inc()
	m.SoftEmpties.WithLabelValues("getpredictions").Inc()

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpstreamAttempts.WithLabelValues("gettime")); got != 1 {
		t.Errorf("upstream attempts = %v, want 1", got)
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("second registration should panic via MustRegister")
		}
	}()
	NewMetrics(reg)
}
