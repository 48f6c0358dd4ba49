package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_MLCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	if v := testutil.ToFloat64(metrics.MLPredictions); v != 2 {
		t.Errorf("Expected 2 predictions, got %f", v)
	}

	wrapper.MLFailuresInc("shape")
	wrapper.MLFailuresInc("shape")
	wrapper.MLFailuresInc("timeout")
	if v := testutil.ToFloat64(metrics.MLFailures.WithLabelValues("shape")); v != 2 {
		t.Errorf("Expected 2 shape failures, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLFailures.WithLabelValues("timeout")); v != 1 {
		t.Errorf("Expected 1 timeout failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 3 {
		t.Errorf("Expected failures to count as errors, got %f", v)
	}

	wrapper.MLUnavailableInc()
	if v := testutil.ToFloat64(metrics.MLUnavailable); v != 1 {
		t.Errorf("Expected 1 unavailable, got %f", v)
	}

	wrapper.MLCacheHitsInc()
	if v := testutil.ToFloat64(metrics.MLCacheHits); v != 1 {
		t.Errorf("Expected 1 cache hit, got %f", v)
	}
}

func TestMetricsWrapper_ModelGauges(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLModelLoadedSet(true)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 1 {
		t.Errorf("Expected loaded gauge 1, got %f", v)
	}
	wrapper.MLModelLoadedSet(false)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 0 {
		t.Errorf("Expected loaded gauge 0, got %f", v)
	}

	wrapper.MLModelAgeSet(3600.0)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600.0 {
		t.Errorf("Expected model age 3600.0, got %f", v)
	}
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	for _, v := range []float64{0.001, 0.005, 0.01} {
		wrapper.MLLatencyObserve(v)
	}
	wrapper.MLRiskScoreObserve(0.18)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "ml_risk_score" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 1 {
			t.Errorf("Expected 1 risk score observation, got %d", h.GetSampleCount())
		}
		if h.GetSampleSum() != 0.18 {
			t.Errorf("Expected risk score sum 0.18, got %f", h.GetSampleSum())
		}
	}
	if !found {
		t.Error("ml_risk_score not gathered")
	}

	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected one latency series, got %d", n)
	}
}

func TestMetricsWrapper_HTTP(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.HTTPRequestObserve("/api/predict", "POST", 200, 0.02)
	wrapper.HTTPRequestObserve("/api/predict", "POST", 503, 0.001)
	wrapper.HTTPRequestObserve("/prediccion", "GET", 200, 0.003)

	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/predict", "POST", "200")); v != 1 {
		t.Errorf("Expected 1 ok predict request, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/predict", "POST", "503")); v != 1 {
		t.Errorf("Expected 1 unavailable predict request, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected 5xx responses to count as errors, got %f", v)
	}
	if n := testutil.CollectAndCount(metrics.HTTPDuration); n != 2 {
		t.Errorf("Expected duration series for 2 routes, got %d", n)
	}

	wrapper.ProgressStreamsInc()
	if v := testutil.ToFloat64(metrics.ProgressStreams); v != 1 {
		t.Errorf("Expected 1 progress stream, got %f", v)
	}

	wrapper.ErrorsInc()
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 2 {
		t.Errorf("Expected 2 errors, got %f", v)
	}
}

func TestMetrics_FailureRate(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	if rate := wrapper.FailureRate(); rate != 0 {
		t.Errorf("Expected 0 failure rate with no traffic, got %f", rate)
	}

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	wrapper.MLFailuresInc("model")

	if rate := wrapper.FailureRate(); rate != 0.25 {
		t.Errorf("Expected failure rate 0.25, got %f", rate)
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not conflict.
	first := NewWithRegistry(prometheus.NewRegistry())
	second := NewWithRegistry(prometheus.NewRegistry())

	NewWrapper(first).MLPredictionsInc()
	if v := testutil.ToFloat64(second.MLPredictions); v != 0 {
		t.Errorf("Expected isolated registries, got %f", v)
	}
}
