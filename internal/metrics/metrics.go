// Package metrics provides Prometheus metrics collection for the heart risk
// service. It defines the inference, model store and HTTP metrics exposed on
// the /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Inference metrics
	MLPredictions prometheus.Counter     // Successful predictions
	MLFailures    *prometheus.CounterVec // Inference failures by kind
	MLUnavailable prometheus.Counter     // Predictions refused because no model is loaded
	MLLatency     prometheus.Histogram   // Inference latency in seconds
	MLRiskScore   prometheus.Histogram   // Distribution of the raw risk probability
	MLCacheHits   prometheus.Counter     // Predictions served from the result cache

	// Model store metrics
	MLModelLoaded prometheus.Gauge // 1 when a model is loaded
	MLModelAge    prometheus.Gauge // Age of the model artifact in seconds

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec   // Requests by route, method and status code
	HTTPDuration    *prometheus.HistogramVec // Request duration by route
	ProgressStreams prometheus.Counter       // WebSocket progress streams opened

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered

	gatherer prometheus.Gatherer
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// When the registerer is also a Gatherer, FailureRate reads from it.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	gatherer := prometheus.DefaultGatherer
	if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of successful predictions",
		}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of inference failures by kind",
		}, []string{"kind"}),
		MLUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_unavailable_total",
			Help: "Total number of predictions refused because no model is loaded",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Inference latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLRiskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_risk_score",
			Help:    "Distribution of the predicted risk probability",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_hits_total",
			Help: "Total number of predictions served from cache",
		}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "1 when a model is loaded, 0 in degraded mode",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"route"}),
		ProgressStreams: factory.NewCounter(prometheus.CounterOpts{
			Name: "progress_streams_total",
			Help: "Total number of WebSocket progress streams opened",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
		gatherer: gatherer,
	}
}

// FailureRate returns inference failures over all inference attempts that
// reached the model, or 0 when none did.
func (m *Metrics) FailureRate() float64 {
	var predictions, failures float64

	metricFamilies, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, metric := range mf.Metric {
				predictions += metric.GetCounter().GetValue()
			}
		case "ml_failures_total":
			for _, metric := range mf.Metric {
				failures += metric.GetCounter().GetValue()
			}
		}
	}

	// Avoid division by zero
	if predictions+failures == 0 {
		return 0
	}
	return failures / (predictions + failures)
}
