package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the ml and web
// packages declare, so neither imports Prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() {
	w.m.MLPredictions.Inc()
}

func (w *MetricsWrapper) MLFailuresInc(kind string) {
	w.m.MLFailures.WithLabelValues(kind).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLUnavailableInc() {
	w.m.MLUnavailable.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *MetricsWrapper) MLRiskScoreObserve(v float64) {
	w.m.MLRiskScore.Observe(v)
}

func (w *MetricsWrapper) MLCacheHitsInc() {
	w.m.MLCacheHits.Inc()
}

func (w *MetricsWrapper) MLModelLoadedSet(loaded bool) {
	if loaded {
		w.m.MLModelLoaded.Set(1)
		return
	}
	w.m.MLModelLoaded.Set(0)
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *MetricsWrapper) HTTPRequestObserve(route, method string, status int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
	if status >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) ProgressStreamsInc() {
	w.m.ProgressStreams.Inc()
}

func (w *MetricsWrapper) ErrorsInc() {
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) FailureRate() float64 {
	return w.m.FailureRate()
}
