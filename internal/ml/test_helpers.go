package ml

import (
	"context"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	failures    map[string]int
	unavailable int
	latencySum  float64
	riskScores  []float64
	cacheHits   int
	loaded      bool
	modelAge    float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[kind]++
}

// Failures returns how many failures of the given kind were recorded.
func (m *MockMetrics) Failures(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[kind]
}

func (m *MockMetrics) MLUnavailableInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLRiskScoreObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskScores = append(m.riskScores, v)
}

func (m *MockMetrics) MLCacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) MLModelLoadedSet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

// StubClassifier returns fixed outputs and counts calls. Err, when set, is
// returned from every call; Panic makes every call panic.
type StubClassifier struct {
	mu     sync.Mutex
	Labels []int
	Probs  [][]float64
	Err    error
	Panic  bool
	calls  int
	last   [][]float64
}

func (s *StubClassifier) Predict(_ context.Context, batch [][]float64) ([]int, error) {
	s.record(batch)
	if s.Panic {
		panic("stub classifier failure")
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Labels, nil
}

func (s *StubClassifier) PredictProba(_ context.Context, batch [][]float64) ([][]float64, error) {
	s.record(batch)
	if s.Panic {
		panic("stub classifier failure")
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Probs, nil
}

func (s *StubClassifier) record(batch [][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = batch
}

// Calls returns how many times the model was invoked.
func (s *StubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastBatch returns the batch of the most recent call.
func (s *StubClassifier) LastBatch() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SampleLogisticModel returns a small native model usable in tests and
// demos. Older patients with high pressure, high cholesterol and a low
// maximum heart rate score as risk.
func SampleLogisticModel() *NativeModel {
	return &NativeModel{
		Type:      TypeLogisticRegression,
		Classes:   []int{0, 1},
		NFeatures: 5,
		Scaler: &Scaler{
			Mean:  []float64{54, 0.68, 131, 246, 150},
			Scale: []float64{9, 0.47, 17.5, 51.8, 22.9},
		},
		Coef:      []float64{0.45, 0.62, 0.35, 0.28, -0.85},
		Intercept: -0.2,
	}
}
