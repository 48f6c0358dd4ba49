// Package ml provides the model store and the inference service behind the
// heart risk form. The store loads one opaque classifier artifact at startup
// and keeps it read-only for the process lifetime; the predictor turns a
// positional feature vector into a risk label and a percentage distribution.
//
// Artifacts are served by one of three backends: a Python helper for pickled
// scikit-learn objects, native JSON models, and ONNX Runtime sessions.
package ml

import "context"

// Classifier is the batch-oriented interface every loaded artifact exposes.
// Each row of batch is one observation.
type Classifier interface {
	// Predict returns one class label per row.
	Predict(ctx context.Context, batch [][]float64) ([]int, error)

	// PredictProba returns one probability distribution per row, ordered by
	// class label.
	PredictProba(ctx context.Context, batch [][]float64) ([][]float64, error)
}

// jointClassifier is implemented by backends that produce labels and
// distributions in a single call.
type jointClassifier interface {
	PredictWithProba(ctx context.Context, batch [][]float64) ([]int, [][]float64, error)
}

// closer is implemented by backends holding external resources.
type closer interface {
	Close() error
}

// MetricsInterface defines metrics methods needed by the model store and the
// predictor.
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc(kind string)
	MLUnavailableInc()
	MLLatencyObserve(float64)
	MLRiskScoreObserve(float64)
	MLCacheHitsInc()
	MLModelLoadedSet(bool)
	MLModelAgeSet(float64)
}
