package ml

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jroyseravila/heart/internal/features"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// PredictorConfig contains configuration for the predictor
type PredictorConfig struct {
	Timeout   time.Duration
	CacheSize int // 0 disables the result cache
	CacheTTL  time.Duration
}

// Predictor is the inference service. It turns one feature vector into a
// PredictionResult using the classifier held by the store.
type Predictor struct {
	store   *ModelStore
	metrics MetricsInterface
	timeout time.Duration
	cache   *expirable.LRU[string, PredictionResult]
}

func NewPredictor(store *ModelStore, metrics MetricsInterface, cfg PredictorConfig) *Predictor {
	p := &Predictor{
		store:   store,
		metrics: metrics,
		timeout: cfg.Timeout,
	}
	// The artifact never changes while the process runs, so a cached result
	// stays valid until evicted.
	if cfg.CacheSize > 0 {
		p.cache = expirable.NewLRU[string, PredictionResult](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return p
}

// Store returns the model store backing the predictor, or nil for a nil
// predictor.
func (p *Predictor) Store() *ModelStore {
	if p == nil {
		return nil
	}
	return p.store
}

// Available reports whether predictions can be attempted.
func (p *Predictor) Available() bool {
	return p != nil && p.store.Ready()
}

// Predict validates the patient record and classifies it.
func (p *Predictor) Predict(ctx context.Context, patient features.Patient) (PredictionResult, error) {
	if err := patient.Validate(); err != nil {
		return PredictionResult{}, err
	}
	return p.PredictVector(ctx, patient.Vector())
}

// PredictVector classifies a positional feature vector. The vector is passed
// to the model untouched; a length the model does not accept surfaces as an
// InferenceError of kind shape.
//
// It returns ErrModelUnavailable without touching the model when the store
// is unavailable, and an *InferenceError for any failure during inference.
func (p *Predictor) PredictVector(ctx context.Context, vec []float64) (PredictionResult, error) {
	if p == nil {
		return PredictionResult{}, ErrModelUnavailable
	}
	handle, ok := p.store.Handle()
	if !ok {
		if p.metrics != nil {
			p.metrics.MLUnavailableInc()
		}
		return PredictionResult{}, ErrModelUnavailable
	}

	key := cacheKey(vec)
	if p.cache != nil {
		if res, hit := p.cache.Get(key); hit {
			if p.metrics != nil {
				p.metrics.MLCacheHitsInc()
			}
			return res, nil
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.infer(ctx, handle, vec)
	if p.metrics != nil {
		p.metrics.MLLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		ie := newInferenceError(err)
		if p.metrics != nil {
			p.metrics.MLFailuresInc(string(ie.Kind))
		}
		log.Error().
			Err(ie.Err).
			Str("kind", string(ie.Kind)).
			Int("n_features", len(vec)).
			Msg("inference failed")
		return PredictionResult{}, ie
	}

	if p.metrics != nil {
		p.metrics.MLPredictionsInc()
		p.metrics.MLRiskScoreObserve(res.RiskPercent() / 100)
	}
	if p.cache != nil {
		p.cache.Add(key, res)
	}

	log.Debug().
		Int("n_features", len(vec)).
		Msg("prediction served")

	return res, nil
}

// infer submits vec as a single-row batch and extracts row zero of the
// returned labels and distributions.
func (p *Predictor) infer(ctx context.Context, c Classifier, vec []float64) (res PredictionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Kind: KindPanic, Err: fmt.Errorf("classifier panic: %v", r)}
		}
	}()

	batch := [][]float64{vec}

	var labels []int
	var probs [][]float64
	if jc, ok := c.(jointClassifier); ok {
		labels, probs, err = jc.PredictWithProba(ctx, batch)
		if err != nil {
			return PredictionResult{}, err
		}
	} else {
		labels, err = c.Predict(ctx, batch)
		if err != nil {
			return PredictionResult{}, err
		}
		probs, err = c.PredictProba(ctx, batch)
		if err != nil {
			return PredictionResult{}, err
		}
	}

	if err := checkOutput(labels, probs); err != nil {
		return PredictionResult{}, err
	}

	return PredictionResult{
		Label:         RiskLabel(labels[0]),
		Probabilities: scaleProbabilities(probs[0]),
	}, nil
}

func checkOutput(labels []int, probs [][]float64) error {
	if len(labels) != 1 || len(probs) != 1 {
		return fmt.Errorf("%w: expected one row, got %d labels and %d distributions", ErrInvalidOutput, len(labels), len(probs))
	}
	if labels[0] != int(NoRisk) && labels[0] != int(Risk) {
		return fmt.Errorf("%w: label %d outside {0,1}", ErrInvalidOutput, labels[0])
	}
	if len(probs[0]) != 2 {
		return fmt.Errorf("%w: expected 2 class probabilities, got %d", ErrInvalidOutput, len(probs[0]))
	}
	for i, v := range probs[0] {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: probability %d is %v", ErrInvalidOutput, i, v)
		}
	}
	return nil
}

func cacheKey(vec []float64) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
