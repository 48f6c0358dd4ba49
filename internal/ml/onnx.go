package ml

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names produced by skl2onnx for a classifier exported with
// zipmap disabled.
const (
	onnxInputName  = "float_input"
	onnxLabelName  = "label"
	onnxProbaName  = "probabilities"
	onnxClassCount = 2
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initONNXRuntime(libPath string) error {
	ortInitOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

type onnxClassifier struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	path      string
	nFeatures int // 0 when the exported input width is dynamic
}

// inputWidth reads the feature count from the declared input shape
// [batch, n_features]. Dynamic or missing dimensions give 0.
func inputWidth(inputs []ort.InputOutputInfo) int {
	for _, in := range inputs {
		if in.Name != onnxInputName {
			continue
		}
		if len(in.Dimensions) == 2 && in.Dimensions[1] > 0 {
			return int(in.Dimensions[1])
		}
		return 0
	}
	return 0
}

// flattenBatch packs the batch row-major as float32. Every row must have the
// same width, and that width must match the model's when it is known.
func flattenBatch(batch [][]float64, nFeatures int) ([]float32, int, error) {
	if len(batch) == 0 {
		return nil, 0, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	width := len(batch[0])
	if nFeatures > 0 && width != nFeatures {
		return nil, 0, fmt.Errorf("%w: got %d features, model expects %d", ErrShapeMismatch, width, nFeatures)
	}
	flat := make([]float32, 0, len(batch)*width)
	for i, row := range batch {
		if len(row) != width {
			return nil, 0, fmt.Errorf("%w: row %d has %d features, expected %d", ErrShapeMismatch, i, len(row), width)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	return flat, width, nil
}

func openONNX(cfg StoreConfig) (Classifier, error) {
	if err := initONNXRuntime(cfg.OnnxRuntimeLib); err != nil {
		return nil, fmt.Errorf("could not init ONNX Runtime: %w", err)
	}

	inputs, _, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read onnx model inputs: %w", err)
	}
	nFeatures := inputWidth(inputs)

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{onnxInputName},
		[]string{onnxLabelName, onnxProbaName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Info().
		Str("model_path", cfg.ModelPath).
		Int("n_features", nFeatures).
		Msg("onnx session created")
	return &onnxClassifier{session: session, path: cfg.ModelPath, nFeatures: nFeatures}, nil
}

func (c *onnxClassifier) Predict(ctx context.Context, batch [][]float64) ([]int, error) {
	labels, _, err := c.PredictWithProba(ctx, batch)
	return labels, err
}

func (c *onnxClassifier) PredictProba(ctx context.Context, batch [][]float64) ([][]float64, error) {
	_, probs, err := c.PredictWithProba(ctx, batch)
	return probs, err
}

func (c *onnxClassifier) PredictWithProba(ctx context.Context, batch [][]float64) ([]int, [][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	flat, width, err := flattenBatch(batch, c.nFeatures)
	if err != nil {
		return nil, nil, err
	}
	rows := int64(len(batch))

	in, err := ort.NewTensor(ort.NewShape(rows, int64(width)), flat)
	if err != nil {
		return nil, nil, err
	}
	defer in.Destroy()

	labelT, err := ort.NewEmptyTensor[int64](ort.NewShape(rows))
	if err != nil {
		return nil, nil, err
	}
	defer labelT.Destroy()

	probaT, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, onnxClassCount))
	if err != nil {
		return nil, nil, err
	}
	defer probaT.Destroy()

	c.mu.Lock()
	err = c.session.Run([]ort.Value{in}, []ort.Value{labelT, probaT})
	c.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("session run error: %w", err)
	}

	rawLabels := labelT.GetData()
	rawProbs := probaT.GetData()
	labels := make([]int, rows)
	probs := make([][]float64, rows)
	for i := range labels {
		labels[i] = int(rawLabels[i])
		probs[i] = []float64{
			float64(rawProbs[i*onnxClassCount]),
			float64(rawProbs[i*onnxClassCount+1]),
		}
	}
	return labels, probs, nil
}

func (c *onnxClassifier) Describe() ModelDescription {
	return ModelDescription{Type: "onnx", NFeatures: c.nFeatures, Classes: []int{0, 1}}
}

func (c *onnxClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}
