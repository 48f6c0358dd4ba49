package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Native model types
const (
	TypeLogisticRegression = "logistic_regression"
	TypeDecisionTree       = "decision_tree"
	TypeRandomForest       = "random_forest"
)

// NativeModel is a classifier artifact Go can evaluate without a Python
// runtime. The JSON document carries the fitted parameters exported from
// the training pipeline.
type NativeModel struct {
	Type      string       `json:"type"`
	Classes   []int        `json:"classes"`
	NFeatures int          `json:"n_features"`
	Scaler    *Scaler      `json:"scaler,omitempty"`
	Coef      []float64    `json:"coef,omitempty"`
	Intercept float64      `json:"intercept,omitempty"`
	Nodes     []TreeNode   `json:"nodes,omitempty"`
	Trees     [][]TreeNode `json:"trees,omitempty"`
}

// Scaler standardizes inputs before a linear model.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// TreeNode is one node of a fitted tree stored in pre-order. Leaves carry the
// class counts (or weights) of the training samples they hold.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"`
}

func openNative(cfg StoreConfig) (Classifier, error) {
	return LoadNativeModel(cfg.ModelPath)
}

// LoadNativeModel reads and validates a native model document.
func LoadNativeModel(path string) (*NativeModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m NativeModel
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode native model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid native model: %w", err)
	}
	return &m, nil
}

// Save writes the model document.
func (m *NativeModel) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// Validate checks the fitted parameters are self-consistent.
func (m *NativeModel) Validate() error {
	if len(m.Classes) == 0 {
		m.Classes = []int{0, 1}
	}
	if m.NFeatures <= 0 {
		return errors.New("n_features must be positive")
	}

	switch m.Type {
	case TypeLogisticRegression:
		if len(m.Classes) != 2 {
			return fmt.Errorf("logistic regression needs 2 classes, got %d", len(m.Classes))
		}
		if len(m.Coef) != m.NFeatures {
			return fmt.Errorf("expected %d coefficients, got %d", m.NFeatures, len(m.Coef))
		}
		if m.Scaler != nil && (len(m.Scaler.Mean) != m.NFeatures || len(m.Scaler.Scale) != m.NFeatures) {
			return errors.New("scaler size does not match n_features")
		}
	case TypeDecisionTree:
		return m.validateTree(m.Nodes)
	case TypeRandomForest:
		if len(m.Trees) == 0 {
			return errors.New("random forest has no trees")
		}
		for i, tree := range m.Trees {
			if err := m.validateTree(tree); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unsupported model type %q", m.Type)
	}
	return nil
}

func (m *NativeModel) validateTree(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for idx, node := range nodes {
		if node.IsLeaf {
			if len(node.Value) != len(m.Classes) {
				return fmt.Errorf("leaf %d has %d values for %d classes", idx, len(node.Value), len(m.Classes))
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= m.NFeatures {
			return fmt.Errorf("node %d splits on feature %d", idx, node.FeatureIdx)
		}
		// Pre-order storage: children always come after their parent.
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= idx || child >= len(nodes) {
				return fmt.Errorf("node %d has invalid child %d", idx, child)
			}
		}
	}
	return nil
}

// Predict returns the class with the highest probability for each row.
func (m *NativeModel) Predict(ctx context.Context, batch [][]float64) ([]int, error) {
	probs, err := m.PredictProba(ctx, batch)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, dist := range probs {
		best := 0
		for j := range dist {
			if dist[j] > dist[best] {
				best = j
			}
		}
		labels[i] = m.Classes[best]
	}
	return labels, nil
}

// PredictProba evaluates the model on every row.
func (m *NativeModel) PredictProba(ctx context.Context, batch [][]float64) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) != m.NFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, model expects %d", ErrShapeMismatch, i, len(row), m.NFeatures)
		}
		dist, err := m.proba(row)
		if err != nil {
			return nil, err
		}
		out[i] = dist
	}
	return out, nil
}

// Describe reports the model type, input width and classes.
func (m *NativeModel) Describe() ModelDescription {
	return ModelDescription{Type: m.Type, NFeatures: m.NFeatures, Classes: m.Classes}
}

func (m *NativeModel) proba(row []float64) ([]float64, error) {
	switch m.Type {
	case TypeLogisticRegression:
		z := m.Intercept
		for j, x := range row {
			if m.Scaler != nil {
				scale := m.Scaler.Scale[j]
				if scale == 0 {
					scale = 1
				}
				x = (x - m.Scaler.Mean[j]) / scale
			}
			z += m.Coef[j] * x
		}
		p := sigmoid(z)
		return []float64{1 - p, p}, nil
	case TypeDecisionTree:
		return treeProba(m.Nodes, row)
	case TypeRandomForest:
		sum := make([]float64, len(m.Classes))
		for _, tree := range m.Trees {
			dist, err := treeProba(tree, row)
			if err != nil {
				return nil, err
			}
			for j := range sum {
				sum[j] += dist[j]
			}
		}
		for j := range sum {
			sum[j] /= float64(len(m.Trees))
		}
		return sum, nil
	}
	return nil, fmt.Errorf("unsupported model type %q", m.Type)
}

func treeProba(nodes []TreeNode, row []float64) ([]float64, error) {
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return normalize(node.Value)
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func normalize(counts []float64) ([]float64, error) {
	var total float64
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: empty leaf distribution", ErrInvalidOutput)
	}
	dist := make([]float64, len(counts))
	for i, c := range counts {
		dist[i] = c / total
	}
	return dist, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
