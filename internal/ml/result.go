package ml

import (
	"fmt"

	"github.com/jroyseravila/heart/internal/common"
)

// RiskLabel is the discrete class the model predicts.
type RiskLabel int

const (
	NoRisk RiskLabel = 0
	Risk   RiskLabel = 1
)

// String returns the slice label used in the chart.
func (l RiskLabel) String() string {
	if l == Risk {
		return common.LabelRisk
	}
	return common.LabelNoRisk
}

// Headline returns the text shown after "Resultado:".
func (l RiskLabel) Headline() string {
	if l == Risk {
		return common.HeadlineRisk
	}
	return common.LabelNoRisk
}

// PredictionResult is a label with its two-class distribution on a
// percentage scale. Index 0 is "no risk", index 1 is "risk". The values are
// the raw model probabilities times 100 and are not renormalized.
type PredictionResult struct {
	Label         RiskLabel  `json:"label"`
	Probabilities [2]float64 `json:"probabilities"`
}

// NoRiskPercent is the probability of class 0 in percent.
func (r PredictionResult) NoRiskPercent() float64 { return r.Probabilities[0] }

// RiskPercent is the probability of class 1 in percent.
func (r PredictionResult) RiskPercent() float64 { return r.Probabilities[1] }

// Lines renders the result the way the form page shows it.
func (r PredictionResult) Lines() []string {
	return []string{
		"Resultado: " + r.Label.Headline(),
		fmt.Sprintf("Probabilidad de %s: %.2f%%", common.LabelNoRisk, r.NoRiskPercent()),
		fmt.Sprintf("Probabilidad de %s: %.2f%%", common.LabelRisk, r.RiskPercent()),
	}
}

// scaleProbabilities converts a raw distribution to percentages.
func scaleProbabilities(raw []float64) [2]float64 {
	return [2]float64{raw[0] * 100, raw[1] * 100}
}
