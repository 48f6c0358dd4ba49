package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDonutChart_TwoSlices(t *testing.T) {
	chart := donutChart("Distribución de Probabilidades (%)", []slice{
		{Label: "Sin Riesgo", Value: 82, Color: colorNoRisk},
		{Label: "Riesgo", Value: 18, Color: colorRisk},
	})

	element := string(chart.Element)
	script := string(chart.Script)
	assert.Contains(t, element, `id="`+chartID+`"`)
	assert.Contains(t, script, "echarts.init")
	assert.Contains(t, script, `"Sin Riesgo"`)
	assert.Contains(t, script, `"Riesgo"`)
	assert.Contains(t, script, `"30%"`)
	assert.Contains(t, script, `"75%"`)
	assert.Contains(t, script, colorNoRisk)
	assert.Contains(t, script, colorRisk)
	assert.Contains(t, script, "Distribución de Probabilidades (%)")
	assert.True(t, strings.HasSuffix(chart.Library, "echarts.min.js"))
}

func TestDonutChart_ValuesShownAsGiven(t *testing.T) {
	// Values that do not add up to 100 are passed through unchanged.
	chart := donutChart("t", []slice{
		{Label: "a", Value: 30.004, Color: "#000"},
		{Label: "b", Value: 10, Color: "#fff"},
	})
	script := string(chart.Script)
	assert.Contains(t, script, `"value":30`)
	assert.Contains(t, script, `"value":10`)
}

func TestDonutChart_SingleFullSlice(t *testing.T) {
	chart := donutChart("t", []slice{
		{Label: "Sin Riesgo", Value: 100, Color: colorNoRisk},
		{Label: "Riesgo", Value: 0, Color: colorRisk},
	})
	// Both entries stay in the legend.
	script := string(chart.Script)
	assert.Contains(t, script, `"value":100`)
	assert.Contains(t, script, `"value":0`)
	assert.Contains(t, script, `"Riesgo"`)
}
