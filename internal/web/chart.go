package web

import (
	"html/template"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	colorNoRisk = "#38ada9"
	colorRisk   = "#3c6382"

	// chartID doubles as a JS identifier in the generated script.
	chartID         = "risk_chart"
	chartAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
)

type slice struct {
	Label string
	Value float64
	Color string
}

// chartView is a rendered echarts snippet ready for the page template.
type chartView struct {
	Element template.HTML
	Script  template.HTML
	Library string
}

// donutChart renders the probabilities as an echarts pie with a hole. Values
// are shown as given, the pie itself sizes slices by share of the total.
func donutChart(title string, slices []slice) chartView {
	pie := charts.NewPie()

	colors := make(opts.Colors, 0, len(slices))
	data := make([]opts.PieData, 0, len(slices))
	for _, s := range slices {
		colors = append(colors, s.Color)
		data = append(data, opts.PieData{Name: s.Label, Value: math.Round(s.Value*100) / 100})
	}

	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			ChartID:    chartID,
			AssetsHost: chartAssetsHost,
			Width:      "480px",
			Height:     "380px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Left: "center"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithColorsOpts(colors),
	)
	pie.AddSeries("Probabilidades", data,
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"30%", "75%"}}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}%"}),
	)

	snippet := pie.RenderSnippet()
	return chartView{
		Element: template.HTML(snippet.Element),
		Script:  template.HTML(snippet.Script),
		Library: chartAssetsHost + "echarts.min.js",
	}
}
