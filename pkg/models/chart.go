package models

import "strings"

// ChartType enumerates the renderable chart kinds.
type ChartType string

const (
	ChartBar        ChartType = "bar"
	ChartLine       ChartType = "line"
	ChartPie        ChartType = "pie"
	ChartDoughnut   ChartType = "doughnut"
	ChartArea       ChartType = "area"
	ChartScatter    ChartType = "scatter"
	ChartRadar      ChartType = "radar"
	ChartStackedBar ChartType = "stacked-bar"
)

var chartTypes = map[string]ChartType{
	"bar":         ChartBar,
	"line":        ChartLine,
	"pie":         ChartPie,
	"doughnut":    ChartDoughnut,
	"donut":       ChartDoughnut,
	"area":        ChartArea,
	"scatter":     ChartScatter,
	"radar":       ChartRadar,
	"stacked-bar": ChartStackedBar,
	"stacked_bar": ChartStackedBar,
	"stackedbar":  ChartStackedBar,
}

// ParseChartType normalizes a model-supplied chart type name.
func ParseChartType(s string) (ChartType, bool) {
	t, ok := chartTypes[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// ChartHint is an advisory, unvalidated charting suggestion from the model.
// Any field may be empty or name a column that does not exist.
type ChartHint struct {
	Type       string `json:"type"`
	Title      string `json:"title,omitempty"`
	XField     string `json:"x_field,omitempty"`
	YField     string `json:"y_field,omitempty"`
	ColorField string `json:"color_field,omitempty"`
	Color      string `json:"color,omitempty"`
}

// ChartEncoding binds result columns to chart axes.
type ChartEncoding struct {
	XField     string `json:"xAxis"`
	YField     string `json:"yAxis"`
	ColorField string `json:"colorField,omitempty"`
	Color      string `json:"color,omitempty"`
}

// ChartDescriptor is a validated, renderable chart. When Truncated is set, Data
// holds the first points of TotalPoints.
type ChartDescriptor struct {
	Type        ChartType        `json:"type"`
	Title       string           `json:"title"`
	Data        []map[string]any `json:"data"`
	Encoding    ChartEncoding    `json:"config"`
	Truncated   bool             `json:"truncated"`
	TotalPoints int              `json:"total_points"`
}
