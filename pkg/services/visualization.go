package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/typeinfer"
)

// Defaults for ChartConfig.
const (
	DefaultMaxChartPoints   = 100
	DefaultMaxInferred      = 4
	DefaultMaxPieCategories = 12

	// maxHintedCharts bounds how many model hints are honored.
	maxHintedCharts = 5
)

// ChartConfig bounds chart synthesis.
type ChartConfig struct {
	MaxPoints        int
	MaxInferred      int
	MaxPieCategories int
}

func (c ChartConfig) withDefaults() ChartConfig {
	if c.MaxPoints <= 0 {
		c.MaxPoints = DefaultMaxChartPoints
	}
	if c.MaxInferred <= 0 {
		c.MaxInferred = DefaultMaxInferred
	}
	if c.MaxPieCategories <= 0 {
		c.MaxPieCategories = DefaultMaxPieCategories
	}
	return c
}

// VisualizationSynthesizer derives renderable charts from a result set.
type VisualizationSynthesizer interface {
	// Synthesize never fails. Hints are checked against the actual columns;
	// unusable hints fall back to inferred fields, and an empty result yields
	// no charts.
	Synthesize(rs *models.ResultSet, hints []models.ChartHint) []models.ChartDescriptor
}

type visualizationSynthesizer struct {
	config ChartConfig
	logger *zap.Logger
}

// NewVisualizationSynthesizer creates a synthesizer.
func NewVisualizationSynthesizer(config ChartConfig, logger *zap.Logger) VisualizationSynthesizer {
	return &visualizationSynthesizer{
		config: config.withDefaults(),
		logger: logger.Named("visualization"),
	}
}

var _ VisualizationSynthesizer = (*visualizationSynthesizer)(nil)

// axisKind is how a result column behaves on a chart axis.
type axisKind int

const (
	axisCategorical axisKind = iota
	axisDate
	axisNumeric
)

type columnProfile struct {
	index    int
	name     string
	kind     axisKind
	distinct int
}

func (s *visualizationSynthesizer) Synthesize(rs *models.ResultSet, hints []models.ChartHint) (charts []models.ChartDescriptor) {
	charts = []models.ChartDescriptor{}
	if rs == nil || len(rs.Rows) == 0 || len(rs.Columns) == 0 {
		return charts
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Chart synthesis panicked; returning no charts", zap.Any("panic", r))
			charts = []models.ChartDescriptor{}
		}
	}()

	profiles := profileColumns(rs)

	if len(hints) > maxHintedCharts {
		hints = hints[:maxHintedCharts]
	}
	for _, h := range hints {
		if c, ok := s.fromHint(rs, profiles, h); ok && !containsChart(charts, c) {
			charts = append(charts, c)
		}
	}
	if len(charts) > 0 {
		return charts
	}

	if len(hints) > 0 {
		s.logger.Debug("No chart hint was usable, inferring charts", zap.Int("hints", len(hints)))
	}
	return s.infer(rs, profiles)
}

// profileColumns classifies columns by their values. Text that parses as a
// number counts as numeric; a declared date or date-shaped text is a date.
func profileColumns(rs *models.ResultSet) []columnProfile {
	profiles := make([]columnProfile, len(rs.Columns))
	for i, col := range rs.Columns {
		seen, numeric, dates := 0, true, true
		distinct := make(map[string]struct{})
		for _, row := range rs.Rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			seen++
			v := row[i]
			if _, ok := typeinfer.ToFloat(v); !ok {
				numeric = false
			}
			if !typeinfer.IsDate(v) {
				dates = false
			}
			distinct[typeinfer.Label(v)] = struct{}{}
		}

		kind := axisCategorical
		switch {
		case seen > 0 && numeric:
			kind = axisNumeric
		case col.Type == models.SemanticDate || (seen > 0 && dates):
			kind = axisDate
		}
		profiles[i] = columnProfile{index: i, name: col.Name, kind: kind, distinct: len(distinct)}
	}
	return profiles
}

func firstOfKind(profiles []columnProfile, skip int, kinds ...axisKind) (columnProfile, bool) {
	for _, k := range kinds {
		for _, p := range profiles {
			if p.index != skip && p.kind == k {
				return p, true
			}
		}
	}
	return columnProfile{}, false
}

func (s *visualizationSynthesizer) fromHint(rs *models.ResultSet, profiles []columnProfile, h models.ChartHint) (models.ChartDescriptor, bool) {
	x, ok := profileByName(rs, profiles, h.XField)
	if !ok {
		if x, ok = firstOfKind(profiles, -1, axisCategorical, axisDate); !ok {
			return models.ChartDescriptor{}, false
		}
	}

	y, ok := profileByName(rs, profiles, h.YField)
	if !ok || y.kind != axisNumeric || y.index == x.index {
		if y, ok = firstOfKind(profiles, x.index, axisNumeric); !ok {
			return models.ChartDescriptor{}, false
		}
	}

	chartType, ok := models.ParseChartType(h.Type)
	if !ok {
		chartType = defaultChartType(x)
	}

	var color *columnProfile
	if c, ok := profileByName(rs, profiles, h.ColorField); ok && c.index != x.index && c.index != y.index {
		color = &c
	}

	title := h.Title
	if title == "" {
		title = defaultTitle(x, y)
	}
	return s.build(rs, chartType, title, x, y, color, h.Color), true
}

// infer pairs the first categorical or date column with up to MaxInferred
// numeric columns. Without such a column, two numeric columns make a scatter.
func (s *visualizationSynthesizer) infer(rs *models.ResultSet, profiles []columnProfile) []models.ChartDescriptor {
	charts := []models.ChartDescriptor{}

	x, ok := firstOfKind(profiles, -1, axisCategorical, axisDate)
	if !ok {
		nums := numericProfiles(profiles, -1, 2)
		if len(nums) == 2 {
			charts = append(charts, s.build(rs, models.ChartScatter, defaultTitle(nums[0], nums[1]), nums[0], nums[1], nil, ""))
		}
		return charts
	}

	ys := numericProfiles(profiles, x.index, s.config.MaxInferred)
	for i, y := range ys {
		chartType := defaultChartType(x)
		if x.kind == axisDate && i%2 == 1 {
			chartType = models.ChartArea
		}
		charts = append(charts, s.build(rs, chartType, defaultTitle(x, y), x, y, nil, ""))
	}

	if len(ys) == 1 && x.kind == axisCategorical && x.distinct <= s.config.MaxPieCategories && len(charts) < s.config.MaxInferred {
		y := ys[0]
		charts = append(charts, s.build(rs, models.ChartPie, fmt.Sprintf("Share of %s by %s", y.name, x.name), x, y, nil, ""))
	}
	return charts
}

// build copies at most MaxPoints rows, in result order, into chart records.
func (s *visualizationSynthesizer) build(rs *models.ResultSet, chartType models.ChartType, title string, x, y columnProfile, color *columnProfile, hexColor string) models.ChartDescriptor {
	total := len(rs.Rows)
	n := total
	if n > s.config.MaxPoints {
		n = s.config.MaxPoints
	}

	data := make([]map[string]any, 0, n)
	for _, row := range rs.Rows[:n] {
		point := map[string]any{
			x.name: axisValue(row, x),
			y.name: axisValue(row, y),
		}
		if color != nil {
			point[color.name] = axisValue(row, *color)
		}
		data = append(data, point)
	}

	enc := models.ChartEncoding{XField: x.name, YField: y.name, Color: hexColor}
	if color != nil {
		enc.ColorField = color.name
	}
	return models.ChartDescriptor{
		Type:        chartType,
		Title:       title,
		Data:        data,
		Encoding:    enc,
		Truncated:   n < total,
		TotalPoints: total,
	}
}

// axisValue coerces numeric columns to float64 and renders everything else as
// a label.
func axisValue(row []any, p columnProfile) any {
	if p.index >= len(row) || row[p.index] == nil {
		return nil
	}
	v := row[p.index]
	if p.kind == axisNumeric {
		if f, ok := typeinfer.ToFloat(v); ok {
			return f
		}
	}
	return typeinfer.Label(v)
}

func profileByName(rs *models.ResultSet, profiles []columnProfile, name string) (columnProfile, bool) {
	i := rs.ColumnIndex(name)
	if i < 0 {
		return columnProfile{}, false
	}
	return profiles[i], true
}

func numericProfiles(profiles []columnProfile, skip, limit int) []columnProfile {
	var out []columnProfile
	for _, p := range profiles {
		if len(out) == limit {
			break
		}
		if p.index != skip && p.kind == axisNumeric {
			out = append(out, p)
		}
	}
	return out
}

func defaultChartType(x columnProfile) models.ChartType {
	switch x.kind {
	case axisDate:
		return models.ChartLine
	case axisNumeric:
		return models.ChartScatter
	default:
		return models.ChartBar
	}
}

func defaultTitle(x, y columnProfile) string {
	return fmt.Sprintf("%s by %s", y.name, x.name)
}

func containsChart(charts []models.ChartDescriptor, c models.ChartDescriptor) bool {
	for _, existing := range charts {
		if existing.Type == c.Type && existing.Encoding.XField == c.Encoding.XField && existing.Encoding.YField == c.Encoding.YField {
			return true
		}
	}
	return false
}
