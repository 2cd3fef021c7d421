package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-analyst/pkg/llm"
	"github.com/ekaya-inc/ekaya-analyst/pkg/metrics"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// Defaults for GeneratorConfig.
const (
	DefaultModelCallTimeout = 30 * time.Second
	DefaultMaxPromptBytes   = 12000
	DefaultTemperature      = 0.2
)

// GeneratorConfig bounds the generation stage.
type GeneratorConfig struct {
	// Dialect names the store's SQL dialect in the prompt (sqlite, postgres, mssql).
	Dialect        string
	CallTimeout    time.Duration
	Temperature    float64
	MaxPromptBytes int
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultModelCallTimeout
	}
	if c.MaxPromptBytes <= 0 {
		c.MaxPromptBytes = DefaultMaxPromptBytes
	}
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	return c
}

// QueryGenerator turns a question into SQL plus chart hints.
type QueryGenerator interface {
	// Generate asks the primary model, then the secondary once, for a query
	// answering the question. Errors are *GenerationError unless ctx ended.
	Generate(ctx context.Context, question models.Question, schema *models.SchemaDescriptor) (*models.GeneratedQuery, error)
}

type queryGenerator struct {
	tiers  *llm.Tiers
	config GeneratorConfig
	logger *zap.Logger
}

// NewQueryGenerator creates a generator over the configured model tiers.
func NewQueryGenerator(tiers *llm.Tiers, config GeneratorConfig, logger *zap.Logger) QueryGenerator {
	return &queryGenerator{
		tiers:  tiers,
		config: config.withDefaults(),
		logger: logger.Named("query-generator"),
	}
}

var _ QueryGenerator = (*queryGenerator)(nil)

// errUnusableOutput marks a model response that arrived but held no query.
var errUnusableOutput = errors.New("response contains no JSON object with a sql field")

func (g *queryGenerator) Generate(ctx context.Context, question models.Question, schema *models.SchemaDescriptor) (*models.GeneratedQuery, error) {
	prompt := buildGenerationPrompt(question, schema.Narrow(question.DataFile), g.config.MaxPromptBytes)
	system := generationSystemMessage(g.config.Dialect)

	tiers := []struct {
		name   string
		client llm.LLMClient
	}{
		{"primary", g.tiers.Primary},
		{"secondary", g.tiers.Secondary},
	}

	var (
		lastErr   error
		sawOutput bool
	)
	for i, tier := range tiers {
		if tier.client == nil {
			continue
		}
		if i > 0 {
			metrics.IncrementModelFallback()
			g.logger.Warn("Falling back to secondary model",
				zap.String("model", tier.client.GetModel()),
				zap.Error(lastErr))
		}

		gq, err := g.attempt(ctx, tier.client, prompt, system)
		if err == nil {
			metrics.ObserveModelCall(tier.name, "ok")
			return gq, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, errUnusableOutput) {
			sawOutput = true
			metrics.ObserveModelCall(tier.name, "unusable")
		} else {
			metrics.ObserveModelCall(tier.name, "error")
		}
		g.logger.Error("Query generation attempt failed",
			zap.String("tier", tier.name),
			zap.String("model", tier.client.GetModel()),
			zap.Error(err))
		lastErr = err
	}

	kind := GenerationUnavailable
	if sawOutput {
		kind = GenerationNoUsableOutput
	}
	return nil, &GenerationError{Kind: kind, Cause: lastErr}
}

func (g *queryGenerator) attempt(ctx context.Context, client llm.LLMClient, prompt, system string) (*models.GeneratedQuery, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
	defer cancel()

	res, err := client.GenerateResponse(callCtx, prompt, system, g.config.Temperature)
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Content) == "" {
		return nil, llm.NewError(llm.ErrorTypeEmpty, "model returned an empty response", true, nil)
	}

	gq, err := parseGeneratedQuery(res.Content)
	if err != nil {
		return nil, err
	}
	gq.Model = client.GetModel()
	return gq, nil
}

func generationSystemMessage(dialect string) string {
	if dialect == "" {
		dialect = "sqlite"
	}
	return fmt.Sprintf(`You are an expert data analyst writing %s SQL.
Answer the user's question with ONE read-only SELECT statement over the tables listed.
Never modify data. Prefer aggregated results and add an ORDER BY when ranking.

Return ONLY a JSON object in this format:
{
  "sql": "SELECT ...",
  "answer": "one sentence describing what the query answers",
  "charts": [
    {"type": "bar", "title": "Chart title", "x_field": "result column", "y_field": "result column", "color": "#8884d8"}
  ],
  "recommendations": ["short follow-up insight"]
}
Chart types: bar, line, pie, doughnut, area, scatter, radar, stacked-bar.
Chart fields must name columns of your query's result.`, dialect)
}

// buildGenerationPrompt embeds table and column names, semantic types and row
// counts, never data values. Tables that do not fit in maxBytes are listed as
// omitted.
func buildGenerationPrompt(question models.Question, schema *models.SchemaDescriptor, maxBytes int) string {
	var head strings.Builder
	head.WriteString("Question: ")
	head.WriteString(strings.TrimSpace(question.Text))
	head.WriteString("\n\nAvailable tables:\n")

	const tail = "\nReturn ONLY the JSON object."
	budget := maxBytes - head.Len() - len(tail)

	var body strings.Builder
	tables := schema.Tables()
	for i, t := range tables {
		line := describeTable(t)
		if body.Len()+len(line) > budget {
			fmt.Fprintf(&body, "(%d more tables omitted)\n", len(tables)-i)
			break
		}
		body.WriteString(line)
	}

	return head.String() + body.String() + tail
}

func describeTable(t models.SchemaTable) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = fmt.Sprintf("%s %s", c.Name, c.SemanticType)
	}
	return fmt.Sprintf("- %s (%d rows): %s\n", t.Name, t.RowCount, strings.Join(cols, ", "))
}

// rawGeneration is the loosely typed shape models answer with. Both "sql" and
// "sql_query" are accepted, as are "charts" and "visualizations".
type rawGeneration struct {
	SQL             json.RawMessage `json:"sql"`
	SQLQuery        json.RawMessage `json:"sql_query"`
	Charts          json.RawMessage `json:"charts"`
	Visualizations  json.RawMessage `json:"visualizations"`
	Answer          json.RawMessage `json:"answer"`
	Recommendations json.RawMessage `json:"recommendations"`
}

type rawChartConfig struct {
	XAxis json.RawMessage `json:"xAxis"`
	YAxis json.RawMessage `json:"yAxis"`
	Color json.RawMessage `json:"color"`
}

type rawChartHint struct {
	Type        json.RawMessage `json:"type"`
	Title       json.RawMessage `json:"title"`
	XField      json.RawMessage `json:"x_field"`
	YField      json.RawMessage `json:"y_field"`
	ColorField  json.RawMessage `json:"color_field"`
	Color       json.RawMessage `json:"color"`
	ChartConfig *rawChartConfig `json:"chart_config"`
	Config      *rawChartConfig `json:"config"`
}

// parseGeneratedQuery extracts the first JSON object from a model response.
// It does not judge the SQL; validation is a separate stage.
func parseGeneratedQuery(content string) (*models.GeneratedQuery, error) {
	raw, err := llm.ParseJSONObject[rawGeneration](content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnusableOutput, err)
	}

	sqlText := jsonutil.FlexibleStringValue(raw.SQL)
	if strings.TrimSpace(sqlText) == "" {
		sqlText = jsonutil.FlexibleStringValue(raw.SQLQuery)
	}
	sqlText = stripSQLFence(sqlText)
	if sqlText == "" {
		return nil, errUnusableOutput
	}

	hintsRaw := raw.Charts
	if len(hintsRaw) == 0 || string(hintsRaw) == "null" {
		hintsRaw = raw.Visualizations
	}

	return &models.GeneratedQuery{
		SQL:             sqlText,
		ChartHints:      parseChartHints(hintsRaw),
		Answer:          strings.TrimSpace(jsonutil.FlexibleStringValue(raw.Answer)),
		Recommendations: jsonutil.FlexibleStringList(raw.Recommendations),
	}, nil
}

// parseChartHints is lenient: a malformed hint list yields no hints.
func parseChartHints(raw json.RawMessage) []models.ChartHint {
	if len(raw) == 0 {
		return nil
	}
	var items []rawChartHint
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	hints := make([]models.ChartHint, 0, len(items))
	for _, item := range items {
		h := models.ChartHint{
			Type:       jsonutil.FlexibleStringValue(item.Type),
			Title:      jsonutil.FlexibleStringValue(item.Title),
			XField:     jsonutil.FlexibleStringValue(item.XField),
			YField:     jsonutil.FlexibleStringValue(item.YField),
			ColorField: jsonutil.FlexibleStringValue(item.ColorField),
			Color:      jsonutil.FlexibleStringValue(item.Color),
		}
		for _, cfg := range []*rawChartConfig{item.ChartConfig, item.Config} {
			if cfg == nil {
				continue
			}
			if h.XField == "" {
				h.XField = jsonutil.FlexibleStringValue(cfg.XAxis)
			}
			if h.YField == "" {
				h.YField = jsonutil.FlexibleStringValue(cfg.YAxis)
			}
			if h.Color == "" {
				h.Color = jsonutil.FlexibleStringValue(cfg.Color)
			}
		}
		hints = append(hints, h)
	}
	return hints
}

// stripSQLFence removes a markdown code fence some models wrap SQL in.
func stripSQLFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
