package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-analyst/pkg/llm"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/metrics"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-analyst/pkg/sql"
	"github.com/ekaya-inc/ekaya-analyst/pkg/typeinfer"
)

const (
	// summaryTopValues is how many frequent values per categorical column go
	// into the summary.
	summaryTopValues = 5
	// summaryPreviewRows is how many leading rows the model may list in the
	// text summary.
	summaryPreviewRows = 10
	// summaryCellBytes caps each preview cell and categorical label.
	summaryCellBytes = 200
	// maxSummaryBytes caps the encoded summary placed in the prompt.
	maxSummaryBytes = 16 << 10
	// maxRecommendations caps advisory recommendations.
	maxRecommendations = 5
)

// NarrativeComposer writes the answer and recommendations for a result.
type NarrativeComposer interface {
	// Compose never fails: when the model cannot help, it falls back to the
	// answer and recommendations carried by the generated query, then to a
	// templated answer built from the result summary.
	Compose(ctx context.Context, question models.Question, rs *models.ResultSet, generated *models.GeneratedQuery) models.Narrative
}

type narrativeComposer struct {
	client      llm.LLMClient
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewNarrativeComposer creates a composer. A nil client always uses the
// fallback.
func NewNarrativeComposer(client llm.LLMClient, callTimeout time.Duration, logger *zap.Logger) NarrativeComposer {
	if callTimeout <= 0 {
		callTimeout = DefaultModelCallTimeout
	}
	return &narrativeComposer{
		client:      client,
		callTimeout: callTimeout,
		logger:      logger.Named("narrative"),
	}
}

var _ NarrativeComposer = (*narrativeComposer)(nil)

// ValueCount is a categorical value and how often it appears.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnSummary holds aggregate statistics for one result column.
type ColumnSummary struct {
	Name      string              `json:"name"`
	Type      models.SemanticType `json:"type"`
	Min       *float64            `json:"min,omitempty"`
	Max       *float64            `json:"max,omitempty"`
	Sum       *float64            `json:"sum,omitempty"`
	TopValues []ValueCount        `json:"top_values,omitempty"`
}

// ResultSummary is the bounded view of a result sent to the model.
type ResultSummary struct {
	RowCount  int64            `json:"row_count"`
	Returned  int              `json:"rows_returned"`
	Columns   []ColumnSummary  `json:"columns"`
	FirstRows []map[string]any `json:"first_rows"`
}

// SummarizeResult computes row count, numeric min/max/sum and the most
// frequent categorical values, plus the leading rows in result order.
func SummarizeResult(rs *models.ResultSet) ResultSummary {
	summary := ResultSummary{Columns: []ColumnSummary{}, FirstRows: []map[string]any{}}
	if rs == nil {
		return summary
	}
	summary.RowCount = rs.RowCountTotal
	summary.Returned = len(rs.Rows)

	for i, col := range rs.Columns {
		cs := ColumnSummary{Name: col.Name, Type: col.Type}
		if col.Type == models.SemanticNumeric {
			var minV, maxV, sum float64
			seen := false
			for _, row := range rs.Rows {
				if i >= len(row) {
					continue
				}
				f, ok := typeinfer.ToFloat(row[i])
				if !ok {
					continue
				}
				if !seen || f < minV {
					minV = f
				}
				if !seen || f > maxV {
					maxV = f
				}
				sum += f
				seen = true
			}
			if seen {
				cs.Min, cs.Max = &minV, &maxV
				if !math.IsInf(sum, 0) {
					cs.Sum = &sum
				}
			}
		} else {
			cs.TopValues = topValues(rs.Rows, i, summaryTopValues)
		}
		summary.Columns = append(summary.Columns, cs)
	}

	for _, rec := range rs.Records() {
		if len(summary.FirstRows) == summaryPreviewRows {
			break
		}
		for k, v := range rec {
			v = typeinfer.Normalize(v)
			if str, ok := v.(string); ok {
				v = logging.TruncateString(str, summaryCellBytes)
			}
			rec[k] = v
		}
		summary.FirstRows = append(summary.FirstRows, rec)
	}
	return summary
}

func topValues(rows [][]any, col, limit int) []ValueCount {
	counts := make(map[string]int)
	var order []string
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		label := logging.TruncateString(typeinfer.Label(row[col]), summaryCellBytes)
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}
	// Stable on first appearance so ties keep the query's ordering.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]ValueCount, len(order))
	for i, v := range order {
		out[i] = ValueCount{Value: v, Count: counts[v]}
	}
	return out
}

// encodeSummary marshals the summary within limit bytes, dropping preview rows
// from the end and then trailing columns until it fits.
func encodeSummary(summary ResultSummary, limit int) ([]byte, error) {
	for {
		data, err := json.Marshal(summary)
		if err != nil || len(data) <= limit {
			return data, err
		}
		switch {
		case len(summary.FirstRows) > 0:
			summary.FirstRows = summary.FirstRows[:len(summary.FirstRows)-1]
		case len(summary.Columns) > 1:
			summary.Columns = summary.Columns[:len(summary.Columns)-1]
		default:
			return data, nil
		}
	}
}

func (c *narrativeComposer) Compose(ctx context.Context, question models.Question, rs *models.ResultSet, generated *models.GeneratedQuery) models.Narrative {
	summary := SummarizeResult(rs)

	if c.client != nil {
		n, err := c.fromModel(ctx, question, summary)
		if err == nil {
			metrics.ObserveModelCall("narrative", "ok")
			return n
		}
		metrics.ObserveModelCall("narrative", "error")
		if ctx.Err() == nil {
			c.logger.Warn("Narrative model call failed, using fallback", zap.Error(err))
		}
	}
	return fallbackNarrative(rs, summary, generated)
}

type rawNarrative struct {
	Answer          json.RawMessage `json:"answer"`
	TextSummary     json.RawMessage `json:"text_summary"`
	Recommendations json.RawMessage `json:"recommendations"`
}

func (c *narrativeComposer) fromModel(ctx context.Context, question models.Question, summary ResultSummary) (models.Narrative, error) {
	summaryJSON, err := encodeSummary(summary, maxSummaryBytes)
	if err != nil {
		return models.Narrative{}, fmt.Errorf("encode summary: %w", err)
	}

	prompt := fmt.Sprintf(`Question: %s

Result summary (JSON):
%s

Return ONLY a JSON object:
{"answer": "2-3 sentence answer to the question", "text_summary": "a short formatted listing of the first rows", "recommendations": ["actionable insight"]}`,
		strings.TrimSpace(question.Text), summaryJSON)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.client.GenerateResponse(callCtx, prompt,
		"You are a concise business analyst. Base every statement on the summary provided.", 0.3)
	if err != nil {
		return models.Narrative{}, llm.ClassifyError(err)
	}
	if res == nil {
		return models.Narrative{}, llm.NewError(llm.ErrorTypeEmpty, "model returned no response", true, nil)
	}

	raw, err := llm.ParseJSONObject[rawNarrative](res.Content)
	if err != nil {
		return models.Narrative{}, err
	}
	answer := strings.TrimSpace(jsonutil.FlexibleStringValue(raw.Answer))
	if answer == "" {
		return models.Narrative{}, fmt.Errorf("narrative response has no answer")
	}

	return models.Narrative{
		Answer:          answer,
		TextSummary:     strings.TrimSpace(jsonutil.FlexibleStringValue(raw.TextSummary)),
		Recommendations: capRecommendations(jsonutil.FlexibleStringList(raw.Recommendations)),
		FromModel:       true,
	}, nil
}

// fallbackNarrative prefers the answer the generation model already gave and
// otherwise templates one from the summary.
func fallbackNarrative(rs *models.ResultSet, summary ResultSummary, generated *models.GeneratedQuery) models.Narrative {
	n := models.Narrative{Recommendations: []string{}}
	if generated != nil {
		n.Answer = generated.Answer
		n.Recommendations = capRecommendations(generated.Recommendations)
	}
	if n.Answer == "" {
		sql := ""
		if generated != nil {
			sql = generated.SQL
		}
		n.Answer = templatedAnswer(rs, summary, sql)
	}
	return n
}

// aggregatePattern spots queries whose rows are groups or totals rather than
// records of the table read.
var aggregatePattern = regexp.MustCompile(`(?i)\bGROUP\s+BY\b|\b(COUNT|SUM|AVG|MIN|MAX|TOTAL)\s*\(`)

// rowNoun names the result rows after the table a plain single-table query
// reads, e.g. "customer"/"customers", and falls back to "row".
func rowNoun(sql string, n int64) string {
	noun := "row"
	if sql != "" && !aggregatePattern.MatchString(sql) {
		tables, err := sqlpkg.ReferencedTables(sql)
		if err == nil && len(tables) > 0 {
			single := true
			for _, t := range tables[1:] {
				single = single && strings.EqualFold(t, tables[0])
			}
			if single {
				noun = inflection.Singular(strings.ReplaceAll(strings.ToLower(tables[0]), "_", " "))
			}
		}
	}
	if n == 1 {
		return noun
	}
	return inflection.Plural(noun)
}

func templatedAnswer(rs *models.ResultSet, summary ResultSummary, sql string) string {
	if summary.Returned == 0 {
		return "No rows matched the question."
	}

	answer := fmt.Sprintf("Found %d %s", summary.RowCount, rowNoun(sql, summary.RowCount))
	if summary.RowCount > int64(summary.Returned) {
		answer += fmt.Sprintf(" (showing the first %d)", summary.Returned)
	}

	if top := topValueLabel(rs); top != "" {
		answer += "; top value is " + top
	}
	return answer + "."
}

// topValueLabel describes the first row: its first label column and its first
// numeric column, e.g. "Stark Industries (305000)".
func topValueLabel(rs *models.ResultSet) string {
	if rs == nil || len(rs.Rows) == 0 {
		return ""
	}
	row := rs.Rows[0]

	var label, number string
	for i, col := range rs.Columns {
		if i >= len(row) || row[i] == nil {
			continue
		}
		if col.Type == models.SemanticNumeric {
			if f, ok := typeinfer.ToFloat(row[i]); ok && number == "" {
				number = strconv.FormatFloat(f, 'f', -1, 64)
			}
			continue
		}
		if label == "" {
			label = logging.TruncateString(typeinfer.Label(row[i]), summaryCellBytes)
		}
	}

	switch {
	case label != "" && number != "":
		return fmt.Sprintf("%s (%s)", label, number)
	case label != "":
		return label
	default:
		return number
	}
}

func capRecommendations(recs []string) []string {
	if recs == nil {
		return []string{}
	}
	if len(recs) > maxRecommendations {
		return recs[:maxRecommendations]
	}
	return recs
}
