package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

func samplePayload() models.AnalysisPayload {
	return models.AnalysisPayload{
		Answer:   "Acme leads revenue",
		SQLQuery: "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3",
		Columns: []models.ResultColumn{
			{Name: "name", Type: models.SemanticCategorical},
			{Name: "revenue", Type: models.SemanticNumeric},
		},
		TableData: []map[string]any{
			{"name": "Acme", "revenue": float64(1200)},
			{"name": "Globex", "revenue": 950.5},
			{"name": "Initech", "revenue": nil},
		},
		RowCount:      3,
		ExecutionTime: 0.012,
		Visualizations: []models.ChartDescriptor{
			{Type: models.ChartBar, Title: "Revenue by name", Encoding: models.ChartEncoding{XField: "name", YField: "revenue"}},
		},
		Recommendations: []string{"Compare with last quarter"},
	}
}

func TestTableRows_FollowsColumnOrder(t *testing.T) {
	header, rows, hidden := tableRows(samplePayload(), 0)

	assert.Equal(t, []string{"name", "revenue"}, header)
	assert.Equal(t, [][]string{
		{"Acme", "1200"},
		{"Globex", "950.5"},
		{"Initech", "NULL"},
	}, rows)
	assert.Zero(t, hidden)
}

func TestTableRows_LimitsRows(t *testing.T) {
	_, rows, hidden := tableRows(samplePayload(), 2)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, hidden)
}

func TestTableRows_DerivesHeaderWithoutColumns(t *testing.T) {
	payload := models.AnalysisPayload{TableData: []map[string]any{{"b": "x", "a": true}}}

	header, rows, _ := tableRows(payload, 0)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Equal(t, [][]string{{"true", "x"}}, rows)

	header, rows, _ = tableRows(models.AnalysisPayload{}, 0)
	assert.Empty(t, header)
	assert.Empty(t, rows)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"text", "text"},
		{float64(42), "42"},
		{0.25, "0.25"},
		{false, "false"},
		{json.Number("17"), "17"},
		{[]any{"a", float64(1)}, `["a",1]`},
		{int64(9), "9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCell(tt.in))
	}
}

func TestChartLines(t *testing.T) {
	charts := []models.ChartDescriptor{
		{Type: models.ChartPie, Title: "Share", Encoding: models.ChartEncoding{XField: "city", YField: "orders"}},
		{
			Type: models.ChartLine, Title: "Trend",
			Encoding:  models.ChartEncoding{XField: "day", YField: "total"},
			Data:      []map[string]any{{}, {}},
			Truncated: true, TotalPoints: 40,
		},
	}

	assert.Equal(t, []string{
		"pie: Share (x: city, y: orders)",
		"line: Trend (x: day, y: total), first 2 of 40 points",
	}, chartLines(charts))
}

func TestJoinLimited(t *testing.T) {
	assert.Equal(t, "a, b", joinLimited([]string{"a", "b"}, 5))
	assert.Equal(t, "a, b, +2", joinLimited([]string{"a", "b", "c", "d"}, 2))
	assert.Equal(t, "", joinLimited(nil, 3))
}

func TestEncode_YAMLUsesWireNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, "yaml", samplePayload()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "Acme leads revenue", doc["answer"])
	assert.Equal(t, 3, doc["row_count"])
	assert.Contains(t, buf.String(), "sql_query:")
	assert.Contains(t, buf.String(), "revenue: 1200\n")
	assert.NotContains(t, buf.String(), "sqlquery")
}

func TestEncode_JSONFailure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, "json", models.FailedEvent{Code: "execution_timeout", Message: "query timed out"}))
	assert.JSONEq(t, `{"type":"error","code":"execution_timeout","error":"query timed out"}`, buf.String())
}

func TestValidateOutput(t *testing.T) {
	for _, ok := range []string{"table", "json", "yaml"} {
		assert.NoError(t, validateOutput(ok))
	}
	assert.Error(t, validateOutput("csv"))
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "ekaya-ask dev\n", out.String())
}

func TestRootCommand_RequiresQuestion(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	assert.Error(t, cmd.Execute())
}
