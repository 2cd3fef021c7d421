package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

func TestRegisterAnalysisTools_Listed(t *testing.T) {
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{Analysis: &fakeAnalysis{}, Datasets: &fakeDatasets{}, Logger: zap.NewNop()})

	resp := handle(t, s, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_data", "list_datasets"}, names)
}

func TestAskData_Complete(t *testing.T) {
	payload := models.AnalysisPayload{
		Answer:          "Stark Industries leads.",
		SQLQuery:        "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3",
		RowCount:        250,
		Visualizations:  []models.ChartDescriptor{},
		Recommendations: []string{"Upsell Hooli"},
	}
	for i := 0; i < 250; i++ {
		payload.TableData = append(payload.TableData, map[string]any{"name": fmt.Sprintf("c%d", i)})
	}
	analysis := &fakeAnalysis{event: models.CompleteEvent{Payload: payload}}
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{Analysis: analysis, Datasets: &fakeDatasets{}, Logger: zap.NewNop()})

	resp := callTool(t, s, "ask_data", map[string]any{"question": "top customers", "table": " customers "})
	require.Nil(t, resp.Error)
	require.Len(t, resp.Result.Content, 1)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, models.Question{Text: "top customers", DataFile: "customers"}, analysis.question)

	var got askResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, "Stark Industries leads.", got.Answer)
	assert.Equal(t, int64(250), got.RowCount)
	assert.Equal(t, MaxToolRows, got.ReturnedRows)
	assert.Len(t, got.Rows, MaxToolRows)
	assert.Equal(t, []string{"Upsell Hooli"}, got.Recommendations)
}

func TestAskData_FailedEventIsToolError(t *testing.T) {
	analysis := &fakeAnalysis{event: models.FailedEvent{Code: "execution_rejected", Message: "query rejected (not_select)"}}
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{Analysis: analysis, Datasets: &fakeDatasets{}, Logger: zap.NewNop()})

	resp := callTool(t, s, "ask_data", map[string]any{"question": "drop customers"})
	require.Nil(t, resp.Error)
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &errResp))
	assert.Equal(t, "execution_rejected", errResp.Code)
}

func TestAskData_MissingQuestion(t *testing.T) {
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{Analysis: &fakeAnalysis{}, Datasets: &fakeDatasets{}, Logger: zap.NewNop()})

	resp := callTool(t, s, "ask_data", map[string]any{"question": "  "})
	assert.True(t, resp.Result.IsError)
	assert.Contains(t, resp.Result.Content[0].Text, "invalid_parameters")
}

func TestAskData_SystemErrorIsProtocolError(t *testing.T) {
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{
		Analysis: &fakeAnalysis{err: errors.New("session ended without a result")},
		Datasets: &fakeDatasets{},
		Logger:   zap.NewNop(),
	})

	resp := callTool(t, s, "ask_data", map[string]any{"question": "q"})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "analysis failed")
}

func TestListDatasets(t *testing.T) {
	ds := &fakeDatasets{info: services.DatasetsInfo{
		Datasets:  []services.DatasetInfo{{Name: "orders", Rows: 30, Columns: 4, SampleColumns: []string{"id"}}},
		TotalRows: 30,
		Status:    "loaded",
		Backend:   "sqlite",
	}}
	s := newToolServer()
	RegisterAnalysisTools(s, &AnalysisToolDeps{Analysis: &fakeAnalysis{}, Datasets: ds, Logger: zap.NewNop()})

	resp := callTool(t, s, "list_datasets", nil)
	require.False(t, resp.Result.IsError)
	var got services.DatasetsInfo
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, ds.info, got)

	ds.info = services.DatasetsInfo{Status: "not_loaded", Datasets: []services.DatasetInfo{}}
	resp = callTool(t, s, "list_datasets", nil)
	assert.True(t, resp.Result.IsError)
	assert.Contains(t, resp.Result.Content[0].Text, services.CodeSchemaUnavailable)
}
