package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// MaxToolRows caps table rows returned to an MCP client. Charts are already
// capped by the synthesizer.
const MaxToolRows = 100

// AnalysisToolDeps holds the services the analysis tools call.
type AnalysisToolDeps struct {
	Analysis services.AnalysisService
	Datasets services.DatasetService
	Models   ModelStatus // optional
	Logger   *zap.Logger
}

type askResult struct {
	Answer          string                   `json:"answer"`
	TextSummary     string                   `json:"text_summary,omitempty"`
	SQLQuery        string                   `json:"sql_query"`
	RowCount        int64                    `json:"row_count"`
	ReturnedRows    int                      `json:"returned_rows"`
	Rows            []map[string]any         `json:"rows"`
	Visualizations  []models.ChartDescriptor `json:"visualizations"`
	Recommendations []string                 `json:"recommendations"`
}

// RegisterAnalysisTools adds ask_data and list_datasets to the MCP server.
func RegisterAnalysisTools(s *server.MCPServer, deps *AnalysisToolDeps) {
	registerAskDataTool(s, deps)
	registerListDatasetsTool(s, deps)
}

func registerAskDataTool(s *server.MCPServer, deps *AnalysisToolDeps) {
	tool := mcp.NewTool(
		"ask_data",
		mcp.WithDescription(
			"Answer a natural-language question about the loaded dataset. "+
				"Generates a read-only SQL query, runs it and returns the answer, "+
				"the SQL, up to 100 rows, chart descriptors and recommendations.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question, e.g. 'top 3 customers by revenue'"),
		),
		mcp.WithString(
			"table",
			mcp.Description("Optional table name to focus the question on"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}

		event, err := deps.Analysis.Ask(ctx, models.Question{
			Text:     question,
			DataFile: strings.TrimSpace(req.GetString("table", "")),
		})
		if err != nil {
			return nil, fmt.Errorf("analysis failed: %w", err)
		}

		switch ev := event.(type) {
		case models.CompleteEvent:
			return jsonResult(toAskResult(ev.Payload))
		case models.FailedEvent:
			deps.Logger.Debug("ask_data failed", zap.String("code", ev.Code))
			return NewErrorResult(ev.Code, ev.Message), nil
		default:
			return nil, fmt.Errorf("unexpected terminal event %T", event)
		}
	})
}

func toAskResult(p models.AnalysisPayload) askResult {
	rows := p.TableData
	if len(rows) > MaxToolRows {
		rows = rows[:MaxToolRows]
	}
	return askResult{
		Answer:          p.Answer,
		TextSummary:     p.TextSummary,
		SQLQuery:        p.SQLQuery,
		RowCount:        p.RowCount,
		ReturnedRows:    len(rows),
		Rows:            rows,
		Visualizations:  p.Visualizations,
		Recommendations: p.Recommendations,
	}
}

func registerListDatasetsTool(s *server.MCPServer, deps *AnalysisToolDeps) {
	tool := mcp.NewTool(
		"list_datasets",
		mcp.WithDescription("List the tables available for questions with their row and column counts"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info := deps.Datasets.Info()
		if info.Status != "loaded" {
			return NewErrorResult(services.CodeSchemaUnavailable, "no dataset schema is loaded"), nil
		}
		return jsonResult(info)
	})
}
