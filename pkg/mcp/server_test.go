package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

type nopAnalysis struct{}

func (nopAnalysis) Analyze(context.Context, models.Question, chan<- models.StreamEvent) error {
	return nil
}

func (nopAnalysis) Ask(context.Context, models.Question) (models.StreamEvent, error) {
	return models.FailedEvent{Code: "internal"}, nil
}

type nopDatasets struct{}

func (nopDatasets) Stats() map[string]int64                      { return map[string]int64{} }
func (nopDatasets) Info() services.DatasetsInfo                   { return services.DatasetsInfo{} }
func (nopDatasets) Health(context.Context) services.HealthReport { return services.HealthReport{} }
func (nopDatasets) Reload(context.Context) (*models.SchemaDescriptor, error) {
	return nil, nil
}

func listTools(t *testing.T, s *Server) []string {
	t.Helper()
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestServer_RegisterAnalystTools(t *testing.T) {
	s := NewServer("ekaya-analyst", "1.0.0", zap.NewNop())
	deps := &tools.AnalysisToolDeps{Analysis: nopAnalysis{}, Datasets: nopDatasets{}}
	s.RegisterAnalystTools(deps, "1.0.0")

	assert.ElementsMatch(t, []string{"ask_data", "list_datasets", "health"}, listTools(t, s))
	assert.NotNil(t, deps.Logger, "server logger is used when none is given")
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("ekaya-analyst", "1.0.0", zap.NewNop())

	called := false
	s.RegisterTool(mcp.NewTool("echo", mcp.WithDescription("echo")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})

	assert.False(t, called, "handler should not run during registration")
	assert.Contains(t, listTools(t, s), "echo")
}

func TestServer_Handler(t *testing.T) {
	s := NewServer("ekaya-analyst", "1.0.0", zap.NewNop())
	assert.NotNil(t, s.Handler())
}
