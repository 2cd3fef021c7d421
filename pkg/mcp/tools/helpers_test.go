package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
		Tools   []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool executes a tool through the server's JSON-RPC entry point.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":%s}`, params)
	return handle(t, s, msg)
}

func handle(t *testing.T, s *server.MCPServer, msg string) toolResponse {
	t.Helper()
	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(msg)))
	require.NoError(t, err)
	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func newToolServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}

type fakeAnalysis struct {
	event    models.StreamEvent
	err      error
	question models.Question
}

func (f *fakeAnalysis) Analyze(context.Context, models.Question, chan<- models.StreamEvent) error {
	return nil
}

func (f *fakeAnalysis) Ask(_ context.Context, q models.Question) (models.StreamEvent, error) {
	f.question = q
	return f.event, f.err
}

type fakeDatasets struct {
	info   services.DatasetsInfo
	health services.HealthReport
}

func (f *fakeDatasets) Stats() map[string]int64                      { return nil }
func (f *fakeDatasets) Info() services.DatasetsInfo                   { return f.info }
func (f *fakeDatasets) Health(context.Context) services.HealthReport { return f.health }
func (f *fakeDatasets) Reload(context.Context) (*models.SchemaDescriptor, error) {
	return nil, nil
}
