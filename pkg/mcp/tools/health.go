package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// ModelStatus reports circuit state per model tier.
type ModelStatus interface {
	Status() map[string]string
}

type healthResult struct {
	Version string `json:"version"`
	services.HealthReport
}

// RegisterHealthTool adds the health tool. models may be nil, in which case
// the report carries no model section.
func RegisterHealthTool(s *server.MCPServer, datasets services.DatasetService, models ModelStatus, version string) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns store connectivity, table sizes, model availability and the server version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report := datasets.Health(ctx)
		if models != nil {
			report.Models = models.Status()
		}
		result, err := jsonResult(healthResult{Version: version, HealthReport: report})
		if err != nil {
			return nil, fmt.Errorf("marshal health report: %w", err)
		}
		return result, nil
	})
}
