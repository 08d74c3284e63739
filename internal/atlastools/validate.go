package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
)

// ValidateTool handles the atlas_validate MCP tool.
type ValidateTool struct {
	service *atlas.Service
}

// NewValidateTool creates a ValidateTool.
func NewValidateTool(service *atlas.Service) *ValidateTool {
	return &ValidateTool{service: service}
}

// Definition returns the MCP tool definition for atlas_validate.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("atlas_validate",
		mcp.WithDescription(
			"Run structural integrity checks on the policy-derived atlas: dangling edges, "+
				"weight ranges, metadata counts, orphaned modules, and reachability.",
		),
	)
}

// Handle processes the atlas_validate tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	built, result, err := t.service.Validate()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed to run: %v", err)), nil
	}

	var b strings.Builder
	if result.Valid {
		fmt.Fprintf(&b, "Atlas is structurally valid: %d modules, %d edges.\n",
			len(built.Nodes), len(built.Edges))
	} else {
		fmt.Fprintf(&b, "Atlas is INVALID (%d error(s)):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if !atlas.CheckReachability(built) {
		b.WriteString("Note: some modules are unreachable from the graph roots.\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
