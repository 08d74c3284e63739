package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
)

// RebuildTool handles the atlas_rebuild MCP tool.
type RebuildTool struct {
	service *atlas.Service
}

// NewRebuildTool creates a RebuildTool.
func NewRebuildTool(service *atlas.Service) *RebuildTool {
	return &RebuildTool{service: service}
}

// Definition returns the MCP tool definition for atlas_rebuild.
func (t *RebuildTool) Definition() mcp.Tool {
	return mcp.NewTool("atlas_rebuild",
		mcp.WithDescription(
			"Rebuild the module atlas from the policy and all stored frames, then validate it. "+
				"Concurrent rebuild requests are coalesced into one rebuild and share its result.",
		),
	)
}

// Handle processes the atlas_rebuild tool call.
func (t *RebuildTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := t.service.TriggerRebuild()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rebuild unavailable: %v", err)), nil
	}

	var b strings.Builder
	if result.Success {
		fmt.Fprintf(&b, "Atlas rebuilt in %dms: %d modules, %d edges, %d frames considered.\n",
			result.DurationMs,
			result.Atlas.Metadata.FrameCount,
			result.Atlas.Metadata.EdgeCount,
			result.FrameCount)
		if result.Validation != nil {
			for _, w := range result.Validation.Warnings {
				fmt.Fprintf(&b, "Warning: %s\n", w)
			}
		}
	} else {
		fmt.Fprintf(&b, "Atlas rebuild FAILED after %dms: %s\n", result.DurationMs, result.Err)
		if result.Validation != nil {
			for _, e := range result.Validation.Errors {
				fmt.Fprintf(&b, "  - %s\n", e)
			}
		}
	}
	fmt.Fprintf(&b, "Timestamp: %s\n", result.Timestamp)

	return mcp.NewToolResultText(b.String()), nil
}
