package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/frames"
)

// FrameRecentTool handles the frame_recent MCP tool.
type FrameRecentTool struct {
	store *frames.Store
}

// NewFrameRecentTool creates a FrameRecentTool.
func NewFrameRecentTool(store *frames.Store) *FrameRecentTool {
	return &FrameRecentTool{store: store}
}

// Definition returns the MCP tool definition for frame_recent.
func (t *FrameRecentTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_recent",
		mcp.WithDescription(
			"List the most recently saved frames. Use this at session start to pick up "+
				"where the last session left off.",
		),
		mcp.WithString("project",
			mcp.Description("Filter by project name"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
	)
}

// Handle processes the frame_recent tool call.
func (t *FrameRecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recent, err := t.store.RecentFrames(req.GetString("project", ""), intArg(req, "limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing failed: %v", err)), nil
	}

	if len(recent) == 0 {
		return mcp.NewToolResultText("No frames stored yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d frames:\n\n", len(recent))
	for i, f := range recent {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    %s\n",
			i+1, f.Title, f.CreatedAt, frames.Truncate(f.Summary, 200))
		if len(f.Modules) > 0 {
			fmt.Fprintf(&b, "    modules: %s\n", strings.Join(f.Modules, ", "))
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
