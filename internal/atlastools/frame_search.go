package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/frames"
)

// FrameSearchTool handles the frame_search MCP tool.
type FrameSearchTool struct {
	store *frames.Store
}

// NewFrameSearchTool creates a FrameSearchTool.
func NewFrameSearchTool(store *frames.Store) *FrameSearchTool {
	return &FrameSearchTool{store: store}
}

// Definition returns the MCP tool definition for frame_search.
func (t *FrameSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_search",
		mcp.WithDescription(
			"Search stored frames across all sessions. Use this to find when a module was "+
				"last touched, why a change was made, or what a past session did.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — natural language or keywords"),
		),
		mcp.WithString("project",
			mcp.Description("Filter by project name"),
		),
		mcp.WithString("module",
			mcp.Description("Filter to frames that touched this module ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 20)"),
		),
	)
}

// Handle processes the frame_search tool call.
func (t *FrameSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	results, err := t.store.Search(query, frames.SearchOptions{
		Project: req.GetString("project", ""),
		Module:  req.GetString("module", ""),
		Limit:   intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No frames found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d frames:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    %s\n",
			i+1, r.Title, r.CreatedAt, frames.Truncate(r.Summary, 300))
		if r.Reason != "" {
			fmt.Fprintf(&b, "    why: %s\n", frames.Truncate(r.Reason, 150))
		}
		if len(r.Modules) > 0 {
			fmt.Fprintf(&b, "    modules: %s\n", strings.Join(r.Modules, ", "))
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
