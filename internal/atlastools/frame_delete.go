package atlastools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/frames"
)

// FrameDeleteTool handles the frame_delete MCP tool.
type FrameDeleteTool struct {
	store *frames.Store
}

// NewFrameDeleteTool creates a FrameDeleteTool.
func NewFrameDeleteTool(store *frames.Store) *FrameDeleteTool {
	return &FrameDeleteTool{store: store}
}

// Definition returns the MCP tool definition for frame_delete.
func (t *FrameDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_delete",
		mcp.WithDescription(
			"Delete a stored frame by ID. Soft-deletes by default so the record can be "+
				"recovered from the database; pass hard_delete to remove it permanently.",
		),
		mcp.WithString("frame_id",
			mcp.Required(),
			mcp.Description("ID of the frame to delete"),
		),
		mcp.WithBoolean("hard_delete",
			mcp.Description("Permanently remove the row instead of soft-deleting (default: false)"),
		),
	)
}

// Handle processes the frame_delete tool call.
func (t *FrameDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("frame_id", "")
	if id == "" {
		return mcp.NewToolResultError("'frame_id' is required"), nil
	}
	hard := boolArg(req, "hard_delete", false)

	if err := t.store.DeleteFrame(id, hard); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}

	mode := "soft-deleted"
	if hard {
		mode = "permanently deleted"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Frame %s %s.", id, mode)), nil
}
