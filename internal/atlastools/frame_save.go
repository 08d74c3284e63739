package atlastools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
	"github.com/lexmap/lexmap/internal/frames"
)

// FrameSaveTool handles the frame_save MCP tool. Saving a frame also pokes
// the rebuild queue, so the atlas eventually reflects the new observation
// without blocking the save.
type FrameSaveTool struct {
	store   *frames.Store
	service *atlas.Service
}

// NewFrameSaveTool creates a FrameSaveTool.
func NewFrameSaveTool(store *frames.Store, service *atlas.Service) *FrameSaveTool {
	return &FrameSaveTool{store: store, service: service}
}

// Definition returns the MCP tool definition for frame_save.
func (t *FrameSaveTool) Definition() mcp.Tool {
	return mcp.NewTool("frame_save",
		mcp.WithDescription(
			"Save a temporal frame: a snapshot of what this slice of work touched and why. "+
				"Record one after completing a meaningful unit of work.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short title for the frame, e.g. 'moved token minting behind the access API'"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("What was done and the outcome"),
		),
		mcp.WithString("reason",
			mcp.Description("Why the work happened — the trigger or motivation"),
		),
		mcp.WithArray("modules",
			mcp.Description("Module IDs this work touched, e.g. [\"services/auth-core\"]"),
		),
		mcp.WithString("project",
			mcp.Description("Project name"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to attach the frame to; omitted creates one"),
		),
	)
}

// Handle processes the frame_save tool call.
func (t *FrameSaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	summary := req.GetString("summary", "")
	if summary == "" {
		return mcp.NewToolResultError("'summary' is required"), nil
	}

	modules := stringSliceArg(req, "modules")
	id, err := t.store.AddFrame(frames.AddFrameParams{
		SessionID: req.GetString("session_id", ""),
		Title:     title,
		Summary:   summary,
		Reason:    req.GetString("reason", ""),
		Modules:   modules,
		Project:   req.GetString("project", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}

	if t.service != nil {
		t.service.NotifyFrameIngested(frames.Frame{ID: id, Modules: modules})
	}

	return mcp.NewToolResultText(fmt.Sprintf("Frame saved (%s). Atlas rebuild scheduled.", id)), nil
}
