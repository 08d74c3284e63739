package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
	"github.com/lexmap/lexmap/internal/frames"
)

// StatsTool handles the atlas_stats MCP tool.
type StatsTool struct {
	service *atlas.Service
	store   *frames.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(service *atlas.Service, store *frames.Store) *StatsTool {
	return &StatsTool{service: service, store: store}
}

// Definition returns the MCP tool definition for atlas_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("atlas_stats",
		mcp.WithDescription(
			"Show LexMap health: policy size, frame-cache hit rate, rebuild queue state, "+
				"and how many sessions and frames are stored.",
		),
	)
}

// Handle processes the atlas_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder

	pol := t.service.Policy()
	fmt.Fprintf(&b, "Policy: %d modules\n", len(pol.Modules))

	cache := t.service.CacheStats()
	fmt.Fprintf(&b, "Frame cache: %d entries, %d hits / %d misses (%.0f%%), %d evictions\n",
		cache.Size, cache.Hits, cache.Misses, t.service.CacheHitRate()*100, cache.Evictions)

	fmt.Fprintf(&b, "Rebuild queue: %s\n", t.service.Queue().State())

	if t.store != nil {
		stats, err := t.store.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("frame store stats failed: %v", err)), nil
		}
		fmt.Fprintf(&b, "Temporal store: %d frames across %d sessions\n",
			stats.TotalFrames, stats.TotalSessions)
		if len(stats.Projects) > 0 {
			fmt.Fprintf(&b, "Projects: %s\n", strings.Join(stats.Projects, ", "))
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}
