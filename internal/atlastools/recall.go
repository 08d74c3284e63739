package atlastools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
)

// RecallTool handles the atlas_recall MCP tool. The configured defaults
// apply when a request omits fold_radius or max_tokens.
type RecallTool struct {
	service          *atlas.Service
	defaultRadius    int
	defaultMaxTokens int
}

// NewRecallTool creates a RecallTool. A negative defaultRadius falls back
// to atlas.DefaultFoldRadius; defaultMaxTokens 0 means no budget.
func NewRecallTool(service *atlas.Service, defaultRadius, defaultMaxTokens int) *RecallTool {
	if defaultRadius < 0 {
		defaultRadius = atlas.DefaultFoldRadius
	}
	if defaultMaxTokens < 0 {
		defaultMaxTokens = 0
	}
	return &RecallTool{
		service:          service,
		defaultRadius:    defaultRadius,
		defaultMaxTokens: defaultMaxTokens,
	}
}

// Definition returns the MCP tool definition for atlas_recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("atlas_recall",
		mcp.WithDescription(
			"Recall the dependency neighborhood around one or more modules: which modules sit "+
				"within N hops, which dependencies are allowed, and which are forbidden. Use this "+
				"before changing a module to see its blast radius.",
		),
		mcp.WithArray("seed_modules",
			mcp.Required(),
			mcp.Description("Module IDs to center the neighborhood on, e.g. [\"services/auth-core\"]"),
		),
		mcp.WithNumber("fold_radius",
			mcp.Description("Hop radius around the seeds (default: 2). 0 returns only the seeds."),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget; the radius shrinks automatically until the frame fits. 0 disables tuning."),
		),
	)
}

// Handle processes the atlas_recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seeds := stringSliceArg(req, "seed_modules")
	if len(seeds) == 0 {
		return mcp.NewToolResultError("'seed_modules' is required"), nil
	}
	radius := intArg(req, "fold_radius", t.defaultRadius)
	maxTokens := intArg(req, "max_tokens", t.defaultMaxTokens)

	frame, cached, err := t.service.Recall(seeds, radius, maxTokens)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}

	var b strings.Builder
	source := "computed"
	if cached {
		source = "cached"
	}
	fmt.Fprintf(&b, "Neighborhood of %s (radius %d, %s):\n\n",
		strings.Join(frame.SeedModules, ", "), frame.FoldRadius, source)

	fmt.Fprintf(&b, "Modules (%d):\n", len(frame.Modules))
	for _, n := range frame.Modules {
		fmt.Fprintf(&b, "  - %s\n", n.FrameID)
	}

	if len(frame.Edges) > 0 {
		fmt.Fprintf(&b, "\nDependencies (%d):\n", len(frame.Edges))
		for _, e := range frame.Edges {
			marker := "allowed"
			if !e.Allowed {
				marker = "FORBIDDEN"
			}
			fmt.Fprintf(&b, "  %s → %s [%s]", e.From, e.To, marker)
			if e.Reason != "" {
				fmt.Fprintf(&b, " — %s", e.Reason)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\nNo dependencies inside this neighborhood.\n")
	}

	fmt.Fprintf(&b, "\nCritical rule: %s\n", frame.CriticalRule)
	fmt.Fprintf(&b, "Atlas timestamp: %s\n", frame.AtlasTimestamp)

	return mcp.NewToolResultText(b.String()), nil
}
