package atlastools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lexmap/lexmap/internal/atlas"
	"github.com/lexmap/lexmap/internal/frames"
	"github.com/lexmap/lexmap/internal/policy"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func testPolicy() *policy.Policy {
	return &policy.Policy{
		Modules: map[string]policy.Module{
			"services/auth-core": {
				AllowedCallers:   []string{"services/user-access-api"},
				ForbiddenCallers: []string{"ui/user-admin-panel"},
				Notes:            "auth tokens flow only through the access API",
			},
			"services/user-access-api": {
				AllowedCallers: []string{"ui/user-admin-panel"},
			},
			"data/user-store": {
				AllowedCallers: []string{"services/auth-core"},
			},
		},
	}
}

// newTestStore creates a frames.Store in a temp directory for testing.
func newTestStore(t *testing.T) *frames.Store {
	t.Helper()
	store, err := frames.New(frames.Config{
		DataDir:          t.TempDir(),
		MaxSummaryLength: 2000,
		MaxSearchResults: 20,
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestService(t *testing.T, store *frames.Store) *atlas.Service {
	t.Helper()
	fetch := func() ([]frames.Frame, error) { return store.FetchAll() }
	s := atlas.NewService(testPolicy(), fetch, atlas.ServiceConfig{
		CacheCapacity: 10,
		Debounce:      100 * time.Millisecond,
	}, nil)
	t.Cleanup(s.Close)
	return s
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, result *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}
}

// ─── RecallTool tests ────────────────────────────────────────────────────────

func TestRecallTool_Definition(t *testing.T) {
	def := NewRecallTool(nil, atlas.DefaultFoldRadius, 0).Definition()
	if def.Name != "atlas_recall" {
		t.Errorf("tool name = %q, want %q", def.Name, "atlas_recall")
	}
	props := def.InputSchema.Properties
	for _, p := range []string{"seed_modules", "fold_radius", "max_tokens"} {
		if _, ok := props[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
	required := def.InputSchema.Required
	if len(required) != 1 || required[0] != "seed_modules" {
		t.Errorf("required = %v, want [seed_modules]", required)
	}
}

func TestRecallTool_Neighborhood(t *testing.T) {
	store := newTestStore(t)
	tool := NewRecallTool(newTestService(t, store), atlas.DefaultFoldRadius, 0)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"seed_modules": []interface{}{"ui/user-admin-panel"},
		"fold_radius":  float64(1),
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "services/auth-core") {
		t.Errorf("neighborhood missing auth-core:\n%s", text)
	}
	if !strings.Contains(text, "FORBIDDEN") {
		t.Errorf("forbidden edge not surfaced:\n%s", text)
	}
	if !strings.Contains(text, "Critical rule:") {
		t.Errorf("critical rule missing:\n%s", text)
	}
}

func TestRecallTool_CommaSeparatedSeeds(t *testing.T) {
	store := newTestStore(t)
	tool := NewRecallTool(newTestService(t, store), atlas.DefaultFoldRadius, 0)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"seed_modules": "ui/user-admin-panel, data/user-store",
		"fold_radius":  float64(0),
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Modules (2):") {
		t.Errorf("comma-separated seeds not honored:\n%s", text)
	}
}

func TestRecallTool_MissingSeeds(t *testing.T) {
	store := newTestStore(t)
	tool := NewRecallTool(newTestService(t, store), atlas.DefaultFoldRadius, 0)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing seed_modules did not produce a tool error")
	}
}

// ─── RebuildTool tests ───────────────────────────────────────────────────────

func TestRebuildTool_Success(t *testing.T) {
	store := newTestStore(t)
	tool := NewRebuildTool(newTestService(t, store))

	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Atlas rebuilt") {
		t.Errorf("unexpected rebuild output:\n%s", text)
	}
	if !strings.Contains(text, "4 modules") {
		t.Errorf("rebuilt module count missing:\n%s", text)
	}
}

// ─── ValidateTool tests ──────────────────────────────────────────────────────

func TestValidateTool_ValidPolicy(t *testing.T) {
	store := newTestStore(t)
	tool := NewValidateTool(newTestService(t, store))

	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "structurally valid") {
		t.Errorf("unexpected validation output:\n%s", resultText(result))
	}
}

// ─── StatsTool tests ─────────────────────────────────────────────────────────

func TestStatsTool_ReportsAllSections(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)
	if _, err := store.AddFrame(frames.AddFrameParams{Title: "t", Summary: "s", Project: "webapp"}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	result, err := NewStatsTool(service, store).Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)

	text := resultText(result)
	for _, want := range []string{"Policy: 3 modules", "Frame cache:", "Rebuild queue:", "1 frames across"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats output missing %q:\n%s", want, text)
		}
	}
}

// ─── Frame tools tests ───────────────────────────────────────────────────────

func TestFrameSaveTool_SavesAndSchedules(t *testing.T) {
	store := newTestStore(t)
	service := newTestService(t, store)
	tool := NewFrameSaveTool(store, service)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"title":   "fix token refresh race",
		"summary": "double refresh when two tabs expire at once",
		"modules": []interface{}{"services/auth-core"},
		"project": "webapp",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "Frame saved") {
		t.Errorf("unexpected save output:\n%s", resultText(result))
	}

	all, err := store.FetchAll()
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("stored frames = %d, want 1", len(all))
	}
	if got := service.Queue().State(); got == atlas.QueueIdle {
		t.Error("rebuild queue still idle right after a save")
	}
}

func TestFrameSaveTool_RequiredFields(t *testing.T) {
	store := newTestStore(t)
	tool := NewFrameSaveTool(store, newTestService(t, store))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"summary": "no title",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing title did not produce a tool error")
	}
}

func TestFrameSearchTool_FindsByQuery(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AddFrame(frames.AddFrameParams{
		Title:   "fix token refresh race",
		Summary: "double refresh when two tabs expire",
		Modules: []string{"services/auth-core"},
	}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	tool := NewFrameSearchTool(store)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "token refresh",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Found 1 frames") {
		t.Errorf("unexpected search output:\n%s", text)
	}
	if !strings.Contains(text, "services/auth-core") {
		t.Errorf("modules missing from output:\n%s", text)
	}
}

func TestFrameRecentTool_Empty(t *testing.T) {
	tool := NewFrameRecentTool(newTestStore(t))
	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No frames stored yet") {
		t.Errorf("unexpected empty output:\n%s", resultText(result))
	}
}

func TestFrameDeleteTool_SoftAndHard(t *testing.T) {
	store := newTestStore(t)
	id, err := store.AddFrame(frames.AddFrameParams{Title: "t", Summary: "s"})
	if err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	tool := NewFrameDeleteTool(store)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id": id,
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "soft-deleted") {
		t.Errorf("unexpected delete output:\n%s", resultText(result))
	}
	all, err := store.FetchAll()
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("frames after soft delete = %d, want 0", len(all))
	}

	result, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"frame_id":    id,
		"hard_delete": true,
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "permanently deleted") {
		t.Errorf("unexpected hard delete output:\n%s", resultText(result))
	}
}

func TestFrameDeleteTool_MissingID(t *testing.T) {
	tool := NewFrameDeleteTool(newTestStore(t))
	result, err := tool.Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing frame_id did not produce a tool error")
	}
}

func TestFrameRecentTool_Lists(t *testing.T) {
	store := newTestStore(t)
	for _, title := range []string{"one", "two"} {
		if _, err := store.AddFrame(frames.AddFrameParams{Title: title, Summary: "s"}); err != nil {
			t.Fatalf("AddFrame: %v", err)
		}
	}
	result, err := NewFrameRecentTool(store).Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "Last 2 frames") {
		t.Errorf("unexpected listing:\n%s", resultText(result))
	}
}
