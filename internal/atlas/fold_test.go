package atlas

import (
	"reflect"
	"sort"
	"testing"

	"github.com/lexmap/lexmap/internal/policy"
)

// testPolicy builds the canonical four-module fixture:
//
//	ui/user-admin-panel ──allowed──▶ services/user-access-api ──allowed──▶ services/auth-core
//	ui/user-admin-panel ──FORBIDDEN─────────────────────────────────────▶ services/auth-core
//	services/auth-core  ──allowed──▶ data/user-store
func testPolicy() *policy.Policy {
	return &policy.Policy{
		Modules: map[string]policy.Module{
			"services/auth-core": {
				Coords:           &[2]float64{0.5, 0.5},
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

func nodeIDs(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.FrameID)
	}
	sort.Strings(ids)
	return ids
}

func findEdge(edges []Edge, from, to string) *Edge {
	for i := range edges {
		if edges[i].From == from && edges[i].To == to {
			return &edges[i]
		}
	}
	return nil
}

func TestFoldRadiusZero(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel"}, 0, testPolicy())

	if len(hood.Modules) != 1 {
		t.Fatalf("len(Modules) = %d, want 1", len(hood.Modules))
	}
	if hood.Modules[0].FrameID != "ui/user-admin-panel" {
		t.Errorf("Modules[0].FrameID = %q, want %q", hood.Modules[0].FrameID, "ui/user-admin-panel")
	}
	if len(hood.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(hood.Edges))
	}
}

func TestFoldRadiusZeroKeepsSeedToSeedEdges(t *testing.T) {
	seeds := []string{"ui/user-admin-panel", "services/user-access-api"}
	hood := ComputeFoldRadius(seeds, 0, testPolicy())

	if len(hood.Modules) != 2 {
		t.Fatalf("len(Modules) = %d, want 2", len(hood.Modules))
	}
	e := findEdge(hood.Edges, "ui/user-admin-panel", "services/user-access-api")
	if e == nil {
		t.Fatal("edge panel → access-api missing at radius 0 with both ends seeded")
	}
	if !e.Allowed {
		t.Errorf("edge panel → access-api Allowed = false, want true")
	}
}

func TestFoldRadiusOne(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel"}, 1, testPolicy())

	want := []string{"services/auth-core", "services/user-access-api", "ui/user-admin-panel"}
	if got := nodeIDs(hood.Modules); !reflect.DeepEqual(got, want) {
		t.Fatalf("node IDs = %v, want %v", got, want)
	}

	// The forbidden edge is one hop away and must survive with its reason.
	forbidden := findEdge(hood.Edges, "ui/user-admin-panel", "services/auth-core")
	if forbidden == nil {
		t.Fatal("forbidden edge panel → auth-core missing")
	}
	if forbidden.Allowed {
		t.Error("forbidden edge has Allowed = true")
	}
	if forbidden.Reason != "auth tokens flow only through the access API" {
		t.Errorf("forbidden edge Reason = %q", forbidden.Reason)
	}

	if len(hood.Edges) != 3 {
		t.Errorf("len(Edges) = %d, want 3", len(hood.Edges))
	}
}

func TestFoldRadiusTwoReachesUserStore(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel"}, 2, testPolicy())

	want := []string{"data/user-store", "services/auth-core", "services/user-access-api", "ui/user-admin-panel"}
	if got := nodeIDs(hood.Modules); !reflect.DeepEqual(got, want) {
		t.Fatalf("node IDs = %v, want %v", got, want)
	}
	if e := findEdge(hood.Edges, "services/auth-core", "data/user-store"); e == nil {
		t.Error("edge auth-core → user-store missing at radius 2")
	}
	if len(hood.Edges) != 4 {
		t.Errorf("len(Edges) = %d, want 4", len(hood.Edges))
	}
}

func TestFoldDiscoveryIsUndirected(t *testing.T) {
	// user-store has only an incoming edge; its caller must still be
	// discoverable from it.
	hood := ComputeFoldRadius([]string{"data/user-store"}, 1, testPolicy())

	want := []string{"data/user-store", "services/auth-core"}
	if got := nodeIDs(hood.Modules); !reflect.DeepEqual(got, want) {
		t.Fatalf("node IDs = %v, want %v", got, want)
	}
	e := findEdge(hood.Edges, "services/auth-core", "data/user-store")
	if e == nil {
		t.Fatal("edge auth-core → user-store missing")
	}
	if e.From != "services/auth-core" {
		t.Errorf("edge direction flipped: From = %q", e.From)
	}
}

func TestFoldMultiSeedUnion(t *testing.T) {
	union := ComputeFoldRadius([]string{"ui/user-admin-panel", "data/user-store"}, 1, testPolicy())

	a := ComputeFoldRadius([]string{"ui/user-admin-panel"}, 1, testPolicy())
	b := ComputeFoldRadius([]string{"data/user-store"}, 1, testPolicy())

	wantSet := map[string]bool{}
	for _, n := range append(a.Modules, b.Modules...) {
		wantSet[n.FrameID] = true
	}
	want := make([]string, 0, len(wantSet))
	for id := range wantSet {
		want = append(want, id)
	}
	sort.Strings(want)

	if got := nodeIDs(union.Modules); !reflect.DeepEqual(got, want) {
		t.Errorf("union node IDs = %v, want %v", got, want)
	}
}

func TestFoldSeedOrderDoesNotChangeResult(t *testing.T) {
	a := ComputeFoldRadius([]string{"ui/user-admin-panel", "data/user-store"}, 2, testPolicy())
	b := ComputeFoldRadius([]string{"data/user-store", "ui/user-admin-panel"}, 2, testPolicy())

	if !reflect.DeepEqual(nodeIDs(a.Modules), nodeIDs(b.Modules)) {
		t.Errorf("node sets differ by seed order: %v vs %v", nodeIDs(a.Modules), nodeIDs(b.Modules))
	}
	if !reflect.DeepEqual(a.Edges, b.Edges) {
		t.Errorf("edge lists differ by seed order")
	}
}

func TestFoldUnknownSeedIncluded(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ghost/module"}, 2, testPolicy())

	if len(hood.Modules) != 1 {
		t.Fatalf("len(Modules) = %d, want 1", len(hood.Modules))
	}
	n := hood.Modules[0]
	if n.FrameID != "ghost/module" {
		t.Errorf("FrameID = %q, want %q", n.FrameID, "ghost/module")
	}
	if n.Coords != nil {
		t.Error("unknown seed should have nil Coords")
	}
	if len(hood.Edges) != 0 {
		t.Errorf("len(Edges) = %d, want 0", len(hood.Edges))
	}
}

func TestFoldNegativeRadiusClampsToZero(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel"}, -3, testPolicy())
	if len(hood.Modules) != 1 || len(hood.Edges) != 0 {
		t.Errorf("negative radius: %d modules, %d edges, want 1 and 0", len(hood.Modules), len(hood.Edges))
	}
}

func TestFoldDuplicateSeedsDeduped(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel", "ui/user-admin-panel"}, 0, testPolicy())
	if len(hood.Modules) != 1 {
		t.Errorf("len(Modules) = %d, want 1", len(hood.Modules))
	}
	if len(hood.SeedModules) != 1 {
		t.Errorf("len(SeedModules) = %d, want 1", len(hood.SeedModules))
	}
}

func TestFoldForbiddenWinsOverAllowed(t *testing.T) {
	pol := &policy.Policy{
		Modules: map[string]policy.Module{
			"core": {
				AllowedCallers:   []string{"edge"},
				ForbiddenCallers: []string{"edge"},
				Notes:            "contradiction resolves strict",
			},
		},
	}
	hood := ComputeFoldRadius([]string{"core"}, 1, pol)

	if len(hood.Edges) != 1 {
		t.Fatalf("len(Edges) = %d, want 1", len(hood.Edges))
	}
	if hood.Edges[0].Allowed {
		t.Error("caller in both lists resolved to allowed, want forbidden")
	}
}

func TestFoldEdgesSortedAndWeighted(t *testing.T) {
	hood := ComputeFoldRadius([]string{"ui/user-admin-panel"}, 2, testPolicy())

	for i := 1; i < len(hood.Edges); i++ {
		prev, cur := hood.Edges[i-1], hood.Edges[i]
		if prev.From > cur.From || (prev.From == cur.From && prev.To > cur.To) {
			t.Errorf("edges not sorted at %d: %s→%s after %s→%s", i, cur.From, cur.To, prev.From, prev.To)
		}
	}
	for _, e := range hood.Edges {
		if e.Weight != 1.0 {
			t.Errorf("edge %s → %s weight = %g, want 1.0", e.From, e.To, e.Weight)
		}
	}
}
