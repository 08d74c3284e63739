package atlas

import (
	"fmt"
	"sync"
	"time"

	"github.com/lexmap/lexmap/internal/frames"
	"github.com/lexmap/lexmap/internal/policy"
)

// FetchFramesFunc is the injected temporal-frame source. The atlas core
// never touches storage directly — every side effect goes through a
// callback like this one.
type FetchFramesFunc func() ([]frames.Frame, error)

// Rebuilder computes the full Atlas from the policy plus all stored frames.
// It is shared by both rebuild coordinators and owns the current policy,
// which the watcher may swap at runtime.
type Rebuilder struct {
	mu  sync.RWMutex
	pol *policy.Policy
}

// NewRebuilder creates a Rebuilder over a loaded policy.
func NewRebuilder(pol *policy.Policy) *Rebuilder {
	return &Rebuilder{pol: pol}
}

// Policy returns the current policy.
func (r *Rebuilder) Policy() *policy.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pol
}

// SetPolicy swaps the policy. In-flight rebuilds keep the snapshot they
// started with; the next rebuild sees the new one.
func (r *Rebuilder) SetPolicy(pol *policy.Policy) {
	r.mu.Lock()
	r.pol = pol
	r.mu.Unlock()
}

// Rebuild derives the whole Atlas: every module the policy mentions (as a
// map key or as a caller) becomes a node, every caller rule becomes an
// edge. Modules that stored frames touched but the policy does not know are
// appended as isolated nodes, so the map also reflects what sessions
// actually observed.
func (r *Rebuilder) Rebuild(sessionFrames []frames.Frame) (*Atlas, error) {
	pol := r.Policy()
	if pol == nil {
		return nil, fmt.Errorf("atlas: rebuild without a policy")
	}

	// Folding at radius 0 over every mentioned module keeps all of them
	// and all edges between them — the complete graph.
	seeds := allMentionedModules(pol)
	hood := ComputeFoldRadius(seeds, 0, pol)

	nodes := hood.Modules
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.FrameID] = true
	}
	for _, f := range sessionFrames {
		for _, id := range f.Modules {
			if id == "" || known[id] {
				continue
			}
			known[id] = true
			nodes = append(nodes, Node{FrameID: id})
		}
	}

	return &Atlas{
		Nodes: nodes,
		Edges: hood.Edges,
		Metadata: Metadata{
			FrameCount: len(nodes),
			EdgeCount:  len(hood.Edges),
		},
	}, nil
}

// allMentionedModules returns every module ID the policy names, whether as
// a map key or inside a caller list. Callers that have no policy entry of
// their own still need a node for their edges to land on.
func allMentionedModules(pol *policy.Policy) []string {
	seen := make(map[string]bool, len(pol.Modules))
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range pol.ModuleIDs() {
		add(id)
		m := pol.Modules[id]
		for _, c := range m.AllowedCallers {
			add(c)
		}
		for _, c := range m.ForbiddenCallers {
			add(c)
		}
	}
	return ids
}

// executeRebuild runs one rebuild attempt end to end: fetch frames, rebuild
// the atlas, validate it. Operational errors (fetch/rebuild failures, or a
// panic from either) and structural validation failures both yield a
// Success=false result — they never escape to the caller, so a coordinator
// can hand the result to every fanned-in waiter.
func executeRebuild(fetch FetchFramesFunc, rebuilder *Rebuilder) (result *RebuildResult) {
	start := time.Now()

	finish := func(r *RebuildResult) *RebuildResult {
		r.DurationMs = time.Since(start).Milliseconds()
		r.Timestamp = timestamp()
		return r
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = finish(&RebuildResult{
				Success: false,
				Err:     fmt.Sprintf("rebuild panic: %v", rec),
			})
		}
	}()

	var sessionFrames []frames.Frame
	if fetch != nil {
		var err error
		if sessionFrames, err = fetch(); err != nil {
			return finish(&RebuildResult{
				Success: false,
				Err:     fmt.Sprintf("fetch frames: %v", err),
			})
		}
	}

	built, err := rebuilder.Rebuild(sessionFrames)
	if err != nil {
		return finish(&RebuildResult{
			Success:    false,
			Err:        fmt.Sprintf("rebuild atlas: %v", err),
			FrameCount: len(sessionFrames),
		})
	}

	validation := Validate(built)
	if !validation.Valid {
		// A structurally broken atlas fails the rebuild even though it
		// parsed — callers must never receive an invalid map.
		return finish(&RebuildResult{
			Success:    false,
			Atlas:      built,
			Validation: &validation,
			Err:        fmt.Sprintf("atlas validation failed: %d error(s)", len(validation.Errors)),
			FrameCount: len(sessionFrames),
		})
	}

	return finish(&RebuildResult{
		Success:    true,
		Atlas:      built,
		Validation: &validation,
		FrameCount: len(sessionFrames),
	})
}
