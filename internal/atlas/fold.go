package atlas

import (
	"sort"

	"github.com/lexmap/lexmap/internal/policy"
)

// Neighborhood is the raw output of the fold-radius engine: the discovered
// node set around the seeds plus every policy edge whose endpoints both
// survived the fold.
type Neighborhood struct {
	SeedModules []string `json:"seed_modules"`
	Modules     []Node   `json:"modules"`
	Edges       []Edge   `json:"edges"`
}

// policyEdge is one caller rule lifted from the policy before the fold is
// applied. Direction is caller → callee.
type policyEdge struct {
	from    string
	to      string
	allowed bool
	reason  string
}

// ComputeFoldRadius extracts the neighborhood of the seed modules within the
// given hop radius.
//
// Every entry C in a module M's allowed_callers/forbidden_callers is a
// directed edge C→M (allowed/forbidden). Discovery runs BFS from the full
// seed set at once and treats that adjacency as undirected — C and M are
// reachable from each other — while the emitted edges keep their direction
// and allowed flag. A module is included iff its hop distance from any seed
// is ≤ radius; multiple seeds union. Radius 0 yields exactly the seeds and
// only seed-to-seed edges. Seeds are always present in the output, even
// when the policy does not know them (isolated node, no coords).
func ComputeFoldRadius(seedIDs []string, radius int, pol *policy.Policy) Neighborhood {
	if radius < 0 {
		radius = 0
	}

	edges := collectPolicyEdges(pol)

	// Undirected adjacency for discovery only.
	neighbors := make(map[string][]string)
	for _, e := range edges {
		neighbors[e.from] = append(neighbors[e.from], e.to)
		neighbors[e.to] = append(neighbors[e.to], e.from)
	}
	for id := range neighbors {
		sort.Strings(neighbors[id])
	}

	// Multi-source BFS: all seeds start at distance 0.
	seeds := dedupeStrings(seedIDs)
	included := make(map[string]bool, len(seeds))
	queue := make([]string, 0, len(seeds))
	dist := make(map[string]int, len(seeds))
	for _, s := range seeds {
		included[s] = true
		dist[s] = 0
		queue = append(queue, s)
	}

	order := append([]string(nil), queue...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if dist[current] >= radius {
			continue
		}
		for _, next := range neighbors[current] {
			if included[next] {
				continue
			}
			included[next] = true
			dist[next] = dist[current] + 1
			order = append(order, next)
			queue = append(queue, next)
		}
	}

	// Nodes in BFS discovery order; coords come from the policy when the
	// module is known there.
	nodes := make([]Node, 0, len(order))
	for _, id := range order {
		n := Node{FrameID: id}
		if m, ok := pol.Modules[id]; ok {
			n.Coords = m.Coords
		}
		nodes = append(nodes, n)
	}

	// Only edges with both endpoints inside the fold survive.
	var out []Edge
	for _, e := range edges {
		if included[e.from] && included[e.to] {
			out = append(out, Edge{
				From:    e.from,
				To:      e.to,
				Allowed: e.allowed,
				Weight:  1.0,
				Reason:  e.reason,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})

	return Neighborhood{SeedModules: seeds, Modules: nodes, Edges: out}
}

// collectPolicyEdges lifts all caller rules out of the policy, one edge per
// (caller, callee) pair. A caller listed in both allowed_callers and
// forbidden_callers resolves to forbidden.
func collectPolicyEdges(pol *policy.Policy) []policyEdge {
	type key struct{ from, to string }
	seen := make(map[key]int)
	var edges []policyEdge

	for _, callee := range pol.ModuleIDs() {
		m := pol.Modules[callee]
		for _, caller := range m.AllowedCallers {
			k := key{caller, callee}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = len(edges)
			edges = append(edges, policyEdge{from: caller, to: callee, allowed: true})
		}
		for _, caller := range m.ForbiddenCallers {
			k := key{caller, callee}
			if i, ok := seen[k]; ok {
				edges[i].allowed = false
				edges[i].reason = m.Notes
				continue
			}
			seen[k] = len(edges)
			edges = append(edges, policyEdge{from: caller, to: callee, allowed: false, reason: m.Notes})
		}
	}
	return edges
}

// dedupeStrings preserves first-occurrence order.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
