package atlas

import (
	"fmt"
	"strings"
)

// ValidationResult reports the structural integrity of an Atlas. Errors
// block Valid; warnings are informational only.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// maxOrphanExamples caps how many orphaned node IDs the warning names.
const maxOrphanExamples = 5

// Validate runs the structural integrity checks on an Atlas:
//
//   - every edge endpoint must exist in the node set (no dangling edges)
//   - every edge weight must stay within [0,1]
//   - metadata counts must match the actual slice lengths
//
// Nodes with no incident edges at all are reported as a warning (count plus
// up to five example IDs) and never affect Valid.
func Validate(a *Atlas) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}

	nodeSet := make(map[string]bool, len(a.Nodes))
	for _, n := range a.Nodes {
		nodeSet[n.FrameID] = true
	}

	touched := make(map[string]bool)
	for _, e := range a.Edges {
		if !nodeSet[e.From] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("dangling edge: 'from' node %q does not exist", e.From))
		}
		if !nodeSet[e.To] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("dangling edge: 'to' node %q does not exist", e.To))
		}
		if e.Weight < 0 || e.Weight > 1 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("edge %s → %s: weight %g outside [0,1]", e.From, e.To, e.Weight))
		}
		touched[e.From] = true
		touched[e.To] = true
	}

	if a.Metadata.FrameCount != len(a.Nodes) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("metadata frameCount %d does not match %d nodes", a.Metadata.FrameCount, len(a.Nodes)))
	}
	if a.Metadata.EdgeCount != len(a.Edges) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("metadata edgeCount %d does not match %d edges", a.Metadata.EdgeCount, len(a.Edges)))
	}

	var orphans []string
	for _, n := range a.Nodes {
		if !touched[n.FrameID] {
			orphans = append(orphans, n.FrameID)
		}
	}
	if len(orphans) > 0 {
		examples := orphans
		if len(examples) > maxOrphanExamples {
			examples = examples[:maxOrphanExamples]
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d orphaned node(s) with no edges (e.g. %s)", len(orphans), strings.Join(examples, ", ")))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// CheckReachability reports whether every node is reachable from the graph
// roots (nodes with zero incoming edges). It is a diagnostic, not part of
// Validate's pass/fail decision: an empty graph or a pure-cycle graph (no
// roots at all) is trivially reachable.
func CheckReachability(a *Atlas) bool {
	if len(a.Nodes) == 0 {
		return true
	}

	incoming := make(map[string]int, len(a.Nodes))
	outgoing := make(map[string][]string)
	for _, n := range a.Nodes {
		incoming[n.FrameID] = 0
	}
	for _, e := range a.Edges {
		incoming[e.To]++
		outgoing[e.From] = append(outgoing[e.From], e.To)
	}

	var roots []string
	for _, n := range a.Nodes {
		if incoming[n.FrameID] == 0 {
			roots = append(roots, n.FrameID)
		}
	}
	if len(roots) == 0 {
		return true
	}

	visited := make(map[string]bool, len(roots))
	queue := append([]string(nil), roots...)
	for _, r := range roots {
		visited[r] = true
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}

	return len(visited) == len(a.Nodes)
}
