// Package atlas implements the spatial half of LexMap's memory: a bounded
// dependency graph derived from the module policy.
//
// The temporal half (Frames, see internal/frames) answers "what happened
// when"; the Atlas answers "what is allowed to depend on what". The package
// covers neighborhood extraction around seed modules (fold radius),
// structural validation, an LRU cache of computed neighborhoods, token-budget
// auto-tuning, and two debounced rebuild coordinators.
package atlas

import (
	"time"
)

// ─── Graph types ─────────────────────────────────────────────────────────────

// Node is a single module in the Atlas. FrameID is the module ID; Coords is
// the optional layout position carried over from the policy.
type Node struct {
	FrameID string      `json:"frameId"`
	Coords  *[2]float64 `json:"coords,omitempty"`
}

// Edge is a directed dependency rule between two modules: From is the
// caller, To the callee. Allowed=false marks a forbidden dependency. Weight
// must stay within [0,1].
type Edge struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Allowed bool    `json:"allowed"`
	Weight  float64 `json:"weight"`
	Reason  string  `json:"reason,omitempty"`
}

// Metadata carries the node/edge counts the validator checks against the
// actual slice lengths. FrameCount counts nodes (each node is one module
// frame on the map).
type Metadata struct {
	FrameCount int `json:"frameCount"`
	EdgeCount  int `json:"edgeCount"`
}

// Atlas is the full module dependency graph.
type Atlas struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Metadata Metadata `json:"metadata"`
}

// ─── Recall projection ───────────────────────────────────────────────────────

// Frame is the recall-facing projection of an Atlas neighborhood: a bounded,
// token-budgeted slice of the graph around a set of seed modules. Frames are
// created per request or rebuild, cached by (sorted seeds, radius), and
// never mutated in place.
type Frame struct {
	AtlasTimestamp string   `json:"atlas_timestamp"`
	SeedModules    []string `json:"seed_modules"`
	FoldRadius     int      `json:"fold_radius"`
	Modules        []Node   `json:"modules"`
	Edges          []Edge   `json:"edges"`
	CriticalRule   string   `json:"critical_rule"`
}

// ─── Rebuild result ──────────────────────────────────────────────────────────

// RebuildResult is the immutable outcome of one rebuild attempt, shared by
// every caller that fanned in on that rebuild. On failure Atlas and
// Validation may be nil and Err holds the reason.
type RebuildResult struct {
	Success    bool              `json:"success"`
	Atlas      *Atlas            `json:"atlas,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Err        string            `json:"error,omitempty"`
	DurationMs int64             `json:"durationMs"`
	FrameCount int               `json:"frameCount"`
	Timestamp  string            `json:"timestamp"`
}

// timestamp returns the current UTC time in ISO-8601, the wire format used
// by atlas_timestamp and RebuildResult.Timestamp.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
