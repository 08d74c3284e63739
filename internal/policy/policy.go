// Package policy defines the declarative module-boundary policy that the
// Atlas is derived from.
//
// A policy maps module IDs (e.g. "services/auth-core") to ownership and
// dependency rules: which modules may call this one, which must never, plus
// optional layout coordinates and annotations. The policy file is written by
// hand or generated from scanner facts; schema validation happens upstream —
// this package assumes a well-formed document and only handles loading.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Module holds the ownership and dependency rules for a single module.
type Module struct {
	// Coords is an optional 2D layout position for map rendering.
	Coords *[2]float64 `json:"coords,omitempty" yaml:"coords,omitempty"`

	// AllowedCallers lists module IDs permitted to depend on this module.
	AllowedCallers []string `json:"allowed_callers,omitempty" yaml:"allowed_callers,omitempty"`

	// ForbiddenCallers lists module IDs that must never depend on this module.
	ForbiddenCallers []string `json:"forbidden_callers,omitempty" yaml:"forbidden_callers,omitempty"`

	FeatureFlags        []string `json:"feature_flags,omitempty" yaml:"feature_flags,omitempty"`
	RequiresPermissions []string `json:"requires_permissions,omitempty" yaml:"requires_permissions,omitempty"`
	KillPatterns        []string `json:"kill_patterns,omitempty" yaml:"kill_patterns,omitempty"`
	Notes               string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Policy is the full module map. It is loaded once per process and treated
// as read-only afterwards.
type Policy struct {
	Modules map[string]Module `json:"modules" yaml:"modules"`
}

// ModuleIDs returns all module IDs in sorted order, for deterministic
// iteration over the map.
func (p *Policy) ModuleIDs() []string {
	ids := make([]string, 0, len(p.Modules))
	for id := range p.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ─── Loading ─────────────────────────────────────────────────────────────────

// Load reads a policy file. The format is chosen by extension: .yaml/.yml
// are parsed as YAML, everything else as JSON.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes policy bytes. ext selects the decoder (".yaml"/".yml" vs JSON).
func Parse(data []byte, ext string) (*Policy, error) {
	var p Policy
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("policy: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("policy: parse json: %w", err)
		}
	}
	if p.Modules == nil {
		p.Modules = map[string]Module{}
	}
	return &p, nil
}
