// Package atlastools provides the MCP tool handlers for the LexMap server.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (atlas.Service, frames.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Atlas tools answer spatial questions ("what may depend on what around
// these modules"); frame tools persist and retrieve the temporal record.
package atlastools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringSliceArg extracts a string-array argument. Plain strings are
// accepted too and may carry comma-separated values, since models often
// send "a, b" where the schema says array.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			out = append(out, strings.TrimSpace(s))
		}
	}
	cleaned := out[:0]
	for _, s := range out {
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}
