// Package knowtools provides MCP tool handlers for the knowledge engine.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (knowledge.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() validates caller input and returns a result
//
// Store failures are reported as tool errors, never as Go errors, so the
// assistant sees the offending identifiers and can correct the call.
package knowtools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Caller-facing bounds checked before the store is touched.
const (
	maxDescriptionLen = 1000
	maxContentLen     = 10000
	maxContextLen     = 500
	maxQueries        = 10
	maxQueryLen       = 200
)

var scopeRefPattern = regexp.MustCompile(`^[a-z0-9-]{2,64}:[a-z0-9-]{2,64}$`)

// stringsArg extracts a string array argument. JSON arrays arrive as
// []interface{}; non-string elements are rejected.
func stringsArg(req mcp.CallToolRequest, key string) ([]string, bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, true, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, true, fmt.Errorf("'%s[%d]' must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, true, nil
	}
	return nil, true, fmt.Errorf("'%s' must be an array of strings", key)
}

// optString returns a pointer to the argument when it was sent at all.
func optString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// checkScopeRefs validates canonical namespace:scope addresses.
func checkScopeRefs(key string, refs ...string) error {
	for _, r := range refs {
		if !scopeRefPattern.MatchString(r) {
			return fmt.Errorf("'%s' value %q must be namespace:scope using lowercase letters, digits and hyphens", key, r)
		}
	}
	return nil
}

func checkLen(key, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("'%s' is required", key)
	}
	if len(v) > max {
		return fmt.Errorf("'%s' must be at most %d characters", key, max)
	}
	return nil
}

// storeError renders a store failure as a tool error.
func storeError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

// bullets renders a markdown list, or "(none)".
func bullets(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
