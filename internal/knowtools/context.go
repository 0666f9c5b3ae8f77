package knowtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// GetTaskContextTool handles the get_task_context MCP tool.
type GetTaskContextTool struct {
	store *knowledge.Store
}

// NewGetTaskContextTool creates a GetTaskContextTool.
func NewGetTaskContextTool(store *knowledge.Store) *GetTaskContextTool {
	return &GetTaskContextTool{store: store}
}

// Definition returns the MCP tool definition for get_task_context.
func (t *GetTaskContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_task_context",
		mcp.WithDescription(
			"Search the knowledge visible from a scope: the scope itself and everything it inherits from. "+
				"Pass several short queries for the different aspects of the task; an entry matching any query is returned. "+
				"Call this BEFORE starting work on a task.",
		),
		mcp.WithArray("queries",
			mcp.Required(),
			mcp.Description("Search queries; all words of one query must match"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Canonical scope name to search from"),
		),
		mcp.WithString("task_size",
			mcp.Description("Only return knowledge tagged with this size or larger"),
			mcp.Enum(taskSizeEnum...),
		),
	)
}

// Handle processes the get_task_context tool call.
func (t *GetTaskContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	queries, _, err := stringsArg(req, "queries")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(queries) == 0 {
		return mcp.NewToolResultError("'queries' must contain at least one query"), nil
	}
	if len(queries) > maxQueries {
		return mcp.NewToolResultError(fmt.Sprintf("'queries' must contain at most %d queries", maxQueries)), nil
	}
	for i, q := range queries {
		if err := checkLen(fmt.Sprintf("queries[%d]", i), q, maxQueryLen); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	size, err := taskSizeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits, err := t.store.Search(ctx, queries, scope, size)
	if err != nil {
		return storeError("search knowledge", err), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No knowledge found from %s for: %s", scope, strings.Join(queries, "; "))), nil
	}
	grouped := knowledge.GroupByScope(hits)
	ranked := make([]string, len(hits))
	for i, h := range hits {
		ranked[i] = h.ID
	}
	return mcp.NewToolResultStructured(taskContext{
		Scope:     scope,
		Knowledge: grouped,
		Ranked:    ranked,
	}, renderHits(scope, hits, grouped)), nil
}

// taskContext is the structured get_task_context result: bound scope label
// -> entry id -> content, plus the entry ids in rank order.
type taskContext struct {
	Scope     string                       `json:"scope"`
	Knowledge map[string]map[string]string `json:"knowledge"`
	Ranked    []string                     `json:"ranked"`
}

// renderHits writes one section per bound scope. Sections follow the rank
// of their best hit and list their entries in rank order.
func renderHits(scope string, hits []knowledge.SearchHit, grouped map[string]map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Knowledge for %s (%d entries)\n", scope, len(hits))
	done := make(map[string]bool, len(grouped))
	for _, first := range hits {
		if done[first.Scope] {
			continue
		}
		done[first.Scope] = true
		entries := grouped[first.Scope]
		fmt.Fprintf(&b, "\n## %s (%d)\n", first.Scope, len(entries))
		for _, h := range hits {
			if h.Scope != first.Scope {
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s", h.ID, entries[h.ID])
			if h.TaskSize != "" {
				fmt.Fprintf(&b, " (%s)", h.TaskSize)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
