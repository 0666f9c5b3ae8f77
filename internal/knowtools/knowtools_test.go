package knowtools

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a knowledge.Store in a temp directory for testing.
func newTestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	cfg := knowledge.DefaultConfig()
	cfg.DataDir = t.TempDir()
	store, err := knowledge.New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
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

type handler interface {
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// call runs a tool and fails the test on a Go error or a tool error.
func call(t *testing.T, h handler, args map[string]interface{}) string {
	t.Helper()
	r, err := h.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("Handle() Go error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
	return resultText(r)
}

// mustBeToolError asserts the call failed as a tool error mentioning substr.
func mustBeToolError(t *testing.T, h handler, args map[string]interface{}, substr string) {
	t.Helper()
	r, err := h.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("domain errors must not be Go errors: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), substr) {
		t.Errorf("error %q should mention %q", resultText(r), substr)
	}
}

// idFrom pulls the value of the "ID: " line out of a tool response.
func idFrom(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if id, ok := strings.CutPrefix(line, "ID: "); ok {
			return id
		}
	}
	t.Fatalf("no ID line in %q", text)
	return ""
}

// ─── Definitions ────────────────────────────────────────────────────────────

func TestDefinitions_NamesAndRequired(t *testing.T) {
	store := newTestStore(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewGetNamespacesTool(store).Definition(), "get_namespaces", nil},
		{NewCreateNamespaceTool(store).Definition(), "create_namespace", []string{"name", "description"}},
		{NewUpdateNamespaceTool(store).Definition(), "update_namespace", []string{"name"}},
		{NewDeleteNamespaceTool(store).Definition(), "delete_namespace", []string{"name"}},
		{NewCreateScopeTool(store).Definition(), "create_scope", []string{"scope", "description"}},
		{NewUpdateScopeTool(store).Definition(), "update_scope", []string{"scope"}},
		{NewDeleteScopeTool(store).Definition(), "delete_scope", []string{"scope"}},
		{NewAddScopeParentsTool(store).Definition(), "add_scope_parents", []string{"scope", "parents"}},
		{NewRemoveScopeParentsTool(store).Definition(), "remove_scope_parents", []string{"scope", "parents"}},
		{NewGetScopeAncestorsTool(store).Definition(), "get_scope_ancestors", []string{"scope"}},
		{NewWriteKnowledgeTool(store).Definition(), "write_knowledge", []string{"scope", "content", "context"}},
		{NewUpdateKnowledgeTool(store).Definition(), "update_knowledge", []string{"id"}},
		{NewMoveKnowledgeTool(store).Definition(), "move_knowledge", []string{"id", "scope"}},
		{NewDeleteKnowledgeTool(store).Definition(), "delete_knowledge", []string{"id"}},
		{NewResolveConflictTool(store).Definition(), "resolve_knowledge_conflict", []string{"active_id", "suppressed_ids"}},
		{NewGetTaskContextTool(store).Definition(), "get_task_context", []string{"queries", "scope"}},
		{NewListConfigTool(store).Definition(), "list_config", nil},
		{NewUpdateConfigTool(store).Definition(), "update_config", []string{"key", "value"}},
		{NewResetConfigTool(store).Definition(), "reset_config", []string{"key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
			}
			for _, r := range tt.required {
				if _, ok := tt.def.InputSchema.Properties[r]; !ok {
					t.Errorf("missing %q parameter", r)
				}
				found := false
				for _, got := range tt.def.InputSchema.Required {
					if got == r {
						found = true
					}
				}
				if !found {
					t.Errorf("%q should be required", r)
				}
			}
		})
	}
}

// ─── Namespace tools ────────────────────────────────────────────────────────

func TestNamespaceTools(t *testing.T) {
	store := newTestStore(t)

	text := call(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "Project"})
	if !strings.Contains(text, "proj:default") {
		t.Errorf("create response should name the default scope: %s", text)
	}

	mustBeToolError(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "again"}, "already exists")
	mustBeToolError(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj2"}, "'description' is required")

	text = call(t, NewGetNamespacesTool(store), map[string]interface{}{"style": "long"})
	if !strings.Contains(text, "## global") || !strings.Contains(text, "proj:default") {
		t.Errorf("listing missing entries:\n%s", text)
	}
	mustBeToolError(t, NewGetNamespacesTool(store), map[string]interface{}{"style": "huge"}, "style")

	text = call(t, NewUpdateNamespaceTool(store), map[string]interface{}{"name": "proj", "new_name": "renamed", "description": "New desc"})
	if !strings.Contains(text, "renamed") || !strings.Contains(text, "New desc") {
		t.Errorf("update response: %s", text)
	}
	mustBeToolError(t, NewUpdateNamespaceTool(store), map[string]interface{}{"name": "renamed"}, "provide")
	mustBeToolError(t, NewUpdateNamespaceTool(store), map[string]interface{}{"name": "global", "description": "x"}, "reserved")

	text = call(t, NewDeleteNamespaceTool(store), map[string]interface{}{"name": "renamed"})
	if !strings.Contains(text, "Scopes deleted: 1") {
		t.Errorf("delete response: %s", text)
	}
	mustBeToolError(t, NewDeleteNamespaceTool(store), map[string]interface{}{"name": "global"}, "reserved")
}

// ─── Scope tools ────────────────────────────────────────────────────────────

func TestScopeTools(t *testing.T) {
	store := newTestStore(t)
	call(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "Project"})

	text := call(t, NewCreateScopeTool(store), map[string]interface{}{
		"scope": "proj:api", "description": "API", "parents": []interface{}{"global:default"},
	})
	if !strings.Contains(text, "- global:default") || !strings.Contains(text, "- proj:default") {
		t.Errorf("create response should list both parents:\n%s", text)
	}

	mustBeToolError(t, NewCreateScopeTool(store), map[string]interface{}{"scope": "proj_api", "description": "x"}, "namespace:scope")
	mustBeToolError(t, NewCreateScopeTool(store), map[string]interface{}{
		"scope": "proj:web", "description": "x", "parents": []interface{}{42},
	}, "must be a string")
	mustBeToolError(t, NewCreateScopeTool(store), map[string]interface{}{
		"scope": "proj:web", "description": "x", "parents": []interface{}{"proj:missing"},
	}, "proj:missing")

	call(t, NewCreateScopeTool(store), map[string]interface{}{
		"scope": "proj:web", "description": "Web", "parents": []interface{}{"proj:api"},
	})
	mustBeToolError(t, NewAddScopeParentsTool(store), map[string]interface{}{
		"scope": "proj:api", "parents": []interface{}{"proj:web"},
	}, "circular reference")
	mustBeToolError(t, NewAddScopeParentsTool(store), map[string]interface{}{"scope": "proj:api", "parents": []interface{}{}}, "at least one")

	text = call(t, NewRemoveScopeParentsTool(store), map[string]interface{}{
		"scope": "proj:web", "parents": []interface{}{"proj:api"},
	})
	if strings.Contains(text, "proj:api\n") {
		t.Errorf("proj:api should be removed:\n%s", text)
	}

	text = call(t, NewUpdateScopeTool(store), map[string]interface{}{"scope": "proj:web", "new_scope": "proj:frontend"})
	if !strings.Contains(text, "proj:frontend") {
		t.Errorf("rename response: %s", text)
	}
	mustBeToolError(t, NewUpdateScopeTool(store), map[string]interface{}{"scope": "proj:frontend", "new_scope": "other:frontend"}, "different namespace")
	mustBeToolError(t, NewUpdateScopeTool(store), map[string]interface{}{"scope": "proj:frontend"}, "provide")

	text = call(t, NewGetScopeAncestorsTool(store), map[string]interface{}{"scope": "proj:api"})
	if !strings.Contains(text, "proj:api (level 0)") || !strings.Contains(text, "global:default (level 1)") {
		t.Errorf("ancestors:\n%s", text)
	}

	mustBeToolError(t, NewDeleteScopeTool(store), map[string]interface{}{"scope": "proj:default"}, "protected")
	text = call(t, NewDeleteScopeTool(store), map[string]interface{}{"scope": "proj:frontend"})
	if !strings.Contains(text, "Knowledge deleted: 0") {
		t.Errorf("delete response: %s", text)
	}
}

// ─── Knowledge tools ────────────────────────────────────────────────────────

func TestKnowledgeTools_WriteSearchResolve(t *testing.T) {
	store := newTestStore(t)
	call(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "Project"})
	call(t, NewCreateScopeTool(store), map[string]interface{}{"scope": "proj:api", "description": "API"})

	write := NewWriteKnowledgeTool(store)
	good := idFrom(t, call(t, write, map[string]interface{}{
		"scope": "proj:api", "content": "Validate input at the handler boundary", "context": "validation handlers", "task_size": "M",
	}))
	bad := idFrom(t, call(t, write, map[string]interface{}{
		"scope": "proj:default", "content": "Validate input deep in the repository", "context": "validation",
	}))
	mustBeToolError(t, write, map[string]interface{}{"scope": "proj:api", "content": "x", "context": "y", "task_size": "XXL"}, "task size")
	mustBeToolError(t, write, map[string]interface{}{"scope": "proj:api", "content": "", "context": "y"}, "'content' is required")

	search := NewGetTaskContextTool(store)
	text := call(t, search, map[string]interface{}{"scope": "proj:api", "queries": []interface{}{"validate input"}})
	if !strings.Contains(text, "## proj:api") || !strings.Contains(text, "## proj:default") {
		t.Errorf("results should be grouped by bound scope:\n%s", text)
	}

	text = call(t, search, map[string]interface{}{"scope": "proj:api", "queries": []interface{}{"validate"}, "task_size": "S"})
	if !strings.Contains(text, good) || strings.Contains(text, bad) {
		t.Errorf("task_size S should keep only the M entry:\n%s", text)
	}

	call(t, NewResolveConflictTool(store), map[string]interface{}{"active_id": good, "suppressed_ids": []interface{}{bad}})
	text = call(t, search, map[string]interface{}{"scope": "proj:api", "queries": []interface{}{"validate"}})
	if strings.Contains(text, bad) {
		t.Errorf("suppressed entry returned:\n%s", text)
	}
	mustBeToolError(t, NewResolveConflictTool(store), map[string]interface{}{"active_id": good, "suppressed_ids": []interface{}{}}, "suppression list is empty")
	mustBeToolError(t, NewResolveConflictTool(store), map[string]interface{}{"active_id": good, "suppressed_ids": []interface{}{"nope-1", "nope-2"}}, `"nope-2"`)

	text = call(t, search, map[string]interface{}{"scope": "proj:api", "queries": []interface{}{"kubernetes"}})
	if !strings.HasPrefix(text, "No knowledge found") {
		t.Errorf("empty search: %s", text)
	}
	mustBeToolError(t, search, map[string]interface{}{"scope": "proj:api"}, "at least one query")
}

func TestGetTaskContext_StructuredResult(t *testing.T) {
	store := newTestStore(t)
	call(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "Project"})
	call(t, NewCreateScopeTool(store), map[string]interface{}{"scope": "proj:api", "description": "API"})

	write := NewWriteKnowledgeTool(store)
	local := idFrom(t, call(t, write, map[string]interface{}{
		"scope": "proj:api", "content": "Retry idempotent calls", "context": "retry http",
	}))
	inherited := idFrom(t, call(t, write, map[string]interface{}{
		"scope": "proj:default", "content": "Log every retry", "context": "retry",
	}))

	r, err := NewGetTaskContextTool(store).Handle(context.Background(), makeReq(map[string]interface{}{
		"scope": "proj:api", "queries": []interface{}{"retry"},
	}))
	if err != nil || r.IsError {
		t.Fatalf("Handle() = %v, %s", err, resultText(r))
	}
	got, ok := r.StructuredContent.(taskContext)
	if !ok {
		t.Fatalf("StructuredContent = %T, want taskContext", r.StructuredContent)
	}
	want := map[string]map[string]string{
		"proj:api":     {local: "Retry idempotent calls"},
		"proj:default": {inherited: "Log every retry"},
	}
	if !reflect.DeepEqual(got.Knowledge, want) {
		t.Errorf("Knowledge = %v, want %v", got.Knowledge, want)
	}
	if len(got.Ranked) != 2 || got.Scope != "proj:api" {
		t.Errorf("Ranked = %v, Scope = %q", got.Ranked, got.Scope)
	}
	text := resultText(r)
	for _, id := range got.Ranked {
		if !strings.Contains(text, id) {
			t.Errorf("text result is missing %s:\n%s", id, text)
		}
	}
}

func TestKnowledgeTools_UpdateMoveDelete(t *testing.T) {
	store := newTestStore(t)
	call(t, NewCreateNamespaceTool(store), map[string]interface{}{"name": "proj", "description": "Project"})
	call(t, NewCreateScopeTool(store), map[string]interface{}{"scope": "proj:api", "description": "API"})
	id := idFrom(t, call(t, NewWriteKnowledgeTool(store), map[string]interface{}{
		"scope": "proj:default", "content": "c", "context": "x",
	}))

	text := call(t, NewUpdateKnowledgeTool(store), map[string]interface{}{"id": id, "task_size": "xl"})
	if !strings.Contains(text, "Task size: XL") {
		t.Errorf("update response: %s", text)
	}
	mustBeToolError(t, NewUpdateKnowledgeTool(store), map[string]interface{}{"id": id}, "provide at least one")

	text = call(t, NewMoveKnowledgeTool(store), map[string]interface{}{"id": id, "scope": "proj:api"})
	if !strings.Contains(text, "Scope: proj:api") {
		t.Errorf("move response: %s", text)
	}
	mustBeToolError(t, NewMoveKnowledgeTool(store), map[string]interface{}{"id": id, "scope": "proj:gone"}, "scope not found")

	call(t, NewDeleteKnowledgeTool(store), map[string]interface{}{"id": id})
	mustBeToolError(t, NewDeleteKnowledgeTool(store), map[string]interface{}{"id": id}, "not found")
}

// ─── Config tools ───────────────────────────────────────────────────────────

func TestConfigTools(t *testing.T) {
	store := newTestStore(t)

	text := call(t, NewListConfigTool(store), map[string]interface{}{})
	for _, key := range []string{knowledge.SettingMaxResults, knowledge.SettingContentWeight, knowledge.SettingContextWeight} {
		if !strings.Contains(text, key) {
			t.Errorf("list missing %s:\n%s", key, text)
		}
	}

	text = call(t, NewUpdateConfigTool(store), map[string]interface{}{"key": knowledge.SettingMaxResults, "value": "5"})
	if !strings.Contains(text, "= 5") {
		t.Errorf("update response: %s", text)
	}
	mustBeToolError(t, NewUpdateConfigTool(store), map[string]interface{}{"key": knowledge.SettingMaxResults, "value": "many"}, "integer")

	text = call(t, NewResetConfigTool(store), map[string]interface{}{"key": knowledge.SettingMaxResults})
	if !strings.Contains(text, "= 50") {
		t.Errorf("reset response: %s", text)
	}
	mustBeToolError(t, NewResetConfigTool(store), map[string]interface{}{"key": "nope"}, "not found")
}
