package knowtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// scopeText renders a scope with its parents.
func scopeText(verb string, sc *knowledge.Scope) string {
	return fmt.Sprintf("Scope %s: %s\nDescription: %s\nParents:\n%s",
		verb, sc.Label(), sc.Description, bullets(sc.Parents))
}

// parentsArg reads and validates a parents array.
func parentsArg(req mcp.CallToolRequest) ([]string, bool, error) {
	parents, present, err := stringsArg(req, "parents")
	if err != nil {
		return nil, present, err
	}
	if err := checkScopeRefs("parents", parents...); err != nil {
		return nil, present, err
	}
	return parents, present, nil
}

func withParents(required bool, desc string) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description(desc),
		mcp.Items(map[string]any{"type": "string"}),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithArray("parents", opts...)
}

// ─── CreateScopeTool ────────────────────────────────────────────────────────

// CreateScopeTool handles the create_scope MCP tool.
type CreateScopeTool struct {
	store *knowledge.Store
}

// NewCreateScopeTool creates a CreateScopeTool.
func NewCreateScopeTool(store *knowledge.Store) *CreateScopeTool {
	return &CreateScopeTool{store: store}
}

// Definition returns the MCP tool definition for create_scope.
func (t *CreateScopeTool) Definition() mcp.Tool {
	return mcp.NewTool("create_scope",
		mcp.WithDescription(
			"Create a scope inside an existing namespace. Knowledge written to a scope is visible from every scope that inherits from it. "+
				"The namespace's default scope is always added as a parent.",
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Canonical name, e.g. 'my-project:backend'"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What this scope covers"),
		),
		withParents(false, "Parent scopes in namespace:scope form; may cross namespaces"),
	)
}

// Handle processes the create_scope tool call.
func (t *CreateScopeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	description := req.GetString("description", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := checkLen("description", description, maxDescriptionLen); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parents, _, err := parentsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sc, err := t.store.CreateScope(ctx, scope, description, parents)
	if err != nil {
		return storeError("create scope", err), nil
	}
	return mcp.NewToolResultText(scopeText("created", sc)), nil
}

// ─── UpdateScopeTool ────────────────────────────────────────────────────────

// UpdateScopeTool handles the update_scope MCP tool.
type UpdateScopeTool struct {
	store *knowledge.Store
}

// NewUpdateScopeTool creates an UpdateScopeTool.
func NewUpdateScopeTool(store *knowledge.Store) *UpdateScopeTool {
	return &UpdateScopeTool{store: store}
}

// Definition returns the MCP tool definition for update_scope.
func (t *UpdateScopeTool) Definition() mcp.Tool {
	return mcp.NewTool("update_scope",
		mcp.WithDescription(
			"Rename a scope within its namespace, change its description, or replace its full parent list. "+
				"Omit 'parents' to keep the current parents. Changes that would create an inheritance cycle are rejected.",
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Current canonical name"),
		),
		mcp.WithString("new_scope",
			mcp.Description("New canonical name in the same namespace"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
		withParents(false, "Replacement parent list"),
	)
}

// Handle processes the update_scope tool call.
func (t *UpdateScopeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var u knowledge.ScopeUpdate
	if u.Name = optString(req, "new_scope"); u.Name != nil {
		if err := checkScopeRefs("new_scope", *u.Name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if u.Description = optString(req, "description"); u.Description != nil {
		if err := checkLen("description", *u.Description, maxDescriptionLen); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	parents, present, err := parentsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if present {
		u.Parents = &parents
	}
	if u.Name == nil && u.Description == nil && u.Parents == nil {
		return mcp.NewToolResultError("provide 'new_scope', 'description' and/or 'parents'"), nil
	}

	sc, err := t.store.UpdateScope(ctx, scope, u)
	if err != nil {
		return storeError("update scope", err), nil
	}
	return mcp.NewToolResultText(scopeText("updated", sc)), nil
}

// ─── DeleteScopeTool ────────────────────────────────────────────────────────

// DeleteScopeTool handles the delete_scope MCP tool.
type DeleteScopeTool struct {
	store *knowledge.Store
}

// NewDeleteScopeTool creates a DeleteScopeTool.
func NewDeleteScopeTool(store *knowledge.Store) *DeleteScopeTool {
	return &DeleteScopeTool{store: store}
}

// Definition returns the MCP tool definition for delete_scope.
func (t *DeleteScopeTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_scope",
		mcp.WithDescription("Delete a scope and the knowledge bound to it. Default scopes cannot be deleted."),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Canonical name of the scope to delete"),
		),
	)
}

// Handle processes the delete_scope tool call.
func (t *DeleteScopeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.store.DeleteScope(ctx, scope)
	if err != nil {
		return storeError("delete scope", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Scope deleted: %s\nKnowledge deleted: %d", res.Scope, res.KnowledgeDeleted)), nil
}

// ─── Parent edges ───────────────────────────────────────────────────────────

// ScopeParentsTool handles add_scope_parents and remove_scope_parents.
type ScopeParentsTool struct {
	store  *knowledge.Store
	remove bool
}

// NewAddScopeParentsTool creates the add_scope_parents tool.
func NewAddScopeParentsTool(store *knowledge.Store) *ScopeParentsTool {
	return &ScopeParentsTool{store: store}
}

// NewRemoveScopeParentsTool creates the remove_scope_parents tool.
func NewRemoveScopeParentsTool(store *knowledge.Store) *ScopeParentsTool {
	return &ScopeParentsTool{store: store, remove: true}
}

// Definition returns the MCP tool definition.
func (t *ScopeParentsTool) Definition() mcp.Tool {
	if t.remove {
		return mcp.NewTool("remove_scope_parents",
			mcp.WithDescription(
				"Remove parent edges from a scope. Every listed parent must currently be a parent, otherwise nothing is removed. "+
					"The namespace default parent is always kept.",
			),
			mcp.WithString("scope", mcp.Required(), mcp.Description("Canonical name of the child scope")),
			withParents(true, "Parents to remove"),
		)
	}
	return mcp.NewTool("add_scope_parents",
		mcp.WithDescription(
			"Add parent edges to a scope. Existing edges are ignored. If any parent is missing or would create a cycle, nothing is added.",
		),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Canonical name of the child scope")),
		withParents(true, "Parents to add"),
	)
}

// Handle processes the tool call.
func (t *ScopeParentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parents, _, err := parentsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(parents) == 0 {
		return mcp.NewToolResultError("'parents' must list at least one scope"), nil
	}

	var sc *knowledge.Scope
	if t.remove {
		sc, err = t.store.RemoveParents(ctx, scope, parents)
	} else {
		sc, err = t.store.AddParents(ctx, scope, parents)
	}
	if err != nil {
		return storeError("change scope parents", err), nil
	}
	return mcp.NewToolResultText(scopeText("updated", sc)), nil
}

// ─── GetScopeAncestorsTool ──────────────────────────────────────────────────

// GetScopeAncestorsTool handles the get_scope_ancestors MCP tool.
type GetScopeAncestorsTool struct {
	store *knowledge.Store
}

// NewGetScopeAncestorsTool creates a GetScopeAncestorsTool.
func NewGetScopeAncestorsTool(store *knowledge.Store) *GetScopeAncestorsTool {
	return &GetScopeAncestorsTool{store: store}
}

// Definition returns the MCP tool definition for get_scope_ancestors.
func (t *GetScopeAncestorsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_scope_ancestors",
		mcp.WithDescription("Show every scope whose knowledge is visible from a scope, with its inheritance distance."),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Canonical scope name")),
	)
}

// Handle processes the get_scope_ancestors tool call.
func (t *GetScopeAncestorsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	closure, err := t.store.AncestorClosure(ctx, scope)
	if err != nil {
		return storeError("resolve ancestors", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ancestors of %s\n\n", scope)
	for _, c := range closure {
		fmt.Fprintf(&b, "- %s (level %d)\n", c.Scope, c.Level)
	}
	return mcp.NewToolResultText(b.String()), nil
}
