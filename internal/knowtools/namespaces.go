package knowtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// GetNamespacesTool handles the get_namespaces MCP tool.
type GetNamespacesTool struct {
	store *knowledge.Store
}

// NewGetNamespacesTool creates a GetNamespacesTool.
func NewGetNamespacesTool(store *knowledge.Store) *GetNamespacesTool {
	return &GetNamespacesTool{store: store}
}

// Definition returns the MCP tool definition for get_namespaces.
func (t *GetNamespacesTool) Definition() mcp.Tool {
	return mcp.NewTool("get_namespaces",
		mcp.WithDescription(
			"List namespaces. Use style 'long' to include scopes and 'details' to also include each scope's parents. "+
				"Call this first to discover which scopes exist before searching or writing knowledge.",
		),
		mcp.WithString("namespace",
			mcp.Description("Only show this namespace"),
		),
		mcp.WithString("style",
			mcp.Description("Output detail: short (default), long, details"),
			mcp.Enum(string(knowledge.StyleShort), string(knowledge.StyleLong), string(knowledge.StyleDetails)),
		),
	)
}

// Handle processes the get_namespaces tool call.
func (t *GetNamespacesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	style, err := knowledge.ParseListStyle(req.GetString("style", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := t.store.ListNamespaces(ctx, req.GetString("namespace", ""), style)
	if err != nil {
		return storeError("list namespaces", err), nil
	}
	return mcp.NewToolResultText(RenderNamespaces(list, style)), nil
}

// RenderNamespaces formats a namespace listing as markdown.
func RenderNamespaces(list []knowledge.Namespace, style knowledge.ListStyle) string {
	var b strings.Builder
	b.WriteString("# Namespaces\n")
	for _, ns := range list {
		fmt.Fprintf(&b, "\n## %s\n%s\n", ns.Name, ns.Description)
		if style == knowledge.StyleShort {
			continue
		}
		for _, sc := range ns.Scopes {
			fmt.Fprintf(&b, "- **%s**: %s", sc.Label(), sc.Description)
			if style == knowledge.StyleDetails && len(sc.Parents) > 0 {
				fmt.Fprintf(&b, " (parents: %s)", strings.Join(sc.Parents, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ─── CreateNamespaceTool ────────────────────────────────────────────────────

// CreateNamespaceTool handles the create_namespace MCP tool.
type CreateNamespaceTool struct {
	store *knowledge.Store
}

// NewCreateNamespaceTool creates a CreateNamespaceTool.
func NewCreateNamespaceTool(store *knowledge.Store) *CreateNamespaceTool {
	return &CreateNamespaceTool{store: store}
}

// Definition returns the MCP tool definition for create_namespace.
func (t *CreateNamespaceTool) Definition() mcp.Tool {
	return mcp.NewTool("create_namespace",
		mcp.WithDescription("Create a namespace. Its 'default' scope is created with it."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Namespace name: 2-64 lowercase letters, digits or hyphens"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What this namespace holds"),
		),
	)
}

// Handle processes the create_namespace tool call.
func (t *CreateNamespaceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	description := req.GetString("description", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	if err := checkLen("description", description, maxDescriptionLen); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ns, err := t.store.CreateNamespace(ctx, name, description)
	if err != nil {
		return storeError("create namespace", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Namespace created: %s\nDefault scope: %s:default", ns.Name, ns.Name)), nil
}

// ─── UpdateNamespaceTool ────────────────────────────────────────────────────

// UpdateNamespaceTool handles the update_namespace MCP tool.
type UpdateNamespaceTool struct {
	store *knowledge.Store
}

// NewUpdateNamespaceTool creates an UpdateNamespaceTool.
func NewUpdateNamespaceTool(store *knowledge.Store) *UpdateNamespaceTool {
	return &UpdateNamespaceTool{store: store}
}

// Definition returns the MCP tool definition for update_namespace.
func (t *UpdateNamespaceTool) Definition() mcp.Tool {
	return mcp.NewTool("update_namespace",
		mcp.WithDescription("Rename a namespace and/or change its description. Scopes and knowledge follow a rename."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Current namespace name"),
		),
		mcp.WithString("new_name",
			mcp.Description("New namespace name"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
	)
}

// Handle processes the update_namespace tool call.
func (t *UpdateNamespaceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	u := knowledge.NamespaceUpdate{
		Name:        optString(req, "new_name"),
		Description: optString(req, "description"),
	}
	if u.Name == nil && u.Description == nil {
		return mcp.NewToolResultError("provide 'new_name' and/or 'description'"), nil
	}
	if u.Description != nil {
		if err := checkLen("description", *u.Description, maxDescriptionLen); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	ns, err := t.store.UpdateNamespace(ctx, name, u)
	if err != nil {
		return storeError("update namespace", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Namespace updated: %s\n%s", ns.Name, ns.Description)), nil
}

// ─── DeleteNamespaceTool ────────────────────────────────────────────────────

// DeleteNamespaceTool handles the delete_namespace MCP tool.
type DeleteNamespaceTool struct {
	store *knowledge.Store
}

// NewDeleteNamespaceTool creates a DeleteNamespaceTool.
func NewDeleteNamespaceTool(store *knowledge.Store) *DeleteNamespaceTool {
	return &DeleteNamespaceTool{store: store}
}

// Definition returns the MCP tool definition for delete_namespace.
func (t *DeleteNamespaceTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_namespace",
		mcp.WithDescription("Delete a namespace with all of its scopes and knowledge. This cannot be undone."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Namespace to delete"),
		),
	)
}

// Handle processes the delete_namespace tool call.
func (t *DeleteNamespaceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}
	res, err := t.store.DeleteNamespace(ctx, name)
	if err != nil {
		return storeError("delete namespace", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Namespace deleted: %s\nScopes deleted: %d\nKnowledge deleted: %d",
		res.Namespace, res.ScopesDeleted, res.KnowledgeDeleted,
	)), nil
}
