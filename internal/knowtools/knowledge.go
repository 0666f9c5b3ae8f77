package knowtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

var taskSizeEnum = []string{"XS", "S", "M", "L", "XL"}

// taskSizeArg parses an optional task_size argument.
func taskSizeArg(req mcp.CallToolRequest) (knowledge.TaskSize, error) {
	return knowledge.ParseTaskSize(req.GetString("task_size", ""))
}

func entryText(verb string, e *knowledge.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Knowledge %s: %s\nScope: %s\n", verb, e.ID, e.Scope)
	if e.TaskSize != "" {
		fmt.Fprintf(&b, "Task size: %s\n", e.TaskSize)
	}
	fmt.Fprintf(&b, "Updated: %s", e.UpdatedAt)
	return b.String()
}

// ─── WriteKnowledgeTool ─────────────────────────────────────────────────────

// WriteKnowledgeTool handles the write_knowledge MCP tool.
type WriteKnowledgeTool struct {
	store *knowledge.Store
}

// NewWriteKnowledgeTool creates a WriteKnowledgeTool.
func NewWriteKnowledgeTool(store *knowledge.Store) *WriteKnowledgeTool {
	return &WriteKnowledgeTool{store: store}
}

// Definition returns the MCP tool definition for write_knowledge.
func (t *WriteKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("write_knowledge",
		mcp.WithDescription(
			"Store a piece of knowledge in a scope. Write it to the most general scope where it applies so every inheriting scope sees it.",
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("Canonical scope name"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The knowledge itself"),
		),
		mcp.WithString("context",
			mcp.Required(),
			mcp.Description("Keywords describing when this knowledge applies; used for search"),
		),
		mcp.WithString("task_size",
			mcp.Description("Smallest task size this knowledge matters for"),
			mcp.Enum(taskSizeEnum...),
		),
	)
}

// Handle processes the write_knowledge tool call.
func (t *WriteKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := req.GetString("scope", "")
	content := req.GetString("content", "")
	contextText := req.GetString("context", "")
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := checkLen("content", content, maxContentLen); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := checkLen("context", contextText, maxContextLen); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size, err := taskSizeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := t.store.Write(ctx, scope, content, contextText, size)
	if err != nil {
		return storeError("write knowledge", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Knowledge saved in %s\nID: %s", scope, id)), nil
}

// ─── UpdateKnowledgeTool ────────────────────────────────────────────────────

// UpdateKnowledgeTool handles the update_knowledge MCP tool.
type UpdateKnowledgeTool struct {
	store *knowledge.Store
}

// NewUpdateKnowledgeTool creates an UpdateKnowledgeTool.
func NewUpdateKnowledgeTool(store *knowledge.Store) *UpdateKnowledgeTool {
	return &UpdateKnowledgeTool{store: store}
}

// Definition returns the MCP tool definition for update_knowledge.
func (t *UpdateKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("update_knowledge",
		mcp.WithDescription("Change any of a knowledge entry's content, context, scope or task size. Omitted fields stay as they are."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge ID")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("context", mcp.Description("New context keywords")),
		mcp.WithString("scope", mcp.Description("New canonical scope name")),
		mcp.WithString("task_size",
			mcp.Description("New task size"),
			mcp.Enum(taskSizeEnum...),
		),
	)
}

// Handle processes the update_knowledge tool call.
func (t *UpdateKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	u := knowledge.EntryUpdate{
		Content: optString(req, "content"),
		Context: optString(req, "context"),
		Scope:   optString(req, "scope"),
	}
	if u.Content != nil {
		if err := checkLen("content", *u.Content, maxContentLen); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if u.Context != nil {
		if err := checkLen("context", *u.Context, maxContextLen); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if u.Scope != nil {
		if err := checkScopeRefs("scope", *u.Scope); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if optString(req, "task_size") != nil {
		size, err := taskSizeArg(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		u.TaskSize = &size
	}
	if u.Content == nil && u.Context == nil && u.Scope == nil && u.TaskSize == nil {
		return mcp.NewToolResultError("provide at least one of 'content', 'context', 'scope', 'task_size'"), nil
	}

	e, err := t.store.Update(ctx, id, u)
	if err != nil {
		return storeError("update knowledge", err), nil
	}
	return mcp.NewToolResultText(entryText("updated", e)), nil
}

// ─── MoveKnowledgeTool ──────────────────────────────────────────────────────

// MoveKnowledgeTool handles the move_knowledge MCP tool.
type MoveKnowledgeTool struct {
	store *knowledge.Store
}

// NewMoveKnowledgeTool creates a MoveKnowledgeTool.
func NewMoveKnowledgeTool(store *knowledge.Store) *MoveKnowledgeTool {
	return &MoveKnowledgeTool{store: store}
}

// Definition returns the MCP tool definition for move_knowledge.
func (t *MoveKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("move_knowledge",
		mcp.WithDescription("Move a knowledge entry to another scope, e.g. to promote it to a more general scope."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge ID")),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Target canonical scope name")),
	)
}

// Handle processes the move_knowledge tool call.
func (t *MoveKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	scope := req.GetString("scope", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := checkScopeRefs("scope", scope); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := t.store.Move(ctx, id, scope)
	if err != nil {
		return storeError("move knowledge", err), nil
	}
	return mcp.NewToolResultText(entryText("moved", e)), nil
}

// ─── DeleteKnowledgeTool ────────────────────────────────────────────────────

// DeleteKnowledgeTool handles the delete_knowledge MCP tool.
type DeleteKnowledgeTool struct {
	store *knowledge.Store
}

// NewDeleteKnowledgeTool creates a DeleteKnowledgeTool.
func NewDeleteKnowledgeTool(store *knowledge.Store) *DeleteKnowledgeTool {
	return &DeleteKnowledgeTool{store: store}
}

// Definition returns the MCP tool definition for delete_knowledge.
func (t *DeleteKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_knowledge",
		mcp.WithDescription("Delete a knowledge entry. Entries it suppressed become active again."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge ID")),
	)
}

// Handle processes the delete_knowledge tool call.
func (t *DeleteKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.Delete(ctx, id); err != nil {
		return storeError("delete knowledge", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Knowledge deleted: %s", id)), nil
}

// ─── ResolveConflictTool ────────────────────────────────────────────────────

// ResolveConflictTool handles the resolve_knowledge_conflict MCP tool.
type ResolveConflictTool struct {
	store *knowledge.Store
}

// NewResolveConflictTool creates a ResolveConflictTool.
func NewResolveConflictTool(store *knowledge.Store) *ResolveConflictTool {
	return &ResolveConflictTool{store: store}
}

// Definition returns the MCP tool definition for resolve_knowledge_conflict.
func (t *ResolveConflictTool) Definition() mcp.Tool {
	return mcp.NewTool("resolve_knowledge_conflict",
		mcp.WithDescription(
			"When two entries contradict each other, keep one active and hide the others from search without deleting them.",
		),
		mcp.WithString("active_id", mcp.Required(), mcp.Description("Knowledge ID that stays active")),
		mcp.WithArray("suppressed_ids",
			mcp.Required(),
			mcp.Description("Knowledge IDs to hide"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the resolve_knowledge_conflict tool call.
func (t *ResolveConflictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active := req.GetString("active_id", "")
	if active == "" {
		return mcp.NewToolResultError("'active_id' is required"), nil
	}
	suppressed, _, err := stringsArg(req, "suppressed_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.store.Resolve(ctx, active, suppressed)
	if err != nil {
		return storeError("resolve conflict", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Active: %s\nSuppressed:\n%s\nChanged: %d",
		res.ActiveID, bullets(res.SuppressedIDs), res.Changed,
	)), nil
}
