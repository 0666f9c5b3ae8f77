package knowtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// ListConfigTool handles the list_config MCP tool.
type ListConfigTool struct {
	store *knowledge.Store
}

// NewListConfigTool creates a ListConfigTool.
func NewListConfigTool(store *knowledge.Store) *ListConfigTool {
	return &ListConfigTool{store: store}
}

// Definition returns the MCP tool definition for list_config.
func (t *ListConfigTool) Definition() mcp.Tool {
	return mcp.NewTool("list_config",
		mcp.WithDescription("List runtime settings with their current and default values."),
	)
}

// Handle processes the list_config tool call.
func (t *ListConfigTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, err := t.store.ListSettings(ctx)
	if err != nil {
		return storeError("list settings", err), nil
	}
	var b strings.Builder
	b.WriteString("# Settings\n")
	for _, st := range settings {
		fmt.Fprintf(&b, "\n- **%s** = %s (%s, default %s)\n  %s", st.Key, st.Value, st.Type, st.DefaultValue, st.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// UpdateConfigTool handles the update_config MCP tool.
type UpdateConfigTool struct {
	store *knowledge.Store
}

// NewUpdateConfigTool creates an UpdateConfigTool.
func NewUpdateConfigTool(store *knowledge.Store) *UpdateConfigTool {
	return &UpdateConfigTool{store: store}
}

// Definition returns the MCP tool definition for update_config.
func (t *UpdateConfigTool) Definition() mcp.Tool {
	return mcp.NewTool("update_config",
		mcp.WithDescription("Change a runtime setting. The value must parse as the setting's type."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Setting key, e.g. search.max_results")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value")),
	)
}

// Handle processes the update_config tool call.
func (t *UpdateConfigTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("key", "")
	value := req.GetString("value", "")
	if key == "" || value == "" {
		return mcp.NewToolResultError("'key' and 'value' are required"), nil
	}
	st, err := t.store.UpdateSetting(ctx, key, value)
	if err != nil {
		return storeError("update setting", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Setting updated: %s = %s", st.Key, st.Value)), nil
}

// ResetConfigTool handles the reset_config MCP tool.
type ResetConfigTool struct {
	store *knowledge.Store
}

// NewResetConfigTool creates a ResetConfigTool.
func NewResetConfigTool(store *knowledge.Store) *ResetConfigTool {
	return &ResetConfigTool{store: store}
}

// Definition returns the MCP tool definition for reset_config.
func (t *ResetConfigTool) Definition() mcp.Tool {
	return mcp.NewTool("reset_config",
		mcp.WithDescription("Restore a runtime setting to its default value."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Setting key")),
	)
}

// Handle processes the reset_config tool call.
func (t *ResetConfigTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("key", "")
	if key == "" {
		return mcp.NewToolResultError("'key' is required"), nil
	}
	st, err := t.store.ResetSetting(ctx, key)
	if err != nil {
		return storeError("reset setting", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Setting reset: %s = %s", st.Key, st.Value)), nil
}
