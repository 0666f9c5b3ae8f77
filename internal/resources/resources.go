// Package resources implements MCP resource handlers for the knowledge
// engine.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (kaizen://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/project-kaizen/kaizen/internal/knowledge"
)

// URIs served by Handler.
const (
	NamespacesURI = "kaizen://namespaces"
	SettingsURI   = "kaizen://settings"
)

// Handler manages knowledge resource endpoints.
type Handler struct {
	store *knowledge.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *knowledge.Store) *Handler {
	return &Handler{store: store}
}

// NamespacesResource returns the MCP resource definition for the scope tree.
func (h *Handler) NamespacesResource() mcp.Resource {
	return mcp.NewResource(
		NamespacesURI,
		"Kaizen Namespaces",
		mcp.WithResourceDescription("Every namespace with its scopes and their parents"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleNamespaces returns the full namespace tree as JSON.
func (h *Handler) HandleNamespaces(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.store.ListNamespaces(ctx, "", knowledge.StyleDetails)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, list)
}

// SettingsResource returns the MCP resource definition for runtime settings.
func (h *Handler) SettingsResource() mcp.Resource {
	return mcp.NewResource(
		SettingsURI,
		"Kaizen Settings",
		mcp.WithResourceDescription("Runtime search settings with current and default values"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSettings returns the runtime settings as JSON.
func (h *Handler) HandleSettings(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	settings, err := h.store.ListSettings(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, settings)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
