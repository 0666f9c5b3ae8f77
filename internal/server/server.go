// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it takes the concrete knowledge store and
// injects it into the tools, prompts and resources. No business logic lives
// here, only wiring.
package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/project-kaizen/kaizen/internal/knowledge"
	"github.com/project-kaizen/kaizen/internal/knowtools"
	"github.com/project-kaizen/kaizen/internal/prompts"
	"github.com/project-kaizen/kaizen/internal/resources"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name is the server name reported during MCP initialization.
const Name = "kaizen"

// tool is what every knowtools type implements.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with every tool, prompt and resource
// registered. The caller owns store and closes it after the server stops.
func New(store *knowledge.Store, log *zap.Logger) *server.MCPServer {
	if log == nil {
		log = zap.NewNop()
	}

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(logCalls(log)),
		server.WithInstructions(serverInstructions()),
	)

	for _, t := range tools(store) {
		s.AddTool(t.Definition(), t.Handle)
	}

	// --- Register prompts ---

	taskContext := prompts.NewTaskContextPrompt()
	s.AddPrompt(taskContext.Definition(), taskContext.Handle)

	capture := prompts.NewCapturePrompt()
	s.AddPrompt(capture.Definition(), capture.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(store)
	s.AddResource(rh.NamespacesResource(), rh.HandleNamespaces)
	s.AddResource(rh.SettingsResource(), rh.HandleSettings)

	return s
}

// tools lists all 19 knowledge tools in registration order.
func tools(store *knowledge.Store) []tool {
	return []tool{
		// --- Namespaces ---
		knowtools.NewGetNamespacesTool(store),
		knowtools.NewCreateNamespaceTool(store),
		knowtools.NewUpdateNamespaceTool(store),
		knowtools.NewDeleteNamespaceTool(store),

		// --- Scopes ---
		knowtools.NewCreateScopeTool(store),
		knowtools.NewUpdateScopeTool(store),
		knowtools.NewDeleteScopeTool(store),
		knowtools.NewAddScopeParentsTool(store),
		knowtools.NewRemoveScopeParentsTool(store),
		knowtools.NewGetScopeAncestorsTool(store),

		// --- Knowledge ---
		knowtools.NewWriteKnowledgeTool(store),
		knowtools.NewUpdateKnowledgeTool(store),
		knowtools.NewMoveKnowledgeTool(store),
		knowtools.NewDeleteKnowledgeTool(store),
		knowtools.NewResolveConflictTool(store),
		knowtools.NewGetTaskContextTool(store),

		// --- Settings ---
		knowtools.NewListConfigTool(store),
		knowtools.NewUpdateConfigTool(store),
		knowtools.NewResetConfigTool(store),
	}
}

// logCalls records every tool call with its duration and outcome.
func logCalls(log *zap.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			res, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("tool", req.Params.Name),
				zap.Duration("took", time.Since(start)),
			}
			switch {
			case err != nil:
				log.Error("tool call failed", append(fields, zap.Error(err))...)
			case res != nil && res.IsError:
				log.Info("tool call rejected", fields...)
			default:
				log.Debug("tool call", fields...)
			}
			return res, err
		}
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use Kaizen effectively.
func serverInstructions() string {
	return `You have access to Kaizen, a scoped knowledge base for coding work.

## Model
- A NAMESPACE groups related scopes (a company, a team, a product).
- A SCOPE is written "namespace:scope", for example "acme:backend".
  Every namespace has a "namespace:default" scope.
- Scopes inherit from PARENT scopes. Every scope other than a default
  inherits its own namespace's default, and any scope may add parents from
  other namespaces such as "global:default". Inheritance never forms a
  cycle.
- KNOWLEDGE is a short rule or fact (content) plus when it applies
  (context), bound to exactly one scope, with an optional task size
  XS, S, M, L or XL.

## Retrieval
Before starting a task, call get_task_context with 1-10 short keyword
queries and the most specific scope for the work. Kaizen searches that
scope and every ancestor. With task_size, only knowledge sized for tasks
at least that large is returned.

## Capture
When the user states a durable rule, convention or correction, call
write_knowledge with the narrowest scope that fits. Prefer updating an
existing entry over writing a near-duplicate.

## Conflicts
When two entries contradict each other, call resolve_knowledge_conflict
with the entry that should win as active_id. Suppressed entries
stay stored but no longer appear in results.

## Settings
list_config, update_config and reset_config tune search: the result limit
and the weights of the content and context columns.`
}
