// Package prompts implements MCP prompt handlers for the knowledge engine.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// TaskContextPrompt handles the kaizen-task-context MCP prompt.
// It guides the AI to load the knowledge relevant to a task before starting.
type TaskContextPrompt struct{}

// NewTaskContextPrompt creates a TaskContextPrompt.
func NewTaskContextPrompt() *TaskContextPrompt {
	return &TaskContextPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *TaskContextPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kaizen-task-context",
		mcp.WithPromptDescription(
			"Load the knowledge that applies to a task before working on it.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you are about to do"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("scope",
			mcp.ArgumentDescription("Canonical scope to search from, e.g. my-project:backend. Default: global:default"),
		),
	)
}

// Handle processes the kaizen-task-context prompt request.
func (p *TaskContextPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := req.Params.Arguments["task"]
	if task == "" {
		return nil, fmt.Errorf("argument 'task' is required")
	}
	scope := "global:default"
	if s := req.Params.Arguments["scope"]; s != "" {
		scope = s
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Task context for %s", scope),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I am about to work on this task in scope %s:\n\n%s\n\n"+
						"Before you start:\n"+
						"1. Split the task into 2-5 short search queries, one per aspect (technology, component, concern)\n"+
						"2. Run `get_task_context` with scope='%s' and those queries\n"+
						"3. If results contradict each other, tell me and offer to run `resolve_knowledge_conflict`\n"+
						"4. Summarize the knowledge that applies, then begin the task following it",
					scope, task, scope,
				)),
			},
		},
	}, nil
}
