package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CapturePrompt handles the kaizen-capture MCP prompt.
// It asks the AI to store what was learned during a task.
type CapturePrompt struct{}

// NewCapturePrompt creates a CapturePrompt.
func NewCapturePrompt() *CapturePrompt {
	return &CapturePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CapturePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kaizen-capture",
		mcp.WithPromptDescription("Save what was learned in this session as reusable knowledge."),
		mcp.WithArgument("scope",
			mcp.ArgumentDescription("Scope the work happened in. Default: global:default"),
		),
	)
}

// Handle processes the kaizen-capture prompt request.
func (p *CapturePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	scope := "global:default"
	if s := req.Params.Arguments["scope"]; s != "" {
		scope = s
	}

	return &mcp.GetPromptResult{
		Description: "Capture learnings",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Review what we did in this session (scope %s) and capture what future work should know.\n\n"+
						"For each learning:\n"+
						"1. Run `get_scope_ancestors` on %s and pick the most general scope the learning applies to\n"+
						"2. Run `get_task_context` to check it is not already stored; update the existing entry instead if it is\n"+
						"3. Run `write_knowledge` with short content, search-friendly context keywords and a task_size when it only matters for larger tasks\n\n"+
						"List what you stored when done.",
					scope, scope,
				)),
			},
		},
	}, nil
}
