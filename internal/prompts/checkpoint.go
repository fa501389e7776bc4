package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CheckpointPrompt handles the kb-checkpoint MCP prompt.
// It instructs the AI to persist what was learned in the current
// session before it ends.
type CheckpointPrompt struct{}

// NewCheckpointPrompt creates a CheckpointPrompt.
func NewCheckpointPrompt() *CheckpointPrompt {
	return &CheckpointPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CheckpointPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kb-checkpoint",
		mcp.WithPromptDescription(
			"Save the current session's learnings to the knowledge base. "+
				"Stores decisions as memories, conventions as programming rules, "+
				"and updates plan progress.",
		),
	)
}

// Handle processes the kb-checkpoint prompt request.
func (p *CheckpointPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Checkpoint session knowledge",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"We're wrapping up this session. Please persist what we learned:\n\n" +
						"1. For each significant decision or piece of project context from this session, " +
						"run `add_memory` with descriptive tags\n" +
						"2. If we established any coding conventions worth enforcing, " +
						"run `add_programming_rule` for each (pick an appropriate severity)\n" +
						"3. If we worked on a plan, run `update_plan_item` for every checklist item " +
						"whose status changed\n\n" +
						"List what you saved so I can confirm nothing important was missed.",
				),
			},
		},
	}, nil
}
