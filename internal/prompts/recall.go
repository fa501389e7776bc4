// Package prompts implements MCP prompt handlers for the knowledge base.
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

// RecallPrompt handles the kb-recall MCP prompt.
// It guides the AI to load relevant memories, rules, and open plans
// at the start of a working session.
type RecallPrompt struct{}

// NewRecallPrompt creates a RecallPrompt.
func NewRecallPrompt() *RecallPrompt {
	return &RecallPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *RecallPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kb-recall",
		mcp.WithPromptDescription(
			"Load relevant context from the knowledge base at the start of a session. "+
				"Searches memories and programming rules for the topic you're working on "+
				"and lists any open plans.",
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What you're about to work on (e.g. 'auth service', 'postgres migrations')"),
		),
		mcp.WithArgument("language",
			mcp.ArgumentDescription("Programming language for rule lookup (e.g. 'go', 'python')"),
		),
	)
}

// Handle processes the kb-recall prompt request.
func (p *RecallPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := "the current task"
	if args := req.Params.Arguments; args != nil {
		if t, ok := args["topic"]; ok && t != "" {
			topic = t
		}
	}

	ruleStep := "2. Run `search_rules` with a query matching the topic to surface applicable coding standards\n"
	if args := req.Params.Arguments; args != nil {
		if lang, ok := args["language"]; ok && lang != "" {
			ruleStep = fmt.Sprintf(
				"2. Run `search_rules` with language='%s' and a query matching the topic to surface applicable coding standards\n",
				lang,
			)
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Recall knowledge about: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I'm about to work on %s. Before we start, please load my stored context:\n\n"+
						"1. Run `search_memory` with a query describing the topic to find relevant past decisions and preferences\n"+
						"%s"+
						"3. Run `list_plans` with only_open=true to check for unfinished work\n\n"+
						"Then give me a short summary: what you found, which rules apply, "+
						"and whether any open plan overlaps with this task.",
					topic, ruleStep,
				)),
			},
		},
	}, nil
}
