package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memkb/memkb/internal/knowledge"
)

// ─── AddRuleTool ────────────────────────────────────────────────────────────

// AddRuleTool handles the add_programming_rule MCP tool.
type AddRuleTool struct {
	svc *knowledge.Service
}

// NewAddRuleTool creates an AddRuleTool.
func NewAddRuleTool(svc *knowledge.Service) *AddRuleTool {
	return &AddRuleTool{svc: svc}
}

// Definition returns the MCP tool definition for add_programming_rule.
func (t *AddRuleTool) Definition() mcp.Tool {
	return mcp.NewTool("add_programming_rule",
		mcp.WithDescription(
			"Add a programming rule with structured, validated metadata. Hierarchical tags are "+
				"derived automatically from language/framework/category. Near-duplicate rules are "+
				"refused by default. Rules are never updated in place — supersede one by adding a "+
				"new rule whose 'replaces' names the old rule's id.",
		),
		mcp.WithString("rule_text",
			mcp.Required(),
			mcp.Description("The rule description (markdown supported)"),
		),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Programming language, e.g. 'python', 'go', 'delphi'"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Rule category: security, performance, style, architecture, testing, documentation, general"),
		),
		mcp.WithString("severity",
			mcp.Description("Rule importance: MUST, SHOULD, MAY, DEPRECATED (default: SHOULD)"),
		),
		mcp.WithString("framework",
			mcp.Description("Specific framework if applicable, e.g. 'django', 'react'"),
		),
		mcp.WithString("version",
			mcp.Description("Rule version for tracking changes (default: 1.0)"),
		),
		mcp.WithString("context",
			mcp.Description("Where the rule applies: dev, production, testing, staging, all (default: all)"),
		),
		mcp.WithString("author",
			mcp.Description("Rule author"),
		),
		mcp.WithObject("examples",
			mcp.Description("Code examples: {\"correct\": ..., \"incorrect\": ...}"),
		),
		mcp.WithArray("related_rules",
			mcp.Description("Related rule IDs"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("replaces",
			mcp.Description("ID of the rule this one replaces (deprecation tracking)"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
		mcp.WithObject("additional_metadata",
			mcp.Description("Extra metadata fields (flattened to scalars)"),
		),
		mcp.WithBoolean("check_duplicates",
			mcp.Description("Check for similar rules before adding (default: true)"),
		),
	)
}

// Handle processes the add_programming_rule tool call.
func (t *AddRuleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	ruleText := req.GetString("rule_text", "")
	language := req.GetString("language", "")
	category := req.GetString("category", "")
	if ruleText == "" || language == "" || category == "" {
		return mcp.NewToolResultError("'rule_text', 'language' and 'category' are required"), nil
	}

	result, err := t.svc.AddRule(ctx, knowledge.RuleInput{
		RuleText:           ruleText,
		Language:           language,
		Category:           category,
		Severity:           req.GetString("severity", ""),
		Framework:          req.GetString("framework", ""),
		Version:            req.GetString("version", ""),
		Context:            req.GetString("context", ""),
		Author:             req.GetString("author", ""),
		Examples:           stringMapArg(req, "examples"),
		RelatedRules:       stringListArg(req, "related_rules"),
		Replaces:           req.GetString("replaces", ""),
		UserID:             req.GetString("user_id", ""),
		AdditionalMetadata: anyMapArg(req, "additional_metadata"),
		CheckDuplicates:    boolArg(req, "check_duplicates", true),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add rule: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── SearchRulesTool ────────────────────────────────────────────────────────

// SearchRulesTool handles the search_rules MCP tool.
type SearchRulesTool struct {
	svc *knowledge.Service
}

// NewSearchRulesTool creates a SearchRulesTool.
func NewSearchRulesTool(svc *knowledge.Service) *SearchRulesTool {
	return &SearchRulesTool{svc: svc}
}

// Definition returns the MCP tool definition for search_rules.
func (t *SearchRulesTool) Definition() mcp.Tool {
	return mcp.NewTool("search_rules",
		mcp.WithDescription(
			"Search programming rules with hybrid filtering: exact metadata filters plus optional "+
				"semantic search. Multiple severities use OR logic. Query results are cached for 15 minutes.",
		),
		mcp.WithString("query",
			mcp.Description("Semantic search query (omit to list everything matching the filters)"),
		),
		mcp.WithString("language",
			mcp.Description("Filter by programming language (exact match)"),
		),
		mcp.WithString("category",
			mcp.Description("Filter by category (exact match)"),
		),
		mcp.WithArray("severity",
			mcp.Description("Filter by severity levels (OR logic), e.g. [\"MUST\", \"SHOULD\"]"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("framework",
			mcp.Description("Filter by framework (exact match)"),
		),
		mcp.WithString("context",
			mcp.Description("Filter by context (exact match)"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Minimum similarity score, applied only with a query (default: 0.6)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10)"),
		),
	)
}

// Handle processes the search_rules tool call.
func (t *SearchRulesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	result, err := t.svc.SearchRules(ctx, knowledge.RuleQuery{
		Query:     req.GetString("query", ""),
		Language:  req.GetString("language", ""),
		Category:  req.GetString("category", ""),
		Severity:  stringListArg(req, "severity"),
		Framework: req.GetString("framework", ""),
		Context:   req.GetString("context", ""),
		UserID:    req.GetString("user_id", ""),
		MinScore:  floatArg(req, "min_score", 0),
		Limit:     intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to search rules: %v", err)), nil
	}
	return jsonResult(result), nil
}
