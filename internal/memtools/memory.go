package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memkb/memkb/internal/knowledge"
)

// ─── AddMemoryTool ──────────────────────────────────────────────────────────

// AddMemoryTool handles the add_memory MCP tool.
type AddMemoryTool struct {
	svc *knowledge.Service
}

// NewAddMemoryTool creates an AddMemoryTool.
func NewAddMemoryTool(svc *knowledge.Service) *AddMemoryTool {
	return &AddMemoryTool{svc: svc}
}

// Definition returns the MCP tool definition for add_memory.
func (t *AddMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("add_memory",
		mcp.WithDescription(
			"Add a new memory to the semantic store. Tags are stored as CSV metadata; "+
				"nested metadata values are flattened to scalars.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The content to store"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier for memory isolation (defaults to the configured user)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for categorization"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("metadata",
			mcp.Description("Additional metadata (lists are converted to CSV strings)"),
		),
	)
}

// Handle processes the add_memory tool call.
func (t *AddMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	result, err := t.svc.AddMemory(ctx, knowledge.AddMemoryParams{
		Text:     text,
		UserID:   req.GetString("user_id", ""),
		Tags:     stringListArg(req, "tags"),
		Metadata: anyMapArg(req, "metadata"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add memory: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── SearchMemoryTool ───────────────────────────────────────────────────────

// SearchMemoryTool handles the search_memory MCP tool.
type SearchMemoryTool struct {
	svc *knowledge.Service
}

// NewSearchMemoryTool creates a SearchMemoryTool.
func NewSearchMemoryTool(svc *knowledge.Service) *SearchMemoryTool {
	return &SearchMemoryTool{svc: svc}
}

// Definition returns the MCP tool definition for search_memory.
func (t *SearchMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("search_memory",
		mcp.WithDescription(
			"Semantic search over stored memories. Multiple tags use OR logic — "+
				"a memory matching ANY tag is returned. First-page results are cached for 15 minutes.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier for memory isolation"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for OR filtering"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("filters",
			mcp.Description("Additional metadata equality filters, e.g. {\"priority\": \"should\"}"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 5)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of results to skip (pagination; non-zero offsets bypass the cache)"),
		),
	)
}

// Handle processes the search_memory tool call.
func (t *SearchMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	result, err := t.svc.SearchMemories(ctx, knowledge.SearchParams{
		Query:   query,
		UserID:  req.GetString("user_id", ""),
		Tags:    stringListArg(req, "tags"),
		Filters: stringMapArg(req, "filters"),
		Limit:   intArg(req, "limit", 5),
		Offset:  intArg(req, "offset", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── ListMemoriesTool ───────────────────────────────────────────────────────

// ListMemoriesTool handles the list_memories MCP tool.
type ListMemoriesTool struct {
	svc *knowledge.Service
}

// NewListMemoriesTool creates a ListMemoriesTool.
func NewListMemoriesTool(svc *knowledge.Service) *ListMemoriesTool {
	return &ListMemoriesTool{svc: svc}
}

// Definition returns the MCP tool definition for list_memories.
func (t *ListMemoriesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_memories",
		mcp.WithDescription("List all memories for a user, paginated."),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of memories to return (default: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of memories to skip"),
		),
	)
}

// Handle processes the list_memories tool call.
func (t *ListMemoriesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	result, err := t.svc.ListMemories(ctx,
		req.GetString("user_id", ""),
		intArg(req, "limit", 100),
		intArg(req, "offset", 0),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list memories: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── ListUserIDsTool ────────────────────────────────────────────────────────

// ListUserIDsTool handles the list_all_user_ids MCP tool.
type ListUserIDsTool struct {
	svc *knowledge.Service
}

// NewListUserIDsTool creates a ListUserIDsTool.
func NewListUserIDsTool(svc *knowledge.Service) *ListUserIDsTool {
	return &ListUserIDsTool{svc: svc}
}

// Definition returns the MCP tool definition for list_all_user_ids.
func (t *ListUserIDsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_all_user_ids",
		mcp.WithDescription(
			"List all distinct user_ids that have stored memories through this server, with per-user counts.",
		),
	)
}

// Handle processes the list_all_user_ids tool call.
func (t *ListUserIDsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	result, err := t.svc.ListUserIDs()
	if err != nil {
		return jsonResult(knowledge.NewErrorResult("%v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── DeleteMemoryTool ───────────────────────────────────────────────────────

// DeleteMemoryTool handles the delete_memory MCP tool.
type DeleteMemoryTool struct {
	svc *knowledge.Service
}

// NewDeleteMemoryTool creates a DeleteMemoryTool.
func NewDeleteMemoryTool(svc *knowledge.Service) *DeleteMemoryTool {
	return &DeleteMemoryTool{svc: svc}
}

// Definition returns the MCP tool definition for delete_memory.
func (t *DeleteMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete a specific memory by ID."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("The ID of the memory to delete"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the delete_memory tool call.
func (t *DeleteMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	memoryID := req.GetString("memory_id", "")
	if memoryID == "" {
		return mcp.NewToolResultError("'memory_id' is required"), nil
	}

	result, err := t.svc.DeleteMemory(ctx, memoryID, req.GetString("user_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete memory: %v", err)), nil
	}
	return jsonResult(result), nil
}
