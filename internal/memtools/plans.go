package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memkb/memkb/internal/knowledge"
)

// ─── AddPlanTool ────────────────────────────────────────────────────────────

// AddPlanTool handles the add_plan MCP tool.
type AddPlanTool struct {
	svc *knowledge.Service
}

// NewAddPlanTool creates an AddPlanTool.
func NewAddPlanTool(svc *knowledge.Service) *AddPlanTool {
	return &AddPlanTool{svc: svc}
}

// Definition returns the MCP tool definition for add_plan.
func (t *AddPlanTool) Definition() mcp.Tool {
	return mcp.NewTool("add_plan",
		mcp.WithDescription(
			"Create a new plan with a checklist. Every item starts as 'todo'. "+
				"Reference the plan by its stable plan_id — the underlying memory id changes on every update.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Plan title"),
		),
		mcp.WithArray("items",
			mcp.Description("Checklist item titles"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags (hierarchically expanded; 'planning' is always added)"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("priority",
			mcp.Description("Plan priority (default: normal)"),
		),
		mcp.WithString("due_date",
			mcp.Description("Due date, ISO format"),
		),
		mcp.WithString("status",
			mcp.Description("Plan status: active, paused, or done (default: active)"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the add_plan tool call.
func (t *AddPlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	result, err := t.svc.CreatePlan(ctx, knowledge.PlanInput{
		Title:    title,
		Items:    stringListArg(req, "items"),
		Tags:     stringListArg(req, "tags"),
		Priority: req.GetString("priority", ""),
		DueDate:  req.GetString("due_date", ""),
		Status:   req.GetString("status", ""),
		UserID:   req.GetString("user_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create plan: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── ListPlansTool ──────────────────────────────────────────────────────────

// ListPlansTool handles the list_plans MCP tool.
type ListPlansTool struct {
	svc *knowledge.Service
}

// NewListPlansTool creates a ListPlansTool.
func NewListPlansTool(svc *knowledge.Service) *ListPlansTool {
	return &ListPlansTool{svc: svc}
}

// Definition returns the MCP tool definition for list_plans.
func (t *ListPlansTool) Definition() mcp.Tool {
	return mcp.NewTool("list_plans",
		mcp.WithDescription("List the user's plans with optional filters (status, tag, only_open)."),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by plan status: active, paused, done"),
		),
		mcp.WithString("tag",
			mcp.Description("Filter by tag membership"),
		),
		mcp.WithBoolean("only_open",
			mcp.Description("Only plans with open checklist items"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of plans (default: 20)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of plans to skip"),
		),
	)
}

// Handle processes the list_plans tool call.
func (t *ListPlansTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	result, err := t.svc.ListPlans(ctx, knowledge.ListPlansParams{
		UserID:   req.GetString("user_id", ""),
		Status:   req.GetString("status", ""),
		Tag:      req.GetString("tag", ""),
		OnlyOpen: boolArg(req, "only_open", false),
		Limit:    intArg(req, "limit", 20),
		Offset:   intArg(req, "offset", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list plans: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── GetPlanTool ────────────────────────────────────────────────────────────

// GetPlanTool handles the get_plan MCP tool.
type GetPlanTool struct {
	svc *knowledge.Service
}

// NewGetPlanTool creates a GetPlanTool.
func NewGetPlanTool(svc *knowledge.Service) *GetPlanTool {
	return &GetPlanTool{svc: svc}
}

// Definition returns the MCP tool definition for get_plan.
func (t *GetPlanTool) Definition() mcp.Tool {
	return mcp.NewTool("get_plan",
		mcp.WithDescription("Fetch a single plan by its stable plan_id."),
		mcp.WithString("plan_id",
			mcp.Required(),
			mcp.Description("The plan's stable identifier"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the get_plan tool call.
func (t *GetPlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	planID := req.GetString("plan_id", "")
	if planID == "" {
		return mcp.NewToolResultError("'plan_id' is required"), nil
	}

	result, err := t.svc.GetPlan(ctx, planID, req.GetString("user_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get plan: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── UpdatePlanItemTool ─────────────────────────────────────────────────────

// UpdatePlanItemTool handles the update_plan_item MCP tool.
type UpdatePlanItemTool struct {
	svc *knowledge.Service
}

// NewUpdatePlanItemTool creates an UpdatePlanItemTool.
func NewUpdatePlanItemTool(svc *knowledge.Service) *UpdatePlanItemTool {
	return &UpdatePlanItemTool{svc: svc}
}

// Definition returns the MCP tool definition for update_plan_item.
func (t *UpdatePlanItemTool) Definition() mcp.Tool {
	return mcp.NewTool("update_plan_item",
		mcp.WithDescription(
			"Update a checklist item's status and note. The plan is rewritten as a new memory "+
				"record; a 'warning' field reports a stale previous version that could not be removed.",
		),
		mcp.WithString("plan_id",
			mcp.Required(),
			mcp.Description("The plan's stable identifier"),
		),
		mcp.WithString("item_id",
			mcp.Required(),
			mcp.Description("Checklist item id"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New item status: todo, doing, or done"),
		),
		mcp.WithString("note",
			mcp.Description("Optional note attached to the item"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the update_plan_item tool call.
func (t *UpdatePlanItemTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	planID := req.GetString("plan_id", "")
	itemID := req.GetString("item_id", "")
	status := req.GetString("status", "")
	if planID == "" || itemID == "" || status == "" {
		return mcp.NewToolResultError("'plan_id', 'item_id' and 'status' are required"), nil
	}

	var note *string
	if _, present := req.GetArguments()["note"]; present {
		v := req.GetString("note", "")
		note = &v
	}

	result, err := t.svc.UpdatePlanItem(ctx, planID, itemID, status, note, req.GetString("user_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update plan item: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── AddPlanItemTool ────────────────────────────────────────────────────────

// AddPlanItemTool handles the add_plan_item MCP tool.
type AddPlanItemTool struct {
	svc *knowledge.Service
}

// NewAddPlanItemTool creates an AddPlanItemTool.
func NewAddPlanItemTool(svc *knowledge.Service) *AddPlanItemTool {
	return &AddPlanItemTool{svc: svc}
}

// Definition returns the MCP tool definition for add_plan_item.
func (t *AddPlanItemTool) Definition() mcp.Tool {
	return mcp.NewTool("add_plan_item",
		mcp.WithDescription("Append a new todo item to a plan's checklist."),
		mcp.WithString("plan_id",
			mcp.Required(),
			mcp.Description("The plan's stable identifier"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Item title"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the add_plan_item tool call.
func (t *AddPlanItemTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	planID := req.GetString("plan_id", "")
	title := req.GetString("title", "")
	if planID == "" || title == "" {
		return mcp.NewToolResultError("'plan_id' and 'title' are required"), nil
	}

	result, err := t.svc.AddPlanItem(ctx, planID, title, req.GetString("user_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add plan item: %v", err)), nil
	}
	return jsonResult(result), nil
}

// ─── DeletePlanTool ─────────────────────────────────────────────────────────

// DeletePlanTool handles the delete_plan MCP tool.
type DeletePlanTool struct {
	svc *knowledge.Service
}

// NewDeletePlanTool creates a DeletePlanTool.
func NewDeletePlanTool(svc *knowledge.Service) *DeletePlanTool {
	return &DeletePlanTool{svc: svc}
}

// Definition returns the MCP tool definition for delete_plan.
func (t *DeletePlanTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_plan",
		mcp.WithDescription("Remove a plan and its checklist (deletes the underlying memory record)."),
		mcp.WithString("plan_id",
			mcp.Required(),
			mcp.Description("The plan's stable identifier"),
		),
		mcp.WithString("user_id",
			mcp.Description("User identifier (defaults to the configured user)"),
		),
	)
}

// Handle processes the delete_plan tool call.
func (t *DeletePlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.svc == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	planID := req.GetString("plan_id", "")
	if planID == "" {
		return mcp.NewToolResultError("'plan_id' is required"), nil
	}

	result, err := t.svc.DeletePlan(ctx, planID, req.GetString("user_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete plan: %v", err)), nil
	}
	return jsonResult(result), nil
}
