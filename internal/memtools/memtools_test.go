package memtools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/knowledge"
	"github.com/memkb/memkb/internal/mem0"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// stubGateway is an in-memory knowledge.Gateway for handler tests.
type stubGateway struct {
	records []mem0.Record
	addN    int
}

func (g *stubGateway) Add(_ context.Context, text, userID string, metadata map[string]any, _ bool) (mem0.Response, error) {
	g.addN++
	rec := mem0.Record{ID: fmt.Sprintf("mem-%d", g.addN), Memory: text, UserID: userID, Metadata: metadata}
	g.records = append(g.records, rec)
	return mem0.Response{Results: []mem0.Record{rec}}, nil
}

func (g *stubGateway) Search(_ context.Context, _, _ string, _ map[string]string, _ int) (mem0.Response, error) {
	return mem0.Response{Results: g.records}, nil
}

func (g *stubGateway) GetAll(_ context.Context, _ string) ([]mem0.Record, error) {
	return g.records, nil
}

func (g *stubGateway) Delete(_ context.Context, memoryID string) error {
	for i, rec := range g.records {
		if rec.ID == memoryID {
			g.records = append(g.records[:i], g.records[i+1:]...)
			break
		}
	}
	return nil
}

// newTestService creates a knowledge.Service over a stub gateway.
func newTestService(t *testing.T) (*knowledge.Service, *stubGateway) {
	t.Helper()
	gw := &stubGateway{}
	svc := knowledge.NewService(gw, nil, knowledge.Config{DefaultUserID: "tester"}, zap.NewNop())
	return svc, gw
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if r == nil {
		t.Fatal("Handle returned nil result")
	}
	if r.IsError {
		t.Fatalf("Handle returned error result: %s", resultText(r))
	}
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestToolDefinitions_Names(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		def  mcp.Tool
		name string
	}{
		{NewAddMemoryTool(svc).Definition(), "add_memory"},
		{NewSearchMemoryTool(svc).Definition(), "search_memory"},
		{NewListMemoriesTool(svc).Definition(), "list_memories"},
		{NewListUserIDsTool(svc).Definition(), "list_all_user_ids"},
		{NewDeleteMemoryTool(svc).Definition(), "delete_memory"},
		{NewAddPlanTool(svc).Definition(), "add_plan"},
		{NewListPlansTool(svc).Definition(), "list_plans"},
		{NewGetPlanTool(svc).Definition(), "get_plan"},
		{NewUpdatePlanItemTool(svc).Definition(), "update_plan_item"},
		{NewAddPlanItemTool(svc).Definition(), "add_plan_item"},
		{NewDeletePlanTool(svc).Definition(), "delete_plan"},
		{NewAddRuleTool(svc).Definition(), "add_programming_rule"},
		{NewSearchRulesTool(svc).Definition(), "search_rules"},
	}
	for _, tt := range tests {
		if tt.def.Name != tt.name {
			t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
		}
	}
}

func TestAddMemoryTool_Definition(t *testing.T) {
	svc, _ := newTestService(t)
	def := NewAddMemoryTool(svc).Definition()

	props := def.InputSchema.Properties
	for _, p := range []string{"text", "user_id", "tags", "metadata"} {
		if _, ok := props[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}

	found := false
	for _, r := range def.InputSchema.Required {
		if r == "text" {
			found = true
		}
	}
	if !found {
		t.Error("'text' should be required")
	}
}

// ─── Nil-service guard ───────────────────────────────────────────────────────

func TestTools_NilServiceGuard(t *testing.T) {
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"add_memory":    NewAddMemoryTool(nil).Handle,
		"search_memory": NewSearchMemoryTool(nil).Handle,
		"add_plan":      NewAddPlanTool(nil).Handle,
		"search_rules":  NewSearchRulesTool(nil).Handle,
		"list_llm":      NewListLLMOptionsTool(nil).Handle,
	}
	for name, handle := range handlers {
		r, err := handle(context.Background(), makeReq(map[string]interface{}{}))
		if err != nil {
			t.Fatalf("%s: unexpected transport error: %v", name, err)
		}
		if !r.IsError {
			t.Errorf("%s: expected error result for nil service", name)
		}
		if !strings.Contains(resultText(r), "not initialized") {
			t.Errorf("%s: expected 'not initialized', got: %s", name, resultText(r))
		}
	}
}

// ─── Memory tools ────────────────────────────────────────────────────────────

func TestAddMemoryTool_RequiresText(t *testing.T) {
	svc, _ := newTestService(t)
	tool := NewAddMemoryTool(svc)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !r.IsError {
		t.Fatal("expected error result for missing text")
	}
}

func TestAddMemoryTool_Succeeds(t *testing.T) {
	svc, gw := newTestService(t)
	tool := NewAddMemoryTool(svc)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"text": "prefers table-driven tests",
		"tags": []interface{}{"go", "testing"},
	}))
	mustNotError(t, r, err)

	text := resultText(r)
	if !strings.Contains(text, "mem-1") {
		t.Errorf("expected stored id in response, got: %s", text)
	}
	if len(gw.records) != 1 {
		t.Fatalf("records = %d, want 1", len(gw.records))
	}
	if gw.records[0].Metadata["tags"] != "go,testing" {
		t.Errorf("tags metadata = %v, want go,testing", gw.records[0].Metadata["tags"])
	}
}

func TestSearchMemoryTool_RequiresQuery(t *testing.T) {
	svc, _ := newTestService(t)
	tool := NewSearchMemoryTool(svc)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !r.IsError {
		t.Fatal("expected error result for missing query")
	}
}

func TestDeleteMemoryTool_Succeeds(t *testing.T) {
	svc, gw := newTestService(t)
	gw.records = []mem0.Record{{ID: "mem-1", Memory: "x"}}
	tool := NewDeleteMemoryTool(svc)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"memory_id": "mem-1",
	}))
	mustNotError(t, r, err)

	if !strings.Contains(resultText(r), `"deleted"`) {
		t.Errorf("expected deleted status, got: %s", resultText(r))
	}
	if len(gw.records) != 0 {
		t.Error("record should be gone")
	}
}

func TestListUserIDsTool_WithoutHistoryReportsError(t *testing.T) {
	svc, _ := newTestService(t)
	tool := NewListUserIDsTool(svc)

	r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	text := resultText(r)
	if !strings.Contains(text, `"error"`) {
		t.Errorf("expected error status payload, got: %s", text)
	}
	if !strings.Contains(text, "history database not available") {
		t.Errorf("expected history message, got: %s", text)
	}
}

// ─── Plan tools ──────────────────────────────────────────────────────────────

func TestPlanTools_CreateUpdateFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Create.
	r, err := NewAddPlanTool(svc).Handle(ctx, makeReq(map[string]interface{}{
		"title": "Release v2",
		"items": []interface{}{"write changelog", "tag release"},
	}))
	mustNotError(t, r, err)

	created := resultText(r)
	if !strings.Contains(created, `"total_items": 2`) {
		t.Errorf("expected 2 total items, got: %s", created)
	}

	planID := extractJSONField(t, created, "plan_id")
	itemID := extractJSONField(t, created, "id") // first checklist item id comes after plan fields

	// Fetch by stable id.
	r, err = NewGetPlanTool(svc).Handle(ctx, makeReq(map[string]interface{}{
		"plan_id": planID,
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), planID) {
		t.Error("get_plan should return the plan")
	}

	_ = itemID // covered by knowledge-level tests; handler wiring is what matters here
}

func TestUpdatePlanItemTool_NotePassedOnlyWhenPresent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := NewAddPlanTool(svc).Handle(ctx, makeReq(map[string]interface{}{
		"title": "Plan",
		"items": []interface{}{"item"},
	}))
	mustNotError(t, r, err)
	planID := extractJSONField(t, resultText(r), "plan_id")

	getR, err := NewGetPlanTool(svc).Handle(ctx, makeReq(map[string]interface{}{"plan_id": planID}))
	mustNotError(t, getR, err)
	itemID := extractChecklistItemID(t, resultText(getR))

	// Without a note the stored null must survive.
	r, err = NewUpdatePlanItemTool(svc).Handle(ctx, makeReq(map[string]interface{}{
		"plan_id": planID,
		"item_id": itemID,
		"status":  "doing",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), `"note": null`) {
		t.Errorf("note should stay null when omitted, got: %s", resultText(r))
	}

	// With a note it is attached.
	r, err = NewUpdatePlanItemTool(svc).Handle(ctx, makeReq(map[string]interface{}{
		"plan_id": planID,
		"item_id": itemID,
		"status":  "done",
		"note":    "reviewed",
	}))
	mustNotError(t, r, err)
	if !strings.Contains(resultText(r), `"note": "reviewed"`) {
		t.Errorf("note should be set, got: %s", resultText(r))
	}
}

func TestDeletePlanTool_RequiresPlanID(t *testing.T) {
	svc, _ := newTestService(t)

	r, err := NewDeletePlanTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !r.IsError {
		t.Fatal("expected error result for missing plan_id")
	}
}

// ─── Rule tools ──────────────────────────────────────────────────────────────

func TestAddRuleTool_RequiresCoreFields(t *testing.T) {
	svc, _ := newTestService(t)

	r, err := NewAddRuleTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"rule_text": "x",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !r.IsError {
		t.Fatal("expected error result for missing language/category")
	}
}

func TestAddRuleTool_ValidationFailureIsStructuredResult(t *testing.T) {
	svc, gw := newTestService(t)

	r, err := NewAddRuleTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"rule_text": "x",
		"language":  "go",
		"category":  "style",
		"severity":  "WHENEVER",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if r.IsError {
		t.Fatal("validation failure should be a structured payload, not a transport error")
	}
	text := resultText(r)
	if !strings.Contains(text, "Invalid severity 'WHENEVER'") {
		t.Errorf("expected validation message, got: %s", text)
	}
	if gw.addN != 0 {
		t.Error("no write should happen on validation failure")
	}
}

func TestAddRuleTool_DefaultsCheckDuplicatesOn(t *testing.T) {
	svc, _ := newTestService(t)

	// The stub search returns no high-score hit, so the add proceeds;
	// what matters is the flow completing with defaults applied.
	r, err := NewAddRuleTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"rule_text": "Handle every error",
		"language":  "Go",
		"category":  "style",
	}))
	mustNotError(t, r, err)

	text := resultText(r)
	if !strings.Contains(text, `"severity": "SHOULD"`) {
		t.Errorf("expected default severity, got: %s", text)
	}
	if !strings.Contains(text, `"language": "go"`) {
		t.Errorf("expected lowercased language, got: %s", text)
	}
}

func TestSearchRulesTool_Succeeds(t *testing.T) {
	svc, gw := newTestService(t)
	gw.records = []mem0.Record{{
		ID:       "r1",
		Memory:   "Wrap errors",
		Score:    0.9,
		Metadata: map[string]any{"rule_type": "programming_rule", "language": "go"},
	}}

	r, err := NewSearchRulesTool(svc).Handle(context.Background(), makeReq(map[string]interface{}{
		"query":    "error wrapping",
		"language": "go",
	}))
	mustNotError(t, r, err)

	text := resultText(r)
	if !strings.Contains(text, "r1") {
		t.Errorf("expected matching rule, got: %s", text)
	}
	if !strings.Contains(text, `"filters_applied"`) {
		t.Errorf("expected filters_applied in payload, got: %s", text)
	}
}

// ─── JSON scraping helpers ───────────────────────────────────────────────────

// extractJSONField pulls the first `"key": "value"` occurrence out of an
// indented JSON payload.
func extractJSONField(t *testing.T, payload, key string) string {
	t.Helper()
	marker := `"` + key + `": "`
	idx := strings.Index(payload, marker)
	if idx < 0 {
		t.Fatalf("field %q not found in: %s", key, payload)
	}
	rest := payload[idx+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		t.Fatalf("unterminated field %q in: %s", key, payload)
	}
	return rest[:end]
}

// extractChecklistItemID returns the id of the first checklist item.
func extractChecklistItemID(t *testing.T, payload string) string {
	t.Helper()
	idx := strings.Index(payload, `"checklist"`)
	if idx < 0 {
		t.Fatalf("no checklist in: %s", payload)
	}
	return extractJSONField(t, payload[idx:], "id")
}
