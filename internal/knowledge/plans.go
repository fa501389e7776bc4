package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/mem0"
)

// Plan lifecycle enumerations. There are no automatic transitions: the
// caller supplies status values and any item state is reachable from any
// other.
var (
	PlanStatuses = []string{"active", "done", "paused"}
	ItemStatuses = []string{"doing", "done", "todo"}
)

// ChecklistItem is one entry of a plan's checklist. Items are never
// physically deleted; they only change status.
type ChecklistItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Note      *string `json:"note"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Plan is a checklist entity emulated on a single store record. PlanID
// is the stable external identifier; ID is the underlying record id,
// which changes on every update — persistent references must use PlanID.
type Plan struct {
	ID         string          `json:"id"`
	PlanID     string          `json:"plan_id"`
	Title      string          `json:"title"`
	Status     string          `json:"status"`
	Priority   string          `json:"priority"`
	DueDate    string          `json:"due_date,omitempty"`
	OpenItems  int             `json:"open_items"`
	TotalItems int             `json:"total_items"`
	Checklist  []ChecklistItem `json:"checklist"`
	Tags       string          `json:"tags,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// PlanResult is the structured outcome of every plan mutation. Warning
// carries the replace protocol's partial-failure notice: the logical
// update succeeded but a stale record was left behind.
type PlanResult struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	PlanID   string   `json:"plan_id,omitempty"`
	ItemID   string   `json:"item_id,omitempty"`
	MemoryID string   `json:"memory_id,omitempty"`
	Plan     *Plan    `json:"plan,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Warning  string   `json:"warning,omitempty"`
}

// PlanInput is the input for CreatePlan.
type PlanInput struct {
	Title    string
	Items    []string
	Tags     []string
	Priority string
	DueDate  string
	Status   string
	UserID   string
}

// CreatePlan stores a new plan: every item starts as todo, the tag set
// (plus an implicit "planning" tag) is hierarchically expanded, and the
// open/total counters are persisted redundantly for cheap listing.
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (PlanResult, error) {
	userID := s.ResolveUser(in.UserID)
	if in.Status == "" {
		in.Status = "active"
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}
	if verr := validateEnum("status", in.Status, PlanStatuses); verr != nil {
		return PlanResult{Status: StatusError, Message: verr.Error()}, nil
	}

	planID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)

	checklist := make([]ChecklistItem, 0, len(in.Items))
	for _, title := range in.Items {
		checklist = append(checklist, ChecklistItem{
			ID:        uuid.NewString(),
			Title:     title,
			Status:    "todo",
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	baseTags := append([]string(nil), in.Tags...)
	if !containsString(baseTags, "planning") {
		baseTags = append(baseTags, "planning")
	}
	expanded := ExpandTags(baseTags)

	checklistJSON, err := json.Marshal(checklist)
	if err != nil {
		return PlanResult{}, fmt.Errorf("create plan: encode checklist: %w", err)
	}

	metadata := map[string]any{
		"rule_type":   "plan",
		"plan_id":     planID,
		"title":       in.Title,
		"status":      in.Status,
		"priority":    in.Priority,
		"due_date":    in.DueDate,
		"open_items":  openCount(checklist),
		"total_items": len(checklist),
		"checklist":   string(checklistJSON),
		"created_at":  now,
		"updated_at":  now,
	}
	if len(expanded) > 0 {
		metadata["tags"] = strings.Join(expanded, ",")
	}

	resp, err := s.addWithRetry(ctx, in.Title, userID, metadata)
	if err != nil {
		return PlanResult{}, fmt.Errorf("create plan: %w", err)
	}

	s.cache.InvalidateAll()
	plan := normalizePlan(mem0.Record{ID: resp.FirstID(), Memory: in.Title, Metadata: metadata})
	return PlanResult{
		Status: StatusAdded,
		PlanID: planID,
		Plan:   &plan,
		Tags:   expanded,
	}, nil
}

// GetPlan fetches a plan by its stable plan_id.
func (s *Service) GetPlan(ctx context.Context, planID, userID string) (PlanResult, error) {
	userID = s.ResolveUser(userID)
	rec, err := s.findPlan(ctx, planID, userID)
	if err != nil {
		return PlanResult{}, err
	}
	if rec == nil {
		return PlanResult{Status: StatusNotFound, PlanID: planID}, nil
	}
	plan := normalizePlan(*rec)
	return PlanResult{Status: StatusOK, Plan: &plan}, nil
}

// UpdatePlanItem changes a checklist item's status (and optionally its
// note), recomputes the counters, and persists via the replace protocol.
func (s *Service) UpdatePlanItem(ctx context.Context, planID, itemID, status string, note *string, userID string) (PlanResult, error) {
	userID = s.ResolveUser(userID)
	if verr := validateEnum("item status", status, ItemStatuses); verr != nil {
		return PlanResult{Status: StatusError, Message: verr.Error()}, nil
	}

	rec, err := s.findPlan(ctx, planID, userID)
	if err != nil {
		return PlanResult{}, err
	}
	if rec == nil {
		return PlanResult{Status: StatusNotFound, PlanID: planID}, nil
	}

	metadata := copyMetadata(rec.Metadata)
	checklist := parseChecklist(metadata["checklist"])
	now := time.Now().UTC().Format(time.RFC3339)

	found := false
	for i := range checklist {
		if checklist[i].ID == itemID {
			checklist[i].Status = status
			if note != nil {
				checklist[i].Note = note
			}
			checklist[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		return PlanResult{Status: StatusNotFound, PlanID: planID, ItemID: itemID}, nil
	}

	s.applyChecklist(metadata, checklist, now, planID, rec.Memory)
	plan, warning, err := s.savePlan(ctx, *rec, metadata, userID)
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Status: StatusUpdated, Plan: &plan, Warning: warning}, nil
}

// AddPlanItem appends a new todo item to a plan's checklist and persists
// via the replace protocol.
func (s *Service) AddPlanItem(ctx context.Context, planID, title, userID string) (PlanResult, error) {
	userID = s.ResolveUser(userID)
	rec, err := s.findPlan(ctx, planID, userID)
	if err != nil {
		return PlanResult{}, err
	}
	if rec == nil {
		return PlanResult{Status: StatusNotFound, PlanID: planID}, nil
	}

	metadata := copyMetadata(rec.Metadata)
	checklist := parseChecklist(metadata["checklist"])
	now := time.Now().UTC().Format(time.RFC3339)
	checklist = append(checklist, ChecklistItem{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    "todo",
		CreatedAt: now,
		UpdatedAt: now,
	})

	s.applyChecklist(metadata, checklist, now, planID, rec.Memory)
	plan, warning, err := s.savePlan(ctx, *rec, metadata, userID)
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Status: StatusUpdated, Plan: &plan, Warning: warning}, nil
}

// DeletePlan removes a plan's single underlying record.
func (s *Service) DeletePlan(ctx context.Context, planID, userID string) (PlanResult, error) {
	userID = s.ResolveUser(userID)
	rec, err := s.findPlan(ctx, planID, userID)
	if err != nil {
		return PlanResult{}, err
	}
	if rec == nil {
		return PlanResult{Status: StatusNotFound, PlanID: planID}, nil
	}

	if err := s.gw.Delete(ctx, rec.ID); err != nil {
		return PlanResult{}, fmt.Errorf("delete plan: %w", err)
	}
	s.cache.InvalidateAll()
	return PlanResult{Status: StatusDeleted, PlanID: planID, MemoryID: rec.ID}, nil
}

// ListPlansParams is the input for ListPlans.
type ListPlansParams struct {
	UserID   string
	Status   string
	Tag      string
	OnlyOpen bool
	Limit    int
	Offset   int
}

// PlanListResult is a paginated plan listing. Total is the full filtered
// count, computed before slicing.
type PlanListResult struct {
	Plans  []Plan `json:"plans"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ListPlans filters the user's plans in memory by status, tag
// membership, and open work. When the stored open_items counter is
// missing or invalid it is recomputed from the checklist.
func (s *Service) ListPlans(ctx context.Context, p ListPlansParams) (PlanListResult, error) {
	userID := s.ResolveUser(p.UserID)
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	records, err := s.planRecords(ctx, userID)
	if err != nil {
		return PlanListResult{}, err
	}

	var filtered []Plan
	for _, rec := range records {
		if p.Status != "" && rec.MetaString("status") != p.Status {
			continue
		}
		if p.OnlyOpen {
			open, ok := coerceInt(rec.Metadata["open_items"])
			if !ok {
				open = openCount(parseChecklist(rec.Metadata["checklist"]))
			}
			if open <= 0 {
				continue
			}
		}
		if p.Tag != "" && !containsString(SplitCSV(rec.MetaString("tags")), p.Tag) {
			continue
		}
		filtered = append(filtered, normalizePlan(rec))
	}

	total := len(filtered)
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	page := filtered[start:end]
	if page == nil {
		page = []Plan{}
	}
	return PlanListResult{Plans: page, Total: total, Offset: p.Offset, Limit: p.Limit}, nil
}

// ─── Internals ───────────────────────────────────────────────────────────────

// planRecords fetches all of the user's plan records. The store has no
// lookup by arbitrary metadata field, so plan resolution is get-all plus
// a scan — O(n) in the user's plan count, which is expected to stay
// small. This is the scalability ceiling of the plan design.
func (s *Service) planRecords(ctx context.Context, userID string) ([]mem0.Record, error) {
	records, err := s.gw.GetAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	var plans []mem0.Record
	for _, rec := range records {
		if rec.MetaString("rule_type") == "plan" {
			plans = append(plans, rec)
		}
	}
	return plans, nil
}

func (s *Service) findPlan(ctx context.Context, planID, userID string) (*mem0.Record, error) {
	plans, err := s.planRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].MetaString("plan_id") == planID {
			return &plans[i], nil
		}
	}
	return nil, nil
}

// applyChecklist writes the mutated checklist and the derived fields
// back into metadata, preserving the keys that identify the record as
// this plan.
func (s *Service) applyChecklist(metadata map[string]any, checklist []ChecklistItem, now, planID, recordTitle string) {
	encoded, _ := json.Marshal(checklist)
	metadata["checklist"] = string(encoded)
	metadata["open_items"] = openCount(checklist)
	metadata["total_items"] = len(checklist)
	metadata["updated_at"] = now
	metadata["rule_type"] = "plan"
	metadata["plan_id"] = planID
	if _, ok := metadata["title"]; !ok {
		metadata["title"] = recordTitle
	}
}

// savePlan persists a plan change on an append/delete-only store: write
// a brand-new record with the updated metadata, then delete the old one.
// The two steps are not atomic — a failed delete leaves a stale record
// behind, reported as a warning while the logical update still counts as
// success. Two concurrent saves of the same plan can race into a
// duplicate plan_id or a lost update; the store offers no conditional
// primitive to prevent it.
func (s *Service) savePlan(ctx context.Context, old mem0.Record, metadata map[string]any, userID string) (Plan, string, error) {
	title := old.Memory
	if title == "" {
		if t, ok := metadata["title"].(string); ok && t != "" {
			title = t
		} else if pid, ok := metadata["plan_id"].(string); ok && pid != "" {
			title = pid
		} else {
			title = "Plan"
		}
	}

	resp, err := s.addWithRetry(ctx, title, userID, metadata)
	if err != nil {
		return Plan{}, "", fmt.Errorf("save plan: %w", err)
	}
	newID := resp.FirstID()

	warning := ""
	if old.ID != "" {
		if err := s.gw.Delete(ctx, old.ID); err != nil {
			warning = fmt.Sprintf("Plan updated, but failed to remove previous version: %v", err)
			s.log.Warn("stale plan record left behind",
				zap.String("stale_id", old.ID),
				zap.String("new_id", newID),
				zap.Error(err),
			)
		}
	}

	s.cache.InvalidateAll()
	return normalizePlan(mem0.Record{ID: newID, Memory: title, Metadata: metadata}), warning, nil
}

// normalizePlan builds the outward Plan view from a raw record,
// recomputing the derived counters when the stored ones are absent or
// not numeric.
func normalizePlan(rec mem0.Record) Plan {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	checklist := parseChecklist(meta["checklist"])

	open, ok := coerceInt(meta["open_items"])
	if !ok {
		open = openCount(checklist)
	}
	total, ok := coerceInt(meta["total_items"])
	if !ok {
		total = len(checklist)
	}

	title := rec.Memory
	if title == "" {
		title, _ = meta["title"].(string)
	}
	status, _ := meta["status"].(string)
	if status == "" {
		status = "active"
	}
	priority, _ := meta["priority"].(string)
	if priority == "" {
		priority = "normal"
	}
	dueDate, _ := meta["due_date"].(string)
	tags, _ := meta["tags"].(string)
	planID, _ := meta["plan_id"].(string)

	return Plan{
		ID:         rec.ID,
		PlanID:     planID,
		Title:      title,
		Status:     status,
		Priority:   priority,
		DueDate:    dueDate,
		OpenItems:  open,
		TotalItems: total,
		Checklist:  checklist,
		Tags:       tags,
		Metadata:   meta,
	}
}

// parseChecklist decodes metadata.checklist, which arrives either as the
// JSON string this server stores or (from older records) as a decoded
// list.
func parseChecklist(raw any) []ChecklistItem {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		var items []ChecklistItem
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil
		}
		return items
	case []ChecklistItem:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var items []ChecklistItem
		if err := json.Unmarshal(encoded, &items); err != nil {
			return nil
		}
		return items
	}
}

func openCount(items []ChecklistItem) int {
	n := 0
	for _, item := range items {
		if item.Status != "done" {
			n++
		}
	}
	return n
}

// coerceInt converts the numeric shapes a JSON roundtrip can produce.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
