package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPlan(t *testing.T, svc *Service, title string, items ...string) PlanResult {
	t.Helper()
	result, err := svc.CreatePlan(context.Background(), PlanInput{Title: title, Items: items})
	require.NoError(t, err)
	require.Equal(t, StatusAdded, result.Status)
	require.NotEmpty(t, result.PlanID)
	return result
}

// --- CreatePlan ---

func TestCreatePlan_ItemsStartAsTodo(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)

	result := createTestPlan(t, svc, "Ship v1", "write docs", "tag release")

	require.NotNil(t, result.Plan)
	assert.Equal(t, "active", result.Plan.Status)
	assert.Equal(t, "normal", result.Plan.Priority)
	assert.Equal(t, 2, result.Plan.TotalItems)
	assert.Equal(t, 2, result.Plan.OpenItems)
	for _, item := range result.Plan.Checklist {
		assert.Equal(t, "todo", item.Status)
		assert.NotEmpty(t, item.ID)
	}
}

func TestCreatePlan_AddsPlanningTag(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)

	result, err := svc.CreatePlan(context.Background(), PlanInput{
		Title: "Migrate DB",
		Tags:  []string{"infra.postgres"},
	})
	require.NoError(t, err)

	assert.Contains(t, result.Tags, "planning")
	assert.Contains(t, result.Tags, "infra")
	assert.Contains(t, result.Tags, "infra.postgres")
	assert.Contains(t, result.Tags, "postgres")
}

func TestCreatePlan_InvalidStatusIsRejectedWithoutWrite(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)

	result, err := svc.CreatePlan(context.Background(), PlanInput{Title: "x", Status: "archived"})
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "Invalid status 'archived'")
	assert.Contains(t, result.Message, "active")
	assert.Zero(t, gw.addCalls)
}

// --- GetPlan ---

func TestGetPlan_ByStableID(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Refactor auth", "extract middleware")

	result, err := svc.GetPlan(context.Background(), created.PlanID, "")
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	require.NotNil(t, result.Plan)
	assert.Equal(t, created.PlanID, result.Plan.PlanID)
	assert.Equal(t, "Refactor auth", result.Plan.Title)
}

func TestGetPlan_Unknown(t *testing.T) {
	svc := newTestService(&fakeGateway{})

	result, err := svc.GetPlan(context.Background(), "nope", "")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
}

// --- UpdatePlanItem ---

func TestUpdatePlanItem_RecomputesOpenItems(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs", "release")
	itemID := created.Plan.Checklist[0].ID

	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, itemID, "done", nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Empty(t, result.Warning)
	require.NotNil(t, result.Plan)
	assert.Equal(t, 1, result.Plan.OpenItems)
	assert.Equal(t, 2, result.Plan.TotalItems)
}

func TestUpdatePlanItem_ReplacesUnderlyingRecord(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")
	oldMemoryID := created.Plan.ID

	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, created.Plan.Checklist[0].ID, "doing", nil, "")
	require.NoError(t, err)

	assert.NotEqual(t, oldMemoryID, result.Plan.ID, "update must produce a new record id")
	require.Len(t, gw.records, 1, "old record must be removed")
	assert.Equal(t, result.Plan.ID, gw.records[0].ID)

	// The stable plan_id survives the replacement.
	fetched, err := svc.GetPlan(context.Background(), created.PlanID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, fetched.Status)
}

func TestUpdatePlanItem_DeleteFailureIsWarningNotError(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	gw.deleteErr = fmt.Errorf("store unreachable")
	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, created.Plan.Checklist[0].ID, "done", nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Contains(t, result.Warning, "failed to remove previous version")
	assert.Len(t, gw.records, 2, "stale record stays behind")
}

func TestUpdatePlanItem_SetsNote(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	note := "blocked on review"
	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, created.Plan.Checklist[0].ID, "doing", &note, "")
	require.NoError(t, err)

	require.NotNil(t, result.Plan.Checklist[0].Note)
	assert.Equal(t, note, *result.Plan.Checklist[0].Note)
}

func TestUpdatePlanItem_UnknownPlan(t *testing.T) {
	svc := newTestService(&fakeGateway{})

	result, err := svc.UpdatePlanItem(context.Background(), "ghost", "item", "done", nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, "ghost", result.PlanID)
}

func TestUpdatePlanItem_UnknownItem(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, "ghost-item", "done", nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, "ghost-item", result.ItemID)
	require.Len(t, gw.records, 1, "no write on unknown item")
}

func TestUpdatePlanItem_InvalidStatus(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	result, err := svc.UpdatePlanItem(context.Background(), created.PlanID, created.Plan.Checklist[0].ID, "cancelled", nil, "")
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "Invalid item status")
}

// --- AddPlanItem ---

func TestAddPlanItem_AppendsTodo(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	result, err := svc.AddPlanItem(context.Background(), created.PlanID, "write changelog", "")
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	require.NotNil(t, result.Plan)
	assert.Equal(t, 2, result.Plan.TotalItems)
	assert.Equal(t, 2, result.Plan.OpenItems)
	last := result.Plan.Checklist[len(result.Plan.Checklist)-1]
	assert.Equal(t, "write changelog", last.Title)
	assert.Equal(t, "todo", last.Status)
}

// --- DeletePlan ---

func TestDeletePlan_RemovesRecord(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	created := createTestPlan(t, svc, "Ship v1", "docs")

	result, err := svc.DeletePlan(context.Background(), created.PlanID, "")
	require.NoError(t, err)

	assert.Equal(t, StatusDeleted, result.Status)
	assert.Empty(t, gw.records)

	fetched, err := svc.GetPlan(context.Background(), created.PlanID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, fetched.Status)
}

func TestDeletePlan_Unknown(t *testing.T) {
	svc := newTestService(&fakeGateway{})

	result, err := svc.DeletePlan(context.Background(), "ghost", "")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
}

// --- ListPlans ---

func TestListPlans_FiltersByStatus(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	createTestPlan(t, svc, "Active one", "a")
	paused, err := svc.CreatePlan(context.Background(), PlanInput{Title: "Paused one", Status: "paused"})
	require.NoError(t, err)

	result, err := svc.ListPlans(context.Background(), ListPlansParams{Status: "paused"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, paused.PlanID, result.Plans[0].PlanID)
}

func TestListPlans_OnlyOpenSkipsFinishedPlans(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	open := createTestPlan(t, svc, "Open", "pending item")
	done := createTestPlan(t, svc, "Done", "only item")
	_, err := svc.UpdatePlanItem(context.Background(), done.PlanID, done.Plan.Checklist[0].ID, "done", nil, "")
	require.NoError(t, err)

	result, err := svc.ListPlans(context.Background(), ListPlansParams{OnlyOpen: true})
	require.NoError(t, err)

	require.Len(t, result.Plans, 1)
	assert.Equal(t, open.PlanID, result.Plans[0].PlanID)
}

func TestListPlans_FiltersByTag(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	_, err := svc.CreatePlan(context.Background(), PlanInput{Title: "Tagged", Tags: []string{"infra.k8s"}})
	require.NoError(t, err)
	createTestPlan(t, svc, "Untagged")

	// Hierarchical expansion makes the plan match at every level.
	for _, tag := range []string{"infra", "k8s", "infra.k8s"} {
		result, err := svc.ListPlans(context.Background(), ListPlansParams{Tag: tag})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total, "tag %q", tag)
	}
}

func TestListPlans_TotalCountedBeforeSlicing(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(gw)
	for i := 0; i < 5; i++ {
		createTestPlan(t, svc, fmt.Sprintf("Plan %d", i))
	}

	result, err := svc.ListPlans(context.Background(), ListPlansParams{Limit: 2, Offset: 4})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Plans, 1)
}
