package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intakeflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedLibraryStep(t *testing.T, s *LibSQLStore, name string) *LibraryStep {
	t.Helper()
	step := &LibraryStep{
		Name: name,
		Components: []schema.Component{
			{ID: "email", Type: "input", Label: schema.Text{EN: "Email address", FR: "Adresse courriel"}},
		},
	}
	require.NoError(t, s.CreateStep(context.Background(), step))
	return step
}

// --- Step library ---

func TestCreateAndGetStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	step := seedLibraryStep(t, s, "Contact details")
	require.NotZero(t, step.ID)

	got, err := s.GetStep(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contact details", got.Name)
	assert.Equal(t, "active", got.Status)
	require.Len(t, got.Components, 1)
	assert.Equal(t, "email", got.Components[0].ID)
	assert.Equal(t, "Email address", got.Components[0].Label.EN)
}

func TestGetStep_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetStep(context.Background(), 9999)
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestUpdateStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	step := seedLibraryStep(t, s, "Contact details")

	step.Name = "Contact information"
	step.Components = append(step.Components, schema.Component{ID: "phone", Type: "input"})
	require.NoError(t, s.UpdateStep(ctx, step))

	got, err := s.GetStep(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contact information", got.Name)
	assert.Len(t, got.Components, 2)
}

func TestListSteps_OrderedByID(t *testing.T) {
	s := newTestStore(t)
	a := seedLibraryStep(t, s, "First")
	b := seedLibraryStep(t, s, "Second")

	steps, err := s.ListSteps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, a.ID, steps[0].ID)
	assert.Equal(t, b.ID, steps[1].ID)
}

func TestDeleteStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	step := seedLibraryStep(t, s, "Doomed")

	require.NoError(t, s.DeleteStep(ctx, step.ID))
	_, err := s.GetStep(ctx, step.ID)
	require.Error(t, err)

	err = s.DeleteStep(ctx, step.ID)
	require.Error(t, err)
}

// --- Workflows ---

func testGraph(libID int64) *schema.Workflow {
	return &schema.Workflow{
		Name:   "Permit application",
		Status: schema.WorkflowStatusDraft,
		Steps: []schema.Step{
			{
				ID:     "S1",
				Name:   "Applicant type",
				StepID: &libID,
				Routing: schema.Routing{
					Mode:        schema.RouteByOption,
					FieldKey:    "applicant_type",
					Options:     []string{"individual", "business"},
					Mapping:     map[string]string{"business": "S2"},
					DefaultNext: "S3",
				},
			},
			{
				ID:      "S2",
				Name:    "Business details",
				Routing: schema.Routing{Mode: schema.RouteLinear, Next: "S3"},
			},
			{
				ID:      "S3",
				Name:    "Review",
				Routing: schema.Routing{Mode: schema.RouteLinear},
			},
		},
		StartStepID: "S1",
	}
}

func TestSaveAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib := seedLibraryStep(t, s, "Applicant type")

	wf := testGraph(lib.ID)
	id, err := s.SaveWorkflow(ctx, wf)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NotNil(t, wf.ID)
	assert.Equal(t, id, *wf.ID)

	got, err := s.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Permit application", got.Name)
	assert.Equal(t, schema.WorkflowStatusDraft, got.Status)
	assert.Equal(t, "S1", got.StartStepID)
	require.Len(t, got.Steps, 3)

	s1 := got.Steps[0]
	assert.Equal(t, "S1", s1.ID)
	require.NotNil(t, s1.StepID)
	assert.Equal(t, lib.ID, *s1.StepID)
	assert.Equal(t, schema.RouteByOption, s1.Routing.Mode)
	assert.Equal(t, "applicant_type", s1.Routing.FieldKey)
	assert.Equal(t, []string{"individual", "business"}, s1.Routing.Options)
	assert.Equal(t, "S2", s1.Routing.Mapping["business"])
	assert.Equal(t, "S3", s1.Routing.DefaultNext)

	s2 := got.Steps[1]
	assert.Equal(t, schema.RouteLinear, s2.Routing.Mode)
	assert.Equal(t, "S3", s2.Routing.Next)
	assert.Nil(t, s2.StepID)
}

func TestSaveWorkflow_UpdateReplacesGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib := seedLibraryStep(t, s, "Applicant type")

	wf := testGraph(lib.ID)
	id, err := s.SaveWorkflow(ctx, wf)
	require.NoError(t, err)

	// Drop S2 and rewire S1's mapping to skip over it.
	wf.Steps = []schema.Step{wf.Steps[0], wf.Steps[2]}
	wf.Steps[0].Routing.Mapping["business"] = "S3"
	wf.Status = schema.WorkflowStatusActive
	id2, err := s.SaveWorkflow(ctx, wf)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	got, err := s.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusActive, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "S3", got.Steps[0].Routing.Mapping["business"])
}

func TestSaveWorkflow_UnknownIDFails(t *testing.T) {
	s := newTestStore(t)
	missing := int64(4242)
	wf := &schema.Workflow{ID: &missing, Name: "ghost", Status: schema.WorkflowStatusDraft}
	_, err := s.SaveWorkflow(context.Background(), wf)
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestListWorkflows_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft := &schema.Workflow{Name: "draft-wf", Status: schema.WorkflowStatusDraft,
		Steps: []schema.Step{{ID: "S1", Routing: schema.Routing{Mode: schema.RouteLinear}}}}
	active := &schema.Workflow{Name: "active-wf", Status: schema.WorkflowStatusActive}
	_, err := s.SaveWorkflow(ctx, draft)
	require.NoError(t, err)
	_, err = s.SaveWorkflow(ctx, active)
	require.NoError(t, err)

	all, err := s.ListWorkflows(ctx, WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, all[0].StepCount)
	assert.Equal(t, 0, all[1].StepCount)

	actives, err := s.ListWorkflows(ctx, WorkflowFilter{Status: schema.WorkflowStatusActive})
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, "active-wf", actives[0].Name)
}

func TestDeleteWorkflow_CascadesGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib := seedLibraryStep(t, s, "Applicant type")

	id, err := s.SaveWorkflow(ctx, testGraph(lib.ID))
	require.NoError(t, err)
	require.NoError(t, s.DeleteWorkflow(ctx, id))

	_, err = s.GetWorkflow(ctx, id)
	require.Error(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM workflow_step WHERE workflow_id = ?`, id).Scan(&count))
	assert.Zero(t, count)
}

// --- Runtime schema cache ---

func TestPutAndGetRuntimeSchema(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lib := seedLibraryStep(t, s, "Applicant type")
	id, err := s.SaveWorkflow(ctx, testGraph(lib.ID))
	require.NoError(t, err)

	rs := &schema.RuntimeSchema{
		SchemaVersion: schema.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Workflow:      schema.WorkflowMeta{ID: id, Name: "Permit application"},
		Steps: []schema.CompiledStep{
			{StepID: "applicant-type", Title: schema.NewText("Applicant type")},
		},
	}
	require.NoError(t, s.PutRuntimeSchema(ctx, id, rs))

	got, err := s.GetRuntimeSchema(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.WorkflowID)
	assert.False(t, got.CompiledAt.IsZero())
	assert.NotEmpty(t, got.Document)
	require.NotNil(t, got.Schema)
	assert.Equal(t, schema.SchemaVersion, got.Schema.SchemaVersion)
	require.Len(t, got.Schema.Steps, 1)
	assert.Equal(t, "applicant-type", got.Schema.Steps[0].StepID)

	// Upsert replaces the cached document.
	rs.Steps[0].StepID = "applicant-kind"
	require.NoError(t, s.PutRuntimeSchema(ctx, id, rs))
	got, err = s.GetRuntimeSchema(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "applicant-kind", got.Schema.Steps[0].StepID)
}

func TestGetRuntimeSchema_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRuntimeSchema(context.Background(), 777)
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}
