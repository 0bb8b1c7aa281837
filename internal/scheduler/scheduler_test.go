package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// mockSchedulerStore satisfies store.Store for scheduler tests.
type mockSchedulerStore struct {
	store.Store
	mu        sync.Mutex
	workflows map[int64]*schema.Workflow
	schemas   map[int64]*schema.RuntimeSchema
	events    []*store.Event
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		workflows: make(map[int64]*schema.Workflow),
		schemas:   make(map[int64]*schema.RuntimeSchema),
	}
}

func (m *mockSchedulerStore) addWorkflow(id int64, status schema.WorkflowStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[id] = &schema.Workflow{
		ID:     &id,
		Name:   "wf",
		Status: status,
		Steps: []schema.Step{
			{ID: "S1", Name: "Only step", Routing: schema.Routing{Mode: schema.RouteLinear}},
		},
	}
}

func (m *mockSchedulerStore) ListWorkflows(_ context.Context, filter store.WorkflowFilter) ([]*store.WorkflowSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.WorkflowSummary
	for id, wf := range m.workflows {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		out = append(out, &store.WorkflowSummary{ID: id, Name: wf.Name, Status: wf.Status})
	}
	return out, nil
}

func (m *mockSchedulerStore) GetWorkflow(_ context.Context, id int64) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %d not found", id)
	}
	return wf, nil
}

func (m *mockSchedulerStore) PutRuntimeSchema(_ context.Context, workflowID int64, rs *schema.RuntimeSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[workflowID] = rs
	return nil
}

func (m *mockSchedulerStore) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockSchedulerStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

// mockCompiler returns a canned schema or error per workflow ID.
type mockCompiler struct {
	mu    sync.Mutex
	fail  map[int64]error
	calls []int64
}

func (m *mockCompiler) CompileChecked(_ context.Context, wf *schema.Workflow) (*schema.RuntimeSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(0)
	if wf.ID != nil {
		id = *wf.ID
	}
	m.calls = append(m.calls, id)
	if err := m.fail[id]; err != nil {
		return nil, err
	}
	return &schema.RuntimeSchema{
		SchemaVersion: schema.SchemaVersion,
		Workflow:      schema.WorkflowMeta{ID: id, Name: wf.Name, Status: wf.Status},
		Steps:         []schema.CompiledStep{{StepID: "only-step"}},
		Counts:        schema.SchemaCounts{Steps: 1},
	}, nil
}

func (m *mockCompiler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestScheduler(t *testing.T, s store.Store, c SchemaCompiler) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(s, c, "", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return sched
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := NewScheduler(newMockSchedulerStore(), &mockCompiler{}, "not a cron", nil)
	require.Error(t, err)
}

func TestRecompileAll_ActiveWorkflowsOnly(t *testing.T) {
	ms := newMockSchedulerStore()
	ms.addWorkflow(1, schema.WorkflowStatusActive)
	ms.addWorkflow(2, schema.WorkflowStatusDraft)
	mc := &mockCompiler{}
	sched := newTestScheduler(t, ms, mc)

	sched.RecompileAll(context.Background())

	assert.Equal(t, 1, mc.callCount())
	require.Contains(t, ms.schemas, int64(1))
	assert.NotContains(t, ms.schemas, int64(2))
	assert.Equal(t, []string{schema.EventSchemaCompiled}, ms.eventTypes())
}

func TestRecompileAll_FailureRecordsSchemaFailed(t *testing.T) {
	ms := newMockSchedulerStore()
	ms.addWorkflow(5, schema.WorkflowStatusActive)
	mc := &mockCompiler{fail: map[int64]error{5: errors.New("dangling next")}}
	sched := newTestScheduler(t, ms, mc)

	sched.RecompileAll(context.Background())

	assert.Empty(t, ms.schemas)
	assert.Equal(t, []string{schema.EventSchemaFailed}, ms.eventTypes())
}

func TestRecompileAll_RefreshesCachedSchema(t *testing.T) {
	ms := newMockSchedulerStore()
	ms.addWorkflow(3, schema.WorkflowStatusActive)
	mc := &mockCompiler{}
	sched := newTestScheduler(t, ms, mc)

	sched.RecompileAll(context.Background())
	sched.RecompileAll(context.Background())

	assert.Equal(t, 2, mc.callCount())
	rs := ms.schemas[3]
	require.NotNil(t, rs)
	assert.Equal(t, "only-step", rs.Steps[0].StepID)
}

func TestStartStop(t *testing.T) {
	ms := newMockSchedulerStore()
	sched := newTestScheduler(t, ms, &mockCompiler{})

	require.NoError(t, sched.Start(context.Background()))
	require.Error(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())

	// A stopped scheduler can be started again.
	require.NoError(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop())
}

func TestInflightDedup(t *testing.T) {
	sched := newTestScheduler(t, newMockSchedulerStore(), &mockCompiler{})

	require.True(t, sched.tryAcquire(9))
	require.False(t, sched.tryAcquire(9))
	sched.release(9)
	require.True(t, sched.tryAcquire(9))
}
