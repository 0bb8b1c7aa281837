package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intakeflow/internal/compiler"
	"intakeflow/internal/library"
	"intakeflow/internal/logic"
	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// mockAPIStore satisfies store.Store for handler tests.
type mockAPIStore struct {
	store.Store
	mu        sync.Mutex
	nextID    int64
	steps     map[int64]*store.LibraryStep
	workflows map[int64]*schema.Workflow
	schemas   map[int64]*schema.RuntimeSchema
	events    []*store.Event
}

func newMockAPIStore() *mockAPIStore {
	return &mockAPIStore{
		steps:     make(map[int64]*store.LibraryStep),
		workflows: make(map[int64]*schema.Workflow),
		schemas:   make(map[int64]*schema.RuntimeSchema),
	}
}

func (m *mockAPIStore) CreateStep(_ context.Context, step *store.LibraryStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	step.ID = m.nextID
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *mockAPIStore) GetStep(_ context.Context, id int64) (*store.LibraryStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "step %d not found", id)
	}
	cp := *step
	return &cp, nil
}

func (m *mockAPIStore) UpdateStep(_ context.Context, step *store.LibraryStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[step.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "step %d not found", step.ID)
	}
	cp := *step
	m.steps[step.ID] = &cp
	return nil
}

func (m *mockAPIStore) ListSteps(_ context.Context) ([]*store.LibraryStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.LibraryStep
	for _, s := range m.steps {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAPIStore) DeleteStep(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "step %d not found", id)
	}
	delete(m.steps, id)
	return nil
}

func (m *mockAPIStore) SaveWorkflow(_ context.Context, wf *schema.Workflow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == nil {
		m.nextID++
		id := m.nextID
		wf.ID = &id
	} else if _, ok := m.workflows[*wf.ID]; !ok {
		return 0, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %d not found", *wf.ID)
	}
	cp := *wf
	m.workflows[*wf.ID] = &cp
	return *wf.ID, nil
}

func (m *mockAPIStore) GetWorkflow(_ context.Context, id int64) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %d not found", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *mockAPIStore) ListWorkflows(_ context.Context, filter store.WorkflowFilter) ([]*store.WorkflowSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.WorkflowSummary
	for id, wf := range m.workflows {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		out = append(out, &store.WorkflowSummary{ID: id, Name: wf.Name, Status: wf.Status, StepCount: len(wf.Steps)})
	}
	return out, nil
}

func (m *mockAPIStore) DeleteWorkflow(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %d not found", id)
	}
	delete(m.workflows, id)
	return nil
}

func (m *mockAPIStore) PutRuntimeSchema(_ context.Context, workflowID int64, rs *schema.RuntimeSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[workflowID] = rs
	return nil
}

func (m *mockAPIStore) GetRuntimeSchema(_ context.Context, workflowID int64) (*store.CompiledSchemaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.schemas[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "runtime schema %d not found", workflowID)
	}
	doc, err := json.Marshal(rs)
	if err != nil {
		return nil, err
	}
	return &store.CompiledSchemaRecord{
		WorkflowID: workflowID,
		Schema:     rs,
		Document:   doc,
		CompiledAt: time.Now().UTC(),
	}, nil
}

func (m *mockAPIStore) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Sequence = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

func (m *mockAPIStore) GetEvents(_ context.Context, workflowID int64, since int64) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events {
		if e.WorkflowID == workflowID && e.Sequence > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAPIStore) GetEventsByType(_ context.Context, eventType string, filter store.EventFilter) ([]*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Event
	for _, e := range m.events {
		if e.Type != eventType {
			continue
		}
		if filter.SessionID != "" && e.SessionID != filter.SessionID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockAPIStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

func newTestServer(t *testing.T) (*httptest.Server, *mockAPIStore) {
	t.Helper()

	ms := newMockAPIStore()
	provider := library.NewStaticProvider(library.StepDetail{
		ID:   10,
		Name: "Contact details",
		Components: []schema.Component{
			{ID: "email-address", Type: "input", Label: schema.NewText("Email address"), Required: true},
		},
	})
	check, err := compiler.NewSelfCheck()
	require.NoError(t, err)
	registry, err := logic.NewRegistry()
	require.NoError(t, err)
	service := compiler.NewService(compiler.New(provider), check, slog.New(slog.DiscardHandler), nil)

	server := NewServer(Deps{
		Store:    ms,
		Compiler: service,
		Logic:    registry,
		Logger:   slog.New(slog.DiscardHandler),
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, ms
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func seedWorkflow(t *testing.T, ts *httptest.Server, wf *schema.Workflow) int64 {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/workflows", wf)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	return int64(body["id"].(float64))
}

func permitWorkflow() *schema.Workflow {
	libID := int64(10)
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
			{ID: "S2", Name: "Business details", Routing: schema.Routing{Mode: schema.RouteLinear, Next: "S3"}},
			{ID: "S3", Name: "Review", Routing: schema.Routing{Mode: schema.RouteLinear}},
		},
		StartStepID: "S1",
	}
}

// --- Steps ---

func TestStepCRUD(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/steps", store.LibraryStep{
		Name: "Contact details",
		Components: []schema.Component{
			{ID: "email", Type: "input", Label: schema.NewText("Email")},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created store.LibraryStep
	decodeBody(t, resp, &created)
	require.NotZero(t, created.ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/steps/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got store.LibraryStep
	decodeBody(t, resp, &got)
	assert.Equal(t, "Contact details", got.Name)

	created.Name = "Contact information"
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/steps/1", created)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/steps/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/steps/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateStep_RequiresName(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/steps", store.LibraryStep{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// --- Workflows ---

func TestSaveWorkflow_AppendsEvent(t *testing.T) {
	ts, ms := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	require.NotZero(t, id)
	assert.Contains(t, ms.eventTypes(), schema.EventWorkflowSaved)
}

func TestSaveWorkflow_ActiveRecompiles(t *testing.T) {
	ts, ms := newTestServer(t)
	wf := permitWorkflow()
	wf.Status = schema.WorkflowStatusActive

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/workflows", wf)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, true, body["compiled"])

	id := int64(body["id"].(float64))
	require.Contains(t, ms.schemas, id)
	assert.Contains(t, ms.eventTypes(), schema.EventSchemaCompiled)
}

func TestSaveWorkflow_ActiveCompileFailureReported(t *testing.T) {
	ts, ms := newTestServer(t)
	wf := permitWorkflow()
	wf.Status = schema.WorkflowStatusActive
	wf.Steps[1].Routing.Next = "S99" // dangling

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/workflows", wf)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Contains(t, body, "compileError")
	assert.Contains(t, ms.eventTypes(), schema.EventSchemaFailed)
}

func TestDeleteWorkflow(t *testing.T) {
	ts, ms := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/workflows/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Contains(t, ms.eventTypes(), schema.EventWorkflowDeleted)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListWorkflows_StatusFilter(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())
	active := permitWorkflow()
	active.Name = "Active one"
	active.Status = schema.WorkflowStatusActive
	seedWorkflow(t, ts, active)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows?status=active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []*store.WorkflowSummary
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Active one", list[0].Name)
}

// --- Graph tooling ---

func TestValidateWorkflow(t *testing.T) {
	ts, _ := newTestServer(t)
	wf := permitWorkflow()
	wf.Steps[1].Routing.Next = "S99"
	seedWorkflow(t, ts, wf)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report schema.ValidationReport
	decodeBody(t, resp, &report)
	assert.False(t, report.Valid())
}

func TestWorkflowEdges(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/edges", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Edges []struct {
			Source string `json:"source"`
			Target string `json:"target"`
			Label  string `json:"label"`
		} `json:"edges"`
		Levels [][]string `json:"levels"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Edges, 3)
	assert.Equal(t, [][]string{{"S1"}, {"S2", "S3"}}, body.Levels[:2])
}

func TestPreviewSchema(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rs schema.RuntimeSchema
	decodeBody(t, resp, &rs)
	assert.Equal(t, schema.SchemaVersion, rs.SchemaVersion)
	assert.Len(t, rs.Steps, 3)
}

func TestPreviewSchema_QueryFilter(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/preview?query=.steps%20%7C%20length", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, float64(3), body["result"])
}

func TestGetCachedSchema_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/schema", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetCachedSchema_ServesRecord(t *testing.T) {
	ts, _ := newTestServer(t)
	wf := permitWorkflow()
	wf.Status = schema.WorkflowStatusActive
	id := seedWorkflow(t, ts, wf)

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/workflows/%d/schema", ts.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record struct {
		WorkflowID int64                 `json:"workflow_id"`
		Schema     *schema.RuntimeSchema `json:"schema"`
		CompiledAt time.Time             `json:"compiled_at"`
	}
	decodeBody(t, resp, &record)
	assert.Equal(t, id, record.WorkflowID)
	assert.False(t, record.CompiledAt.IsZero())
	require.NotNil(t, record.Schema)
	assert.Len(t, record.Schema.Steps, 3)
}

// --- Events ---

func TestWorkflowEvents(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/workflows/1/events", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []*store.Event
	decodeBody(t, resp, &events)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventWorkflowSaved, events[0].Type)
}

func TestEvents_RequiresType(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/events", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEvents_ByType(t *testing.T) {
	ts, _ := newTestServer(t)
	seedWorkflow(t, ts, permitWorkflow())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/events?type=workflow.saved", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []*store.Event
	decodeBody(t, resp, &events)
	assert.Len(t, events, 1)
}

// --- Preview sessions ---

func startSession(t *testing.T, ts *httptest.Server, workflowID int64) (string, map[string]any) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/workflows/%d/sessions", ts.URL, workflowID), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var state map[string]any
	decodeBody(t, resp, &state)
	return state["session_id"].(string), state
}

func sessionStepID(t *testing.T, state map[string]any) string {
	t.Helper()
	step, ok := state["step"].(map[string]any)
	require.True(t, ok, "state has no current step")
	return step["stepId"].(string)
}

func TestCreateSession_StartsOnFirstStep(t *testing.T) {
	ts, ms := newTestServer(t)
	wf := permitWorkflow()
	wf.Status = schema.WorkflowStatusActive
	id := seedWorkflow(t, ts, wf)

	_, state := startSession(t, ts, id)
	assert.Equal(t, string(schema.RunStatusActive), state["status"])
	assert.Equal(t, "applicant-type", sessionStepID(t, state))
	assert.Contains(t, ms.eventTypes(), schema.EventSessionStarted)
}

func TestCreateSession_CompilesDraftOnTheFly(t *testing.T) {
	ts, _ := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow()) // draft, nothing cached

	_, state := startSession(t, ts, id)
	assert.Equal(t, "applicant-type", sessionStepID(t, state))
}

func TestCreateSession_WorkflowNotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/workflows/99/sessions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionNext_ValidationFailureReportsErrors(t *testing.T) {
	ts, ms := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	sid, _ := startSession(t, ts, id)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/next", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var state map[string]any
	decodeBody(t, resp, &state)
	assert.Equal(t, "applicant-type", sessionStepID(t, state))
	errs := state["errors"].(map[string]any)
	assert.Contains(t, errs, "email-address")
	assert.Contains(t, ms.eventTypes(), schema.EventStepRejected)
}

func TestSessionRun_ToCompletion(t *testing.T) {
	ts, ms := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	sid, _ := startSession(t, ts, id)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/fields",
		map[string]any{"key": "email-address", "value": "a@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// No applicant_type answer, so the default branch goes to review.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]any
	decodeBody(t, resp, &state)
	assert.Equal(t, "review", sessionStepID(t, state))

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &state)
	assert.Equal(t, string(schema.RunStatusFinished), state["status"])
	snapshot := state["snapshot"].(map[string]any)
	assert.Equal(t, "a@x.com", snapshot["email-address"])

	types := ms.eventTypes()
	assert.Contains(t, types, schema.EventStepSubmitted)
	assert.Contains(t, types, schema.EventSessionFinished)
}

func TestSessionBack_ReturnsToPreviousStep(t *testing.T) {
	ts, _ := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	sid, _ := startSession(t, ts, id)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/fields",
		map[string]any{"key": "email-address", "value": "a@x.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sid+"/back", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]any
	decodeBody(t, resp, &state)
	assert.Equal(t, "applicant-type", sessionStepID(t, state))
}

func TestDeleteSession_AbortsAndDiscards(t *testing.T) {
	ts, ms := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	sid, _ := startSession(t, ts, id)

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Contains(t, ms.eventTypes(), schema.EventSessionAborted)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionEvents_FilterBySession(t *testing.T) {
	ts, _ := newTestServer(t)
	id := seedWorkflow(t, ts, permitWorkflow())
	first, _ := startSession(t, ts, id)
	second, _ := startSession(t, ts, id)
	require.NotEqual(t, first, second)

	resp := doJSON(t, http.MethodGet,
		ts.URL+"/api/events?type="+schema.EventSessionStarted+"&session="+first, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []*store.Event
	decodeBody(t, resp, &events)
	require.Len(t, events, 1)
	assert.Equal(t, first, events[0].SessionID)
}

func TestGetSession_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
