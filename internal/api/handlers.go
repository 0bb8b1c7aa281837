package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"intakeflow/internal/logging"
	"intakeflow/internal/routing"
	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// --- Step library ---

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.deps.Store.ListSteps(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if steps == nil {
		steps = []*store.LibraryStep{}
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) handleCreateStep(w http.ResponseWriter, r *http.Request) {
	var step store.LibraryStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if step.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.deps.Store.CreateStep(r.Context(), &step); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

func (s *Server) handleGetStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	step, err := s.deps.Store.GetStep(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var step store.LibraryStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	step.ID = id
	if err := s.deps.Store.UpdateStep(r.Context(), &step); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteStep(r.Context(), id); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

// --- Workflows ---

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{
		Status: schema.WorkflowStatus(r.URL.Query().Get("status")),
	}
	workflows, err := s.deps.Store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*store.WorkflowSummary{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

// handleSaveWorkflow creates (POST) or replaces (PUT) a workflow graph.
// Saving an active workflow recompiles its runtime schema; compile failures
// do not roll back the save, they are reported in the response and the
// event log.
func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wf schema.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if wf.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if wf.Status == "" {
		wf.Status = schema.WorkflowStatusDraft
	}
	if raw := r.PathValue("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id: "+raw)
			return
		}
		wf.ID = &id
	}

	id, err := s.deps.Store.SaveWorkflow(ctx, &wf)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	ctx = logging.WithWorkflowID(ctx, id)
	s.appendEvent(ctx, id, schema.EventWorkflowSaved, map[string]any{"name": wf.Name, "steps": len(wf.Steps)})

	response := map[string]any{"id": id}
	if wf.Status == schema.WorkflowStatusActive {
		if compileErr := s.recompile(ctx, id, &wf); compileErr != nil {
			response["compileError"] = compileErr.Error()
		} else {
			response["compiled"] = true
		}
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, response)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wf, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	// Supersede any in-flight compile before removing the rows; once
	// Invalidate returns no stale result can repopulate the schema cache.
	s.deps.Compiler.Invalidate(id)
	if err := s.deps.Store.DeleteWorkflow(ctx, id); err != nil {
		writeFlowError(w, err)
		return
	}
	s.appendEvent(ctx, id, schema.EventWorkflowDeleted, nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

// --- Graph tooling ---

func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wf, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routing.Validate(wf))
}

func (s *Server) handleWorkflowEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wf, err := s.deps.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	edges := routing.BuildEdges(wf.Steps)
	if edges == nil {
		edges = []routing.Edge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"edges":  edges,
		"levels": routing.Levels(wf),
	})
}

// handlePreviewSchema compiles the workflow on the fly. An optional
// query= parameter runs a jq filter over the compiled document for the
// schema inspection widget.
func (s *Server) handlePreviewSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := logging.WithWorkflowID(r.Context(), id)

	wf, err := s.deps.Store.GetWorkflow(ctx, id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	rs, err := s.deps.Compiler.CompileChecked(ctx, wf)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusOK, rs)
		return
	}
	doc, err := toDocument(rs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := s.deps.Logic.Get("jq").Evaluate(ctx, query, doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "result": result})
}

func (s *Server) handleGetCachedSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	record, err := s.deps.Store.GetRuntimeSchema(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// --- Events ---

func (s *Server) handleWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	since := int64(queryInt(r, "since", 0))
	events, err := s.deps.Store.GetEvents(r.Context(), id, since)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	filter := store.EventFilter{
		SessionID: r.URL.Query().Get("session"),
		Limit:     queryInt(r, "limit", 100),
	}
	events, err := s.deps.Store.GetEventsByType(r.Context(), eventType, filter)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- internals ---

// recompile refreshes the runtime schema cache for an active workflow and
// records the outcome in the event log.
func (s *Server) recompile(ctx context.Context, id int64, wf *schema.Workflow) error {
	rs, err := s.deps.Compiler.CompileChecked(ctx, wf)
	if err != nil {
		s.appendEvent(ctx, id, schema.EventSchemaFailed, map[string]any{"error": err.Error()})
		return err
	}
	if err := s.deps.Store.PutRuntimeSchema(ctx, id, rs); err != nil {
		return err
	}
	s.appendEvent(ctx, id, schema.EventSchemaCompiled, map[string]any{
		"steps":      rs.Counts.Steps,
		"components": rs.Counts.Components,
	})
	return nil
}

func (s *Server) appendEvent(ctx context.Context, workflowID int64, eventType string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	if err := s.deps.Store.AppendEvent(ctx, &store.Event{
		WorkflowID: workflowID,
		Type:       eventType,
		Payload:    raw,
	}); err != nil {
		logging.LogWith(ctx, s.deps.Logger).Error("failed to append event",
			"event_type", eventType, "error", err.Error())
	}
}

// toDocument round-trips a runtime schema through JSON into the generic
// map form jq programs operate on.
func toDocument(rs *schema.RuntimeSchema) (map[string]any, error) {
	raw, err := json.Marshal(rs)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
