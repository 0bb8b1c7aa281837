package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"intakeflow/internal/interpreter"
	"intakeflow/internal/logging"
	"intakeflow/pkg/schema"
)

// handleCreateSession starts an interactive preview run over the workflow's
// runtime schema. The cached schema is preferred; a workflow that has never
// been compiled is compiled on the fly so drafts can be previewed too.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := logging.WithWorkflowID(r.Context(), id)

	var body struct {
		Language string `json:"language"`
	}
	// An empty body means default language.
	_ = json.NewDecoder(r.Body).Decode(&body)

	rs, err := s.loadRuntimeSchema(ctx, id)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	var opts []interpreter.Option
	if body.Language != "" {
		opts = append(opts, interpreter.WithLanguage(body.Language))
	}
	sess := interpreter.NewSession(rs, s.deps.Logic, s.deps.Store, opts...)
	ctx = logging.WithSessionID(ctx, sess.ID())
	if err := sess.Start(ctx); err != nil {
		writeFlowError(w, err)
		return
	}

	s.sessionMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionMu.Unlock()

	logging.LogWith(ctx, s.deps.Logger).Info("preview session started")
	writeJSON(w, http.StatusCreated, sessionState(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleSessionSetField records one answer and runs change-trigger
// validation for that field only.
func (s *Server) handleSessionSetField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	ctx := logging.WithSessionID(r.Context(), sess.ID())
	sess.SetField(ctx, body.Key, body.Value)
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleSessionNext submits the current step. A validation failure keeps
// the session in place and reports the field errors with a 422.
func (s *Server) handleSessionNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := logging.WithSessionID(r.Context(), sess.ID())
	if err := sess.Next(ctx); err != nil {
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) && flowErr.Code == schema.ErrCodeValidation {
			writeJSON(w, http.StatusUnprocessableEntity, sessionState(sess))
			return
		}
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

func (s *Server) handleSessionBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := logging.WithSessionID(r.Context(), sess.ID())
	if err := sess.Back(ctx); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionState(sess))
}

// handleDeleteSession aborts a running session and discards it.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ctx := logging.WithSessionID(r.Context(), sess.ID())
	switch sess.Status() {
	case schema.RunStatusReady, schema.RunStatusActive:
		if err := sess.Abort(ctx); err != nil {
			writeFlowError(w, err)
			return
		}
	}
	s.sessionMu.Lock()
	delete(s.sessions, sess.ID())
	s.sessionMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": sess.ID()})
}

// --- internals ---

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*interpreter.Session, bool) {
	id := r.PathValue("sid")
	s.sessionMu.Lock()
	sess, ok := s.sessions[id]
	s.sessionMu.Unlock()
	if !ok {
		writeFlowError(w, schema.NewErrorf(schema.ErrCodeNotFound, "session %s not found", id))
		return nil, false
	}
	return sess, true
}

// loadRuntimeSchema returns the cached compiled schema, compiling the
// workflow on the fly when nothing is cached yet.
func (s *Server) loadRuntimeSchema(ctx context.Context, workflowID int64) (*schema.RuntimeSchema, error) {
	record, err := s.deps.Store.GetRuntimeSchema(ctx, workflowID)
	if err == nil {
		return record.Schema, nil
	}
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) || flowErr.Code != schema.ErrCodeNotFound {
		return nil, err
	}
	wf, err := s.deps.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return s.deps.Compiler.CompileChecked(ctx, wf)
}

// sessionState is the wire shape shared by every session endpoint: status,
// the step the run is positioned on, live diagnostics and, once finished,
// the final answer snapshot.
func sessionState(sess *interpreter.Session) map[string]any {
	state := map[string]any{
		"session_id": sess.ID(),
		"status":     sess.Status(),
		"errors":     sess.Errors(),
		"warnings":   sess.Warnings(),
	}
	if step := sess.Current(); step != nil {
		state["step"] = step
	}
	if sess.Status() == schema.RunStatusFinished {
		state["snapshot"] = sess.Snapshot()
	}
	return state
}
