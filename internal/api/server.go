// Package api serves the admin REST surface: the step library, workflow
// authoring, graph validation, edge projection and runtime-schema preview.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"sync"

	"intakeflow/internal/compiler"
	"intakeflow/internal/interpreter"
	"intakeflow/internal/logic"
	"intakeflow/internal/store"
)

// Deps holds the dependencies for the admin API server.
type Deps struct {
	Store    store.Store
	Compiler *compiler.Service
	Logic    *logic.Registry
	Logger   *slog.Logger
}

// Server is the admin API server. Preview sessions live in memory for the
// lifetime of the process; their events are persisted through the store.
type Server struct {
	deps Deps

	sessionMu sync.Mutex
	sessions  map[string]*interpreter.Session
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{
		deps:     deps,
		sessions: make(map[string]*interpreter.Session),
	}
}

// Handler returns the HTTP handler for the admin API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Step library.
	mux.HandleFunc("GET /api/steps", s.handleListSteps)
	mux.HandleFunc("POST /api/steps", s.handleCreateStep)
	mux.HandleFunc("GET /api/steps/{id}", s.handleGetStep)
	mux.HandleFunc("PUT /api/steps/{id}", s.handleUpdateStep)
	mux.HandleFunc("DELETE /api/steps/{id}", s.handleDeleteStep)

	// Workflows.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /api/workflows", s.handleSaveWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.handleSaveWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)

	// Graph tooling.
	mux.HandleFunc("GET /api/workflows/{id}/validate", s.handleValidateWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/edges", s.handleWorkflowEdges)
	mux.HandleFunc("GET /api/workflows/{id}/preview", s.handlePreviewSchema)
	mux.HandleFunc("GET /api/workflows/{id}/schema", s.handleGetCachedSchema)
	mux.HandleFunc("GET /api/workflows/{id}/events", s.handleWorkflowEvents)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	// Preview sessions.
	mux.HandleFunc("POST /api/workflows/{id}/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{sid}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{sid}/fields", s.handleSessionSetField)
	mux.HandleFunc("POST /api/sessions/{sid}/next", s.handleSessionNext)
	mux.HandleFunc("POST /api/sessions/{sid}/back", s.handleSessionBack)
	mux.HandleFunc("DELETE /api/sessions/{sid}", s.handleDeleteSession)

	return mux
}
