package compiler

import (
	"context"
	"log/slog"
	"sync"

	"intakeflow/pkg/schema"
)

// Result is the outcome of one asynchronous compile request.
type Result struct {
	WorkflowID int64
	Generation uint64
	Schema     *schema.RuntimeSchema
	Err        error
}

// Service runs compilations off the caller's goroutine and guarantees that
// a slow result for a superseded request never reaches the sink. Every
// request bumps a per-workflow generation counter; a result whose
// generation is no longer current is discarded without notification.
type Service struct {
	compiler *Compiler
	check    *SelfCheck
	logger   *slog.Logger
	sink     func(Result)

	mu          sync.Mutex
	generations map[int64]uint64
	wg          sync.WaitGroup
}

// NewService creates a compile service. The sink receives every current
// (non-stale) result; it may be called from multiple goroutines and runs
// under the service's internal lock, so it must not call back into
// Request or Invalidate.
func NewService(c *Compiler, check *SelfCheck, logger *slog.Logger, sink func(Result)) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		compiler:    c,
		check:       check,
		logger:      logger,
		sink:        sink,
		generations: make(map[int64]uint64),
	}
}

// Request schedules a compilation of the workflow and returns the request's
// generation. Any in-flight compile for the same workflow id is superseded:
// its result will be dropped when it lands.
func (s *Service) Request(ctx context.Context, wf *schema.Workflow) uint64 {
	key := workflowKey(wf)

	s.mu.Lock()
	s.generations[key]++
	gen := s.generations[key]
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		compiled, err := s.CompileChecked(ctx, wf)

		// The generation check and the sink call happen under one lock
		// section. Once Invalidate (or a newer Request) returns, a
		// superseded result can no longer reach the sink.
		s.mu.Lock()
		if s.generations[key] != gen {
			s.mu.Unlock()
			stale := schema.NewErrorf(schema.ErrCodeStaleResponse,
				"generation %d superseded", gen)
			s.logger.DebugContext(ctx, "discarding stale compile result",
				slog.Int64("workflow_id", key),
				slog.String("reason", stale.Error()))
			return
		}
		if s.sink != nil {
			s.sink(Result{WorkflowID: key, Generation: gen, Schema: compiled, Err: err})
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.ErrorContext(ctx, "workflow compilation failed",
				slog.Int64("workflow_id", key),
				slog.String("error", err.Error()))
		} else {
			s.logger.InfoContext(ctx, "workflow compiled",
				slog.Int64("workflow_id", key),
				slog.Int("steps", compiled.Counts.Steps),
				slog.Int("components", compiled.Counts.Components))
		}
	}()
	return gen
}

// CompileChecked compiles synchronously and runs the self-check on the
// produced document.
func (s *Service) CompileChecked(ctx context.Context, wf *schema.Workflow) (*schema.RuntimeSchema, error) {
	compiled, err := s.compiler.Compile(ctx, wf)
	if err != nil {
		return nil, err
	}
	if s.check != nil {
		if err := s.check.Validate(compiled); err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

// Invalidate supersedes all in-flight requests for a workflow without
// scheduling a new one, for deletion and deselection.
func (s *Service) Invalidate(workflowID int64) {
	s.mu.Lock()
	s.generations[workflowID]++
	s.mu.Unlock()
}

// Wait blocks until all in-flight compilations finish. Test and shutdown
// hook.
func (s *Service) Wait() {
	s.wg.Wait()
}

func workflowKey(wf *schema.Workflow) int64 {
	if wf != nil && wf.ID != nil {
		return *wf.ID
	}
	return 0
}
