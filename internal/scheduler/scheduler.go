// Package scheduler periodically recompiles every active workflow so the
// cached runtime schemas stay in sync with edits made outside the publish
// path (step library updates in particular).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// SchemaCompiler compiles a workflow into a validated runtime schema.
// Satisfied by the compiler Service (avoids import cycle).
type SchemaCompiler interface {
	CompileChecked(ctx context.Context, wf *schema.Workflow) (*schema.RuntimeSchema, error)
}

// Scheduler drives periodic recompilation on a cron schedule.
type Scheduler struct {
	store    store.Store
	compiler SchemaCompiler
	schedule cron.Schedule
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[int64]struct{} // workflow IDs currently recompiling (dedup)
}

// NewScheduler creates a Scheduler. cronExpr uses the standard five field
// form; empty defaults to every five minutes.
func NewScheduler(s store.Store, compiler SchemaCompiler, cronExpr string, logger *slog.Logger) (*Scheduler, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse recompile schedule %q: %w", cronExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		compiler: compiler,
		schedule: schedule,
		logger:   logger,
		inflight: make(map[int64]struct{}),
	}, nil
}

// Start launches the background loop. The loop wakes every 30 seconds and
// recompiles when the cron schedule is due.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("recompile scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	next := s.schedule.Next(time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Before(next) {
				continue
			}
			s.RecompileAll(ctx)
			next = s.schedule.Next(now)
		}
	}
}

// RecompileAll recompiles every active workflow once, refreshing the
// runtime schema cache and recording compile outcomes in the event log.
func (s *Scheduler) RecompileAll(ctx context.Context) {
	summaries, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{Status: schema.WorkflowStatusActive})
	if err != nil {
		s.logger.Error("failed to list active workflows", slog.String("error", err.Error()))
		return
	}
	for _, summary := range summaries {
		if !s.tryAcquire(summary.ID) {
			continue // still recompiling from a previous tick
		}
		if err := s.recompile(ctx, summary.ID); err != nil {
			s.logger.Error("scheduled recompile failed",
				slog.Int64("workflow_id", summary.ID),
				slog.String("error", err.Error()),
			)
		}
		s.release(summary.ID)
	}
}

func (s *Scheduler) recompile(ctx context.Context, workflowID int64) error {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	rs, err := s.compiler.CompileChecked(ctx, wf)
	if err != nil {
		s.emitOutcome(ctx, workflowID, schema.EventSchemaFailed, map[string]any{"error": err.Error()})
		return err
	}
	if err := s.store.PutRuntimeSchema(ctx, workflowID, rs); err != nil {
		return err
	}
	s.emitOutcome(ctx, workflowID, schema.EventSchemaCompiled, map[string]any{
		"steps":      rs.Counts.Steps,
		"components": rs.Counts.Components,
	})
	s.logger.Debug("workflow recompiled",
		slog.Int64("workflow_id", workflowID),
		slog.Int("steps", rs.Counts.Steps),
	)
	return nil
}

func (s *Scheduler) emitOutcome(ctx context.Context, workflowID int64, eventType string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.store.AppendEvent(ctx, &store.Event{
		WorkflowID: workflowID,
		Type:       eventType,
		Payload:    raw,
	}); err != nil {
		s.logger.Error("failed to record compile outcome",
			slog.Int64("workflow_id", workflowID),
			slog.String("error", err.Error()),
		)
	}
}

// tryAcquire returns true and marks the workflow as in-flight if it is not
// already recompiling.
func (s *Scheduler) tryAcquire(workflowID int64) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[workflowID]; ok {
		return false
	}
	s.inflight[workflowID] = struct{}{}
	return true
}

func (s *Scheduler) release(workflowID int64) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, workflowID)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("recompile scheduler stopped")
	return nil
}
