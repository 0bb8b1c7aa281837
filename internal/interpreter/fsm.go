// Package interpreter walks a compiled runtime schema as an interactive
// preview session: presenting steps, validating answers and resolving
// branch successors until the run finishes.
package interpreter

import (
	"context"
	"sync"

	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// TransitionHook is called before or after a run state transition.
type TransitionHook func(from, to schema.RunStatus) error

// EventAppender is satisfied by the Store; sessions emit their lifecycle
// and step events through it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// ValidRunTransitions is the run lifecycle transition table. Finished,
// aborted and schema_error are terminal.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusReady:  {schema.RunStatusActive, schema.RunStatusAborted},
	schema.RunStatusActive: {schema.RunStatusFinished, schema.RunStatusAborted},
}

type runHookKey struct {
	from, to schema.RunStatus
}

// RunFSM manages run lifecycle transitions and emits the matching session
// events.
type RunFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[runHookKey][]TransitionHook
	after    map[runHookKey][]TransitionHook
}

// NewRunFSM creates a RunFSM that emits events via the given appender.
// A nil appender disables event emission.
func NewRunFSM(appender EventAppender) *RunFSM {
	return &RunFSM{
		appender: appender,
		before:   make(map[runHookKey][]TransitionHook),
		after:    make(map[runHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a matching transition.
func (f *RunFSM) OnBefore(from, to schema.RunStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := runHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a matching transition.
func (f *RunFSM) OnAfter(from, to schema.RunStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := runHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a run state transition, emitting the
// corresponding session event. The caller owns persisting the new state.
func (f *RunFSM) Transition(ctx context.Context, workflowID int64, sessionID string, from, to schema.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}

	key := runHookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	if eventType := runEventType(to); eventType != "" && f.appender != nil {
		event := &store.Event{
			WorkflowID: workflowID,
			SessionID:  sessionID,
			Type:       eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit session event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}

func isValidRunTransition(from, to schema.RunStatus) bool {
	for _, a := range ValidRunTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func runEventType(to schema.RunStatus) string {
	switch to {
	case schema.RunStatusActive:
		return schema.EventSessionStarted
	case schema.RunStatusFinished:
		return schema.EventSessionFinished
	case schema.RunStatusAborted:
		return schema.EventSessionAborted
	}
	return ""
}
