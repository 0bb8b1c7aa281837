// Package logging carries correlation identifiers for the authoring and
// preview surfaces through context.Context: the numeric workflow id, the
// compiled step id and the preview session id. A wrapping slog.Handler
// injects whatever is present into every record.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	stepIDKey
	sessionIDKey
)

// WithWorkflowID returns a context carrying the workflow's database id.
func WithWorkflowID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithStepID returns a context carrying a compiled step id.
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// WithSessionID returns a context carrying a preview session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WorkflowID extracts the workflow id from the context, zero if absent.
func WorkflowID(ctx context.Context) int64 {
	v, _ := ctx.Value(workflowIDKey).(int64)
	return v
}

// StepID extracts the step id from the context, or "" if absent.
func StepID(ctx context.Context) string {
	v, _ := ctx.Value(stepIDKey).(string)
	return v
}

// SessionID extracts the session id from the context, or "" if absent.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// correlationAttrs collects the identifiers present on the context. A zero
// workflow id and empty string ids are omitted.
func correlationAttrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	if id := WorkflowID(ctx); id != 0 {
		out = append(out, slog.Int64("workflow_id", id))
	}
	if id := StepID(ctx); id != "" {
		out = append(out, slog.String("step_id", id))
	}
	if id := SessionID(ctx); id != "" {
		out = append(out, slog.String("session_id", id))
	}
	return out
}

// LogWith returns a logger enriched with the context's correlation ids.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, attr := range correlationAttrs(ctx) {
		logger = logger.With(attr)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler so that logger.InfoContext(ctx,
// ...) picks up the context's correlation ids without callers threading
// them by hand.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
