package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Zero(t, WorkflowID(ctx))
	assert.Equal(t, "", StepID(ctx))
	assert.Equal(t, "", SessionID(ctx))

	ctx = WithWorkflowID(ctx, 12)
	ctx = WithStepID(ctx, "applicant-type")
	ctx = WithSessionID(ctx, "sess-42")

	assert.Equal(t, int64(12), WorkflowID(ctx))
	assert.Equal(t, "applicant-type", StepID(ctx))
	assert.Equal(t, "sess-42", SessionID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	ctx = WithWorkflowID(ctx, 12)
	ctx = WithStepID(ctx, "review")
	ctx = WithSessionID(ctx, "sess-7")

	enriched := LogWith(ctx, logger)
	enriched.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=12")
	assert.Contains(t, output, "step_id=review")
	assert.Contains(t, output, "session_id=sess-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithWorkflowID(context.Background(), 12)

	enriched := LogWith(ctx, logger)
	enriched.Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=12")
	assert.NotContains(t, output, "step_id=")
	assert.NotContains(t, output, "session_id=")
}

func TestCorrelationHandler_InjectsFromContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithSessionID(WithWorkflowID(context.Background(), 9), "sess-1")
	logger.InfoContext(ctx, "compiled")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=9")
	assert.Contains(t, output, "session_id=sess-1")
}

func TestCorrelationHandler_WithAttrsPreservesWrapping(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner)).With(slog.String("component", "compiler"))

	ctx := WithWorkflowID(context.Background(), 3)
	logger.InfoContext(ctx, "hello")

	output := buf.String()
	assert.Contains(t, output, "component=compiler")
	assert.Contains(t, output, "workflow_id=3")
}
