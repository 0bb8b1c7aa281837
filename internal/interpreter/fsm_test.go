package interpreter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// mockAppender records appended events for assertions.
type mockAppender struct {
	mu     sync.Mutex
	events []*store.Event
	err    error
}

func (m *mockAppender) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockAppender) Events() []*store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Event(nil), m.events...)
}

func (m *mockAppender) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

func TestRunFSM_ValidTransitionEmitsEvent(t *testing.T) {
	appender := &mockAppender{}
	fsm := NewRunFSM(appender)

	err := fsm.Transition(context.Background(), 1, "sess-1", schema.RunStatusReady, schema.RunStatusActive)
	require.NoError(t, err)

	events := appender.Events()
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventSessionStarted, events[0].Type)
	assert.Equal(t, int64(1), events[0].WorkflowID)
	assert.Equal(t, "sess-1", events[0].SessionID)
}

func TestRunFSM_InvalidTransition(t *testing.T) {
	fsm := NewRunFSM(&mockAppender{})

	cases := []struct {
		from, to schema.RunStatus
	}{
		{schema.RunStatusReady, schema.RunStatusFinished},
		{schema.RunStatusFinished, schema.RunStatusActive},
		{schema.RunStatusAborted, schema.RunStatusActive},
		{schema.RunStatusSchemaError, schema.RunStatusActive},
	}
	for _, tc := range cases {
		err := fsm.Transition(context.Background(), 1, "s", tc.from, tc.to)
		require.Error(t, err)
		var flowErr *schema.FlowError
		require.ErrorAs(t, err, &flowErr)
		assert.Equal(t, schema.ErrCodeInvalidTransition, flowErr.Code)
	}
}

func TestRunFSM_BeforeHookCanVeto(t *testing.T) {
	appender := &mockAppender{}
	fsm := NewRunFSM(appender)
	fsm.OnBefore(schema.RunStatusReady, schema.RunStatusActive, func(from, to schema.RunStatus) error {
		return errors.New("not yet")
	})

	err := fsm.Transition(context.Background(), 1, "s", schema.RunStatusReady, schema.RunStatusActive)
	require.EqualError(t, err, "not yet")
	assert.Empty(t, appender.Events())
}

func TestRunFSM_AfterHookRuns(t *testing.T) {
	fsm := NewRunFSM(&mockAppender{})
	var called bool
	fsm.OnAfter(schema.RunStatusActive, schema.RunStatusFinished, func(from, to schema.RunStatus) error {
		called = true
		return nil
	})

	err := fsm.Transition(context.Background(), 1, "s", schema.RunStatusActive, schema.RunStatusFinished)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRunFSM_AppendFailureSurfacesStoreError(t *testing.T) {
	appender := &mockAppender{err: errors.New("disk full")}
	fsm := NewRunFSM(appender)

	err := fsm.Transition(context.Background(), 1, "s", schema.RunStatusReady, schema.RunStatusActive)
	require.Error(t, err)
	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeStore, flowErr.Code)
}
