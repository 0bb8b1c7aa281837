package store

import (
	"encoding/json"
	"time"

	"intakeflow/pkg/schema"
)

// LibraryStep is a persisted reusable intake step. Components holds the
// authored component list as JSON, decoded on demand.
type LibraryStep struct {
	ID         int64              `json:"id"`
	Name       string             `json:"name"`
	Components []schema.Component `json:"components"`
	Status     string             `json:"status,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// WorkflowSummary is a workflow list entry.
type WorkflowSummary struct {
	ID        int64                 `json:"id"`
	Name      string                `json:"name"`
	Status    schema.WorkflowStatus `json:"status"`
	StepCount int                   `json:"step_count"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	Status schema.WorkflowStatus
}

// Event is one append-only log entry. Sequence is assigned per workflow on
// append and is contiguous from 1.
type Event struct {
	ID         int64           `json:"id"`
	WorkflowID int64           `json:"workflow_id"`
	SessionID  string          `json:"session_id,omitempty"`
	StepID     string          `json:"step_id,omitempty"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// EventFilter narrows event queries.
type EventFilter struct {
	SessionID string
	Limit     int
}

// CompiledSchemaRecord is one cached runtime schema document. Document is
// the raw stored JSON; Schema is its decoded form.
type CompiledSchemaRecord struct {
	WorkflowID int64                 `json:"workflow_id"`
	Schema     *schema.RuntimeSchema `json:"schema"`
	Document   []byte                `json:"-"`
	CompiledAt time.Time             `json:"compiled_at"`
}
