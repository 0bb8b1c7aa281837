package schema

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current runtime schema document version.
const SchemaVersion = 2

// RuntimeSchema is the compiled, read-only artifact consumed by the
// interpreter and the intake portal. It is regenerated whenever the source
// workflow graph changes; never hand-edited.
type RuntimeSchema struct {
	SchemaVersion int            `json:"schemaVersion"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	Workflow      WorkflowMeta   `json:"workflow"`
	Steps         []CompiledStep `json:"steps"`
	Counts        SchemaCounts   `json:"counts"`
}

// WorkflowMeta identifies the source workflow of a compiled schema.
type WorkflowMeta struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Status WorkflowStatus `json:"status"`
}

// SchemaCounts summarizes the compiled document.
type SchemaCounts struct {
	Steps      int `json:"steps"`
	Components int `json:"components"`
}

// CompiledStep is one interpretable step. Successor resolution order:
// first truthy Branching condition, else DefaultNextStepID, else NextStepID,
// else terminal.
type CompiledStep struct {
	StepID            string       `json:"stepId"`
	Title             Text         `json:"title"`
	Description       Text         `json:"description"`
	Components        []Component  `json:"components"`
	NextStepID        string       `json:"nextStepId,omitempty"`
	DefaultNextStepID string       `json:"defaultNextStepId,omitempty"`
	Branching         []BranchRule `json:"branching,omitempty"`
}

// BranchRule routes to NextStepID when Condition evaluates truthy against
// the full answer map. Condition is a json-logic document.
type BranchRule struct {
	Condition  json.RawMessage `json:"condition"`
	NextStepID string          `json:"nextStepId"`
}

// StorageKeys returns every storage key declared anywhere in the schema,
// including one level of option reveal children, in document order.
func (rs *RuntimeSchema) StorageKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(c *Component) {
		if c.IsInput() && !seen[c.StorageKey] {
			seen[c.StorageKey] = true
			keys = append(keys, c.StorageKey)
		}
	}
	for si := range rs.Steps {
		for ci := range rs.Steps[si].Components {
			comp := &rs.Steps[si].Components[ci]
			add(comp)
			for oi := range comp.Options {
				for chi := range comp.Options[oi].Children {
					add(&comp.Options[oi].Children[chi])
				}
			}
		}
	}
	return keys
}

// FindStep returns the compiled step with the given ID and its index,
// or nil, -1.
func (rs *RuntimeSchema) FindStep(stepID string) (*CompiledStep, int) {
	for i := range rs.Steps {
		if rs.Steps[i].StepID == stepID {
			return &rs.Steps[i], i
		}
	}
	return nil, -1
}
