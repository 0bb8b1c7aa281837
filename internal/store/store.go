// Package store persists the step library, authored workflows, compiled
// runtime schemas and the append-only event log on libSQL.
package store

import (
	"context"

	"intakeflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Step library
	CreateStep(ctx context.Context, step *LibraryStep) error
	GetStep(ctx context.Context, id int64) (*LibraryStep, error)
	UpdateStep(ctx context.Context, step *LibraryStep) error
	ListSteps(ctx context.Context) ([]*LibraryStep, error)
	DeleteStep(ctx context.Context, id int64) error

	// Workflows (graph persisted as workflow + step links + routes)
	SaveWorkflow(ctx context.Context, wf *schema.Workflow) (int64, error)
	GetWorkflow(ctx context.Context, id int64) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error)
	DeleteWorkflow(ctx context.Context, id int64) error

	// Compiled runtime schema cache
	PutRuntimeSchema(ctx context.Context, workflowID int64, rs *schema.RuntimeSchema) error
	GetRuntimeSchema(ctx context.Context, workflowID int64) (*CompiledSchemaRecord, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, workflowID int64, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
