package schema

// Event types recorded in the append-only event log. Editor events track
// authoring activity; session events track preview runs.
const (
	EventWorkflowSaved    = "workflow.saved"
	EventWorkflowDeleted  = "workflow.deleted"
	EventSchemaCompiled   = "schema.compiled"
	EventSchemaFailed     = "schema.failed"
	EventSessionStarted   = "session.started"
	EventStepSubmitted    = "session.step_submitted"
	EventStepRejected     = "session.step_rejected"
	EventStepBack         = "session.step_back"
	EventSessionFinished  = "session.finished"
	EventSessionAborted   = "session.aborted"
)

// RunStatus is the interpreter run lifecycle state.
type RunStatus string

const (
	RunStatusReady       RunStatus = "ready"
	RunStatusActive      RunStatus = "active"
	RunStatusFinished    RunStatus = "finished"
	RunStatusAborted     RunStatus = "aborted"
	RunStatusSchemaError RunStatus = "schema_error"
)
