package schema

// WorkflowStatus is advisory metadata on a workflow; the engine does not
// interpret it beyond filtering (e.g. the scheduler recompiles active ones).
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// RouteMode selects how a step picks its successor.
type RouteMode string

const (
	// RouteLinear routes unconditionally to Next (empty Next = terminal step).
	RouteLinear RouteMode = "linear"
	// RouteByOption routes by the answered value of FieldKey: the value is
	// looked up in Mapping, falling back to DefaultNext when unmapped.
	RouteByOption RouteMode = "byOption"
)

// Routing is the routing descriptor attached to every editor-side step.
// Linear descriptors use Next only; byOption descriptors use FieldKey,
// Options, Mapping and DefaultNext.
type Routing struct {
	Mode        RouteMode         `json:"mode"`
	Next        string            `json:"next,omitempty"`
	FieldKey    string            `json:"fieldKey,omitempty"`
	Options     []string          `json:"options,omitempty"`
	Mapping     map[string]string `json:"mapping,omitempty"`
	DefaultNext string            `json:"defaultNext,omitempty"`
}

// Clone returns an independent copy with fresh Options and Mapping containers,
// so editing one step's routing never aliases another's.
func (r Routing) Clone() Routing {
	out := Routing{
		Mode:        r.Mode,
		Next:        r.Next,
		FieldKey:    r.FieldKey,
		DefaultNext: r.DefaultNext,
	}
	if r.Options != nil {
		out.Options = make([]string, len(r.Options))
		copy(out.Options, r.Options)
	}
	if r.Mapping != nil {
		out.Mapping = make(map[string]string, len(r.Mapping))
		for k, v := range r.Mapping {
			out.Mapping[k] = v
		}
	}
	return out
}

// Fallback returns the step's own successor: Linear.Next or
// ByOption.DefaultNext, whichever applies. Empty means terminal.
// Deletion rewire uses this for skip-over semantics.
func (r Routing) Fallback() string {
	switch r.Mode {
	case RouteLinear:
		return r.Next
	case RouteByOption:
		return r.DefaultNext
	}
	return ""
}

// Step is an editor-side workflow step. ID is UI-local (pattern "S<n>");
// StepID references the persisted library step backing it, nil until saved.
type Step struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	StepID  *int64  `json:"step_id,omitempty"`
	Routing Routing `json:"routing"`
}

// Clone returns a deep copy of the step (routing containers included).
func (s Step) Clone() Step {
	out := s
	out.Routing = s.Routing.Clone()
	if s.StepID != nil {
		id := *s.StepID
		out.StepID = &id
	}
	return out
}

// Workflow is the editor-side in-memory workflow graph.
type Workflow struct {
	ID          *int64         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Status      WorkflowStatus `json:"status"`
	Steps       []Step         `json:"steps"`
	StartStepID string         `json:"startStepId,omitempty"`
}

// CloneSteps deep-copies a step list (copy-on-write discipline: transforms
// clone first, then mutate the clone).
func CloneSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
