package interpreter

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"intakeflow/internal/logic"
	"intakeflow/internal/rules"
	"intakeflow/internal/store"
	"intakeflow/pkg/schema"
)

// Session is one interactive run over a compiled runtime schema. All
// methods are safe for concurrent use; a session serializes its own state.
type Session struct {
	mu sync.Mutex

	id        string
	schema    *schema.RuntimeSchema
	evaluator *rules.Evaluator
	logic     *logic.Registry
	fsm       *RunFSM
	appender  EventAppender
	lang      string

	status    schema.RunStatus
	currentID string
	history   []string
	answers   map[string]any
	errors    map[string]string
	warnings  map[string]string
}

// Option configures a new session.
type Option func(*Session)

// WithLanguage sets the language used for validation messages ("en" or
// "fr"). Default is "en".
func WithLanguage(lang string) Option {
	return func(s *Session) { s.lang = lang }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession builds a ready session over the given schema. A nil or empty
// schema puts the session directly in the schema_error terminal state.
func NewSession(rs *schema.RuntimeSchema, registry *logic.Registry, appender EventAppender, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New().String(),
		schema:    rs,
		evaluator: rules.NewEvaluator(registry),
		logic:     registry,
		fsm:       NewRunFSM(appender),
		appender:  appender,
		lang:      "en",
		status:    schema.RunStatusReady,
		answers:   make(map[string]any),
		errors:    make(map[string]string),
		warnings:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if rs == nil || len(rs.Steps) == 0 {
		s.status = schema.RunStatusSchemaError
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the current run status.
func (s *Session) Status() schema.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start transitions the session from ready to active and positions it on
// the first step.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schema.RunStatusSchemaError {
		return schema.NewError(schema.ErrCodeExecution, "session has no runnable schema")
	}
	if err := s.fsm.Transition(ctx, s.workflowID(), s.id, s.status, schema.RunStatusActive); err != nil {
		return err
	}
	s.status = schema.RunStatusActive
	s.currentID = s.schema.Steps[0].StepID
	return nil
}

// Current returns the step the session is positioned on, or nil when the
// run is not active.
func (s *Session) Current() *schema.CompiledStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != schema.RunStatusActive {
		return nil
	}
	step, _ := s.schema.FindStep(s.currentID)
	return step
}

// SetField records an answer and re-validates only the touched field with
// change-trigger rules. Submit-only rules do not run here.
func (s *Session) SetField(ctx context.Context, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.RunStatusActive {
		return
	}
	s.answers[key] = value

	step, _ := s.schema.FindStep(s.currentID)
	if step == nil {
		return
	}
	comp := s.findComponent(step, key)
	if comp == nil {
		return
	}
	res := s.evaluator.EvaluateField(ctx, comp, value, schema.TriggerChange, s.answers, s.lang)
	if res.Error != "" {
		s.errors[key] = res.Error
	} else {
		delete(s.errors, key)
	}
	if res.Warning != "" {
		s.warnings[key] = res.Warning
	} else {
		delete(s.warnings, key)
	}
}

// Next validates the current step with submit-trigger rules and, when
// clean, advances to the resolved successor. A validation failure keeps
// the session on the step with Errors populated and returns a
// VALIDATION_ERROR. Reaching a step with no successor finishes the run.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.RunStatusActive {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "session is %s, not active", s.status)
	}
	step, _ := s.schema.FindStep(s.currentID)
	if step == nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "current step %s missing from schema", s.currentID)
	}

	s.errors = make(map[string]string)
	s.warnings = make(map[string]string)
	for _, comp := range s.visibleInputs(step) {
		key := comp.StorageKey
		res := s.evaluator.EvaluateField(ctx, comp, s.answers[key], schema.TriggerSubmit, s.answers, s.lang)
		if res.Error != "" {
			s.errors[key] = res.Error
		}
		if res.Warning != "" {
			s.warnings[key] = res.Warning
		}
	}
	if len(s.errors) > 0 {
		s.emit(ctx, schema.EventStepRejected, step.StepID, map[string]any{"errors": s.errors})
		return schema.NewErrorf(schema.ErrCodeValidation, "step %s has %d invalid field(s)", step.StepID, len(s.errors)).
			WithStep(step.StepID)
	}

	s.emit(ctx, schema.EventStepSubmitted, step.StepID, nil)

	nextID, err := s.resolveSuccessor(ctx, step)
	if err != nil {
		return err
	}
	if nextID == "" {
		if err := s.fsm.Transition(ctx, s.workflowID(), s.id, s.status, schema.RunStatusFinished); err != nil {
			return err
		}
		s.status = schema.RunStatusFinished
		return nil
	}
	if nextID == s.currentID || contains(s.history, nextID) {
		return schema.NewErrorf(schema.ErrCodeExecution, "step %s already visited, refusing loop", nextID).
			WithStep(nextID)
	}
	if next, _ := s.schema.FindStep(nextID); next == nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "successor %s missing from schema", nextID).
			WithStep(step.StepID)
	}
	s.history = append(s.history, s.currentID)
	s.currentID = nextID
	return nil
}

// Back returns to the previous step without re-validating it. Field errors
// and warnings are cleared.
func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != schema.RunStatusActive {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "session is %s, not active", s.status)
	}
	if len(s.history) == 0 {
		return schema.NewError(schema.ErrCodeInvalidTransition, "already on the first step")
	}
	s.currentID = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.errors = make(map[string]string)
	s.warnings = make(map[string]string)
	s.emit(ctx, schema.EventStepBack, s.currentID, nil)
	return nil
}

// Abort terminates the run early.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fsm.Transition(ctx, s.workflowID(), s.id, s.status, schema.RunStatusAborted); err != nil {
		return err
	}
	s.status = schema.RunStatusAborted
	return nil
}

// Errors returns a copy of the current step's field errors, keyed by
// storage key.
func (s *Session) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.errors)
}

// Warnings returns a copy of the current step's field warnings.
func (s *Session) Warnings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.warnings)
}

// Snapshot returns the full answer document: every storage key the schema
// declares, recorded answers merged over defaults (nil, or an empty list
// for multi-value components).
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any)
	if s.schema == nil {
		return out
	}
	multi := s.multiValueKeys()
	for _, key := range s.schema.StorageKeys() {
		if v, ok := s.answers[key]; ok {
			out[key] = v
		} else if multi[key] {
			out[key] = []any{}
		} else {
			out[key] = nil
		}
	}
	return out
}

// --- successor resolution ---

// resolveSuccessor picks the next step: first truthy branching condition,
// else the default branch target, else the linear successor, else terminal.
func (s *Session) resolveSuccessor(ctx context.Context, step *schema.CompiledStep) (string, error) {
	for _, rule := range step.Branching {
		ok, err := s.logic.EvaluateCondition(ctx, rule.Condition, "", s.answers)
		if err != nil {
			// A broken branch condition falls through rather than
			// stranding the run.
			continue
		}
		if ok {
			return rule.NextStepID, nil
		}
	}
	if step.DefaultNextStepID != "" {
		return step.DefaultNextStepID, nil
	}
	return step.NextStepID, nil
}

// --- visibility ---

// visibleInputs collects the step's input components that are currently
// visible, including one level of reveal children under selected options.
func (s *Session) visibleInputs(step *schema.CompiledStep) []*schema.Component {
	var out []*schema.Component
	for i := range step.Components {
		comp := &step.Components[i]
		if !s.conditionsHold(comp.Conditions) {
			continue
		}
		if comp.IsInput() {
			out = append(out, comp)
		}
		for oi := range comp.Options {
			opt := &comp.Options[oi]
			if len(opt.Children) == 0 || !s.optionSelected(comp, opt) {
				continue
			}
			for ci := range opt.Children {
				child := &opt.Children[ci]
				if child.IsInput() && s.conditionsHold(child.Conditions) {
					out = append(out, child)
				}
			}
		}
	}
	return out
}

// findComponent locates a visible input by storage key on the given step.
func (s *Session) findComponent(step *schema.CompiledStep, key string) *schema.Component {
	for _, comp := range s.visibleInputs(step) {
		if comp.StorageKey == key {
			return comp
		}
	}
	return nil
}

func (s *Session) optionSelected(comp *schema.Component, opt *schema.Option) bool {
	answer, ok := s.answers[comp.StorageKey]
	if !ok || answer == nil {
		return false
	}
	if comp.IsMultiValue() {
		switch values := answer.(type) {
		case []any:
			for _, v := range values {
				if str, ok := v.(string); ok && str == opt.Value {
					return true
				}
			}
		case []string:
			for _, v := range values {
				if v == opt.Value {
					return true
				}
			}
		}
		return false
	}
	str, ok := answer.(string)
	return ok && str == opt.Value
}

// conditionsHold evaluates a visibility group: every condition in All must
// hold and, when Any is non-empty, at least one of Any must hold.
func (s *Session) conditionsHold(group *schema.ConditionGroup) bool {
	if group == nil {
		return true
	}
	for _, c := range group.All {
		if !s.conditionHolds(c) {
			return false
		}
	}
	if len(group.Any) > 0 {
		for _, c := range group.Any {
			if s.conditionHolds(c) {
				return true
			}
		}
		return false
	}
	return true
}

func (s *Session) conditionHolds(c schema.FieldCondition) bool {
	value, exists := s.answers[c.Ref]
	switch c.Op {
	case "exists":
		return !rules.IsEmpty(value)
	case "notExists":
		return rules.IsEmpty(value)
	case "equals":
		return exists && toString(value) == c.Value
	case "notEquals":
		return !exists || toString(value) != c.Value
	case ">", "<":
		left, lok := toNumber(value)
		right, rok := toNumber(c.Value)
		if !lok || !rok {
			return false
		}
		if c.Op == ">" {
			return left > right
		}
		return left < right
	}
	// An unknown or missing operator keeps the component visible, so its
	// validation still runs. Hiding on a typo would skip required checks.
	return true
}

// --- helpers ---

func (s *Session) workflowID() int64 {
	if s.schema == nil {
		return 0
	}
	return s.schema.Workflow.ID
}

func (s *Session) multiValueKeys() map[string]bool {
	multi := make(map[string]bool)
	mark := func(c *schema.Component) {
		if c.IsInput() && c.IsMultiValue() {
			multi[c.StorageKey] = true
		}
	}
	for si := range s.schema.Steps {
		for ci := range s.schema.Steps[si].Components {
			comp := &s.schema.Steps[si].Components[ci]
			mark(comp)
			for oi := range comp.Options {
				for chi := range comp.Options[oi].Children {
					mark(&comp.Options[oi].Children[chi])
				}
			}
		}
	}
	return multi
}

// emit writes a step-level event; append failures are swallowed so the
// preview keeps working without a log.
func (s *Session) emit(ctx context.Context, eventType, stepID string, payload map[string]any) {
	if s.appender == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	_ = s.appender.AppendEvent(ctx, &store.Event{
		WorkflowID: s.workflowID(),
		SessionID:  s.id,
		StepID:     stepID,
		Type:       eventType,
		Payload:    raw,
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
