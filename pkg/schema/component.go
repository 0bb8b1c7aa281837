package schema

import "encoding/json"

// Component is a single form component within a step. StorageKey is the
// durable contract with the answer map; it never changes once answers
// reference it. Presentational types (paragraph, inset-text, warning-text,
// summary-list) carry no storage key and collect no answers.
type Component struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Label      Text            `json:"label"`
	Hint       *Text           `json:"hint,omitempty"`
	Body       *Text           `json:"text,omitempty"`
	StorageKey string          `json:"storageKey,omitempty"`
	Required   bool            `json:"required,omitempty"`
	Validation *ValidationSpec `json:"validation,omitempty"`
	Options    []Option        `json:"options,omitempty"`
	InputType  string          `json:"inputType,omitempty"`
	Mask       string          `json:"mask,omitempty"`
	Normalize  string          `json:"normalize,omitempty"`
	Conditions *ConditionGroup `json:"conditions,omitempty"`
}

// IsInput reports whether the component collects an answer.
func (c *Component) IsInput() bool {
	switch c.Type {
	case "paragraph", "inset-text", "warning-text", "summary-list":
		return false
	}
	return c.StorageKey != ""
}

// IsMultiValue reports whether the component's answer is a value list
// (checkbox groups). The interpreter uses this for snapshot defaults.
func (c *Component) IsMultiValue() bool {
	return c.Type == "checkboxes" || c.Type == "checkbox"
}

// Option is one choice of a radio/checkbox/select component. Children are
// reveal components shown only while the option is selected; the compiler
// embeds them one level deep.
type Option struct {
	ID         string          `json:"id,omitempty"`
	Label      Text            `json:"label"`
	Value      string          `json:"value"`
	Hint       *Text           `json:"hint,omitempty"`
	Children   []Component     `json:"children,omitempty"`
	Conditions *ConditionGroup `json:"conditions,omitempty"`

	// ConditionalChildID is the authoring-side reference to a sibling
	// component that should be revealed under this option. The compiler
	// resolves it into Children and strips it from the published schema.
	ConditionalChildID string `json:"conditionalChildId,omitempty"`
}

// ConditionGroup gates component/option visibility. All conditions in All
// must hold and at least one in Any (when non-empty) must hold.
type ConditionGroup struct {
	All []FieldCondition `json:"all,omitempty"`
	Any []FieldCondition `json:"any,omitempty"`
}

// FieldCondition is a single visibility predicate over the answer map.
// Supported ops: equals, notEquals, exists, notExists, ">", "<".
type FieldCondition struct {
	Ref   string `json:"ref"`
	Op    string `json:"op"`
	Value string `json:"value,omitempty"`
}

// Trigger scopes when a rule runs.
type Trigger string

const (
	TriggerSubmit Trigger = "submit"
	TriggerChange Trigger = "change"
)

// Severity of a failed rule. Errors block step submission (unless the rule
// sets block=false); warnings never do.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// RuleType enumerates the validation rule kinds.
type RuleType string

const (
	RulePredicate  RuleType = "predicate"
	RuleAtLeastOne RuleType = "atLeastOne"
	RuleRange      RuleType = "range"
	RuleLength     RuleType = "length"
	RulePattern    RuleType = "pattern"
	RuleCompare    RuleType = "compare"
)

// ValidationSpec is a component's validation descriptor. The flat Pattern/
// MinLength/ErrorMessage fields are the legacy shape; rules.MigrateSpec
// folds them into canonical Rules before evaluation.
type ValidationSpec struct {
	Required        bool   `json:"required,omitempty"`
	RequiredMessage *Text  `json:"requiredMessage,omitempty"`
	Rules           []Rule `json:"rules,omitempty"`

	// Legacy flat fields.
	ErrorMessage *Text  `json:"errorMessage,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	MinLength    *int   `json:"minLength,omitempty"`
}

// Rule is one validation rule. Type-specific fields are populated per Type;
// Kind and Keys are legacy aliases for Type and Fields.
type Rule struct {
	ID       string    `json:"id,omitempty"`
	Type     RuleType  `json:"type,omitempty"`
	Kind     RuleType  `json:"kind,omitempty"`
	Trigger  []Trigger `json:"trigger,omitempty"`
	Severity Severity  `json:"severity,omitempty"`
	Block    *bool     `json:"block,omitempty"`
	Message  *Text     `json:"message,omitempty"`

	// predicate: a boolean-logic condition over the answer map. Object form
	// is json-logic; string form is an expression in the dialect named by
	// Engine ("cel" or "expr", default "cel").
	When   json.RawMessage `json:"when,omitempty"`
	Engine string          `json:"engine,omitempty"`

	// atLeastOne
	Fields []string `json:"fields,omitempty"`
	Keys   []string `json:"keys,omitempty"`

	// range
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// length
	MinLength *int `json:"minLength,omitempty"`
	MaxLength *int `json:"maxLength,omitempty"`

	// pattern
	Pattern string `json:"pattern,omitempty"`
	Flags   string `json:"flags,omitempty"`

	// compare: operands naming an existing answer key are substituted with
	// that answer's value, others are literals.
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
	Op    string `json:"op,omitempty"`
}

// Blocking reports whether a failed rule blocks further rule evaluation.
func (r Rule) Blocking() bool {
	if r.Block != nil {
		return *r.Block
	}
	return r.Severity == SeverityError
}
