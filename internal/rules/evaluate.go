package rules

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"intakeflow/internal/logic"
	"intakeflow/pkg/schema"
)

// RuleResult is the outcome of evaluating one rule against a field.
type RuleResult struct {
	Failed  bool
	Message string
}

// FieldResult is the outcome of a full field pass. At most one error is
// retained (the first blocking one); warnings keep the last recorded string.
type FieldResult struct {
	Error   string
	Warning string
}

// Failed reports whether the field carries a blocking error.
func (r FieldResult) Failed() bool {
	return r.Error != ""
}

var requiredFallback = schema.Text{
	EN: "This field is required",
	FR: "Ce champ est obligatoire",
}

var genericMessages = map[schema.RuleType]schema.Text{
	schema.RulePredicate:  {EN: "This value is not valid", FR: "Cette valeur n'est pas valide"},
	schema.RuleAtLeastOne: {EN: "Provide at least one of these fields", FR: "Remplissez au moins un de ces champs"},
	schema.RuleRange:      {EN: "Value is out of range", FR: "La valeur est hors limites"},
	schema.RuleLength:     {EN: "Length is out of range", FR: "La longueur est hors limites"},
	schema.RulePattern:    {EN: "The format is not valid", FR: "Le format n'est pas valide"},
	schema.RuleCompare:    {EN: "Values do not match", FR: "Les valeurs ne correspondent pas"},
}

// Evaluator runs validation rules against field values and the answer map.
type Evaluator struct {
	logic *logic.Registry
}

// NewEvaluator creates an evaluator backed by the given engine registry.
func NewEvaluator(registry *logic.Registry) *Evaluator {
	return &Evaluator{logic: registry}
}

// EvaluateRule evaluates one rule. Any evaluation error (malformed rule,
// bad regex, failing condition engine) degrades to "rule does not fail";
// a broken rule must never block the form.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule schema.Rule, value any, answers map[string]any, lang string) RuleResult {
	failed := false
	switch rule.Type {
	case schema.RulePredicate:
		failed = e.predicateFails(ctx, rule, answers)
	case schema.RuleAtLeastOne:
		failed = atLeastOneFails(rule, answers)
	case schema.RuleRange:
		failed = rangeFails(rule, value)
	case schema.RuleLength:
		failed = lengthFails(rule, value)
	case schema.RulePattern:
		failed = patternFails(rule, value)
	case schema.RuleCompare:
		failed = compareFails(rule, answers)
	default:
		return RuleResult{}
	}

	if !failed {
		return RuleResult{}
	}
	return RuleResult{Failed: true, Message: ruleMessage(rule, lang)}
}

// EvaluateField runs the field's migrated rule list for one trigger. At
// submit, a required empty field short-circuits to the required message
// without evaluating any rules. A failed error-severity rule stops the pass
// unless the rule opts out of blocking; warnings never stop it.
func (e *Evaluator) EvaluateField(ctx context.Context, comp *schema.Component, value any, trigger schema.Trigger, answers map[string]any, lang string) FieldResult {
	var result FieldResult
	if comp == nil {
		return result
	}
	spec := MigrateSpec(comp.Validation)

	required := comp.Required || (spec != nil && spec.Required)
	if trigger == schema.TriggerSubmit && required && IsEmpty(value) {
		msg := requiredFallback
		if spec != nil && spec.RequiredMessage != nil {
			msg = *spec.RequiredMessage
		}
		result.Error = msg.Resolve(lang)
		return result
	}
	if spec == nil {
		return result
	}

	// Rules may address the field by storage key or by component id.
	data := make(map[string]any, len(answers)+2)
	for k, v := range answers {
		data[k] = v
	}
	if comp.StorageKey != "" {
		data[comp.StorageKey] = value
	}
	if comp.ID != "" {
		data[comp.ID] = value
	}

	for _, rule := range spec.Rules {
		if !triggersOn(rule, trigger) {
			continue
		}
		res := e.EvaluateRule(ctx, rule, value, data, lang)
		if !res.Failed {
			continue
		}
		if rule.Severity == schema.SeverityWarn {
			result.Warning = res.Message
			continue
		}
		if result.Error == "" {
			result.Error = res.Message
		}
		if rule.Blocking() {
			break
		}
	}
	return result
}

func triggersOn(rule schema.Rule, trigger schema.Trigger) bool {
	for _, t := range rule.Trigger {
		if t == trigger {
			return true
		}
	}
	return false
}

func ruleMessage(rule schema.Rule, lang string) string {
	if rule.Message != nil && !rule.Message.IsZero() {
		return rule.Message.Resolve(lang)
	}
	if generic, ok := genericMessages[rule.Type]; ok {
		return generic.Resolve(lang)
	}
	return genericMessages[schema.RulePredicate].Resolve(lang)
}

// predicateFails is truthy-when-failed: the rule's condition describes the
// invalid state.
func (e *Evaluator) predicateFails(ctx context.Context, rule schema.Rule, answers map[string]any) bool {
	dialect := rule.Engine
	if dialect == "" {
		dialect = "cel"
	}
	failed, err := e.logic.EvaluateCondition(ctx, rule.When, dialect, answers)
	if err != nil {
		return false
	}
	return failed
}

func atLeastOneFails(rule schema.Rule, answers map[string]any) bool {
	if len(rule.Fields) == 0 {
		return false
	}
	for _, key := range rule.Fields {
		if !IsEmpty(answers[key]) {
			return false
		}
	}
	return true
}

func rangeFails(rule schema.Rule, value any) bool {
	if IsEmpty(value) {
		return false
	}
	n, ok := toNumber(value)
	if !ok {
		return false
	}
	if rule.Min != nil && n < *rule.Min {
		return true
	}
	if rule.Max != nil && n > *rule.Max {
		return true
	}
	return false
}

func lengthFails(rule schema.Rule, value any) bool {
	s, ok := value.(string)
	if !ok || s == "" {
		return false
	}
	length := len([]rune(s))
	if rule.MinLength != nil && length < *rule.MinLength {
		return true
	}
	if rule.MaxLength != nil && length > *rule.MaxLength {
		return true
	}
	return false
}

func patternFails(rule schema.Rule, value any) bool {
	s, ok := value.(string)
	if !ok || s == "" {
		return false
	}
	re, err := compilePattern(rule.Pattern, rule.Flags)
	if err != nil {
		return false
	}
	return !re.MatchString(s)
}

// compilePattern translates the ECMAScript-style flags authors write (i, m,
// s) into inline RE2 flags; unsupported flags (g, u, y) are ignored.
func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	var inline string
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline += string(f)
		}
	}
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}
	return regexp.Compile(pattern)
}

// compareFails applies assert semantics: the rule states a comparison that
// must hold, so the field fails when the comparison is false. An unknown
// operator never fails.
func compareFails(rule schema.Rule, answers map[string]any) bool {
	left := resolveOperand(rule.Left, answers)
	right := resolveOperand(rule.Right, answers)

	switch rule.Op {
	case "==":
		return !looseEqual(left, right)
	case "!=":
		return looseEqual(left, right)
	case ">", ">=", "<", "<=":
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return false
		}
		switch rule.Op {
		case ">":
			return !(ln > rn)
		case ">=":
			return !(ln >= rn)
		case "<":
			return !(ln < rn)
		default:
			return !(ln <= rn)
		}
	default:
		return false
	}
}

// resolveOperand substitutes operands naming an existing answer key with
// that answer's value; everything else is a literal.
func resolveOperand(operand string, answers map[string]any) any {
	if v, ok := answers[operand]; ok {
		return v
	}
	return operand
}

func looseEqual(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return toString(a) == toString(b)
}

// IsEmpty reports whether a value counts as unanswered: nil, a blank
// string, or an empty collection.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
