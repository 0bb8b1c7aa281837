// Package rules implements the per-field validation engine: legacy spec
// migration, single-rule evaluation and the submit/change field pass.
package rules

import (
	"intakeflow/pkg/schema"
)

// MigrateSpec normalizes a validation spec into the canonical shape. Legacy
// flat fields (errorMessage, pattern, minLength) are folded into the rule
// list, and every rule gets its defaults filled. The function is pure and
// idempotent, so it is safe to call at both compile time and evaluation
// time without drift.
func MigrateSpec(spec *schema.ValidationSpec) *schema.ValidationSpec {
	if spec == nil {
		return nil
	}

	out := *spec
	out.Rules = make([]schema.Rule, len(spec.Rules))
	copy(out.Rules, spec.Rules)

	if out.RequiredMessage == nil && out.ErrorMessage != nil {
		msg := *out.ErrorMessage
		out.RequiredMessage = &msg
	}

	if out.Pattern != "" && !hasRuleType(out.Rules, schema.RulePattern) {
		out.Rules = append(out.Rules, schema.Rule{
			ID:      "pattern",
			Type:    schema.RulePattern,
			Pattern: out.Pattern,
			Trigger: []schema.Trigger{schema.TriggerSubmit},
			Message: cloneText(out.ErrorMessage),
		})
	}
	if out.MinLength != nil && !hasRuleType(out.Rules, schema.RuleLength) {
		minLen := *out.MinLength
		out.Rules = append(out.Rules, schema.Rule{
			ID:        "minLength",
			Type:      schema.RuleLength,
			MinLength: &minLen,
			Trigger:   []schema.Trigger{schema.TriggerSubmit},
			Message:   cloneText(out.ErrorMessage),
		})
	}

	for i := range out.Rules {
		r := &out.Rules[i]
		if r.Type == "" {
			r.Type = r.Kind
		}
		if len(r.Fields) == 0 {
			r.Fields = r.Keys
		}
		if len(r.Trigger) == 0 {
			r.Trigger = []schema.Trigger{schema.TriggerSubmit}
		}
		if r.Severity == "" {
			r.Severity = schema.SeverityError
		}
		if r.Block == nil {
			blocking := r.Severity == schema.SeverityError
			r.Block = &blocking
		}
	}

	return &out
}

func hasRuleType(rules []schema.Rule, t schema.RuleType) bool {
	for _, r := range rules {
		if r.Type == t || r.Kind == t {
			return true
		}
	}
	return false
}

func cloneText(t *schema.Text) *schema.Text {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
