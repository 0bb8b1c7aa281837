// Package logic hosts the boolean-logic and expression engines behind
// branching conditions and rule predicates. Conditions come in two shapes:
// a JSON object in the json-logic dialect (what the compiler emits) or a
// plain string evaluated by a named expression engine.
package logic

import (
	"context"
	"encoding/json"
	"strings"

	"intakeflow/pkg/schema"
)

// Engine evaluates expressions against an answer map.
// Three string-form implementations: Expr (default), CEL (conditions) and
// GoJQ (schema queries); JSON-form conditions go through JSONLogic.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry resolves engines by name. The zero value is unusable; build one
// with NewRegistry.
type Registry struct {
	engines map[string]Engine
	logic   *JSONLogicEngine
}

// NewRegistry wires up the full engine set. CEL environment construction can
// fail, so the constructor returns an error instead of panicking.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprEngine := NewExprEngine()
	jqEngine := NewGoJQEngine()
	logic := NewJSONLogicEngine()

	return &Registry{
		engines: map[string]Engine{
			celEngine.Name():  celEngine,
			exprEngine.Name(): exprEngine,
			jqEngine.Name():   jqEngine,
			logic.Name():      logic,
		},
		logic: logic,
	}, nil
}

// Get returns the engine registered under name, defaulting to expr when the
// name is empty or unknown.
func (r *Registry) Get(name string) Engine {
	if e, ok := r.engines[strings.ToLower(name)]; ok {
		return e
	}
	return r.engines["expr"]
}

// JSONLogic returns the json-logic engine used for compiled conditions.
func (r *Registry) JSONLogic() *JSONLogicEngine {
	return r.logic
}

// EvaluateCondition evaluates a raw condition against the answer map and
// reduces the result to a boolean. A JSON object or array is treated as a
// json-logic rule; a JSON string is handed to the engine named by dialect.
// Absent or null conditions evaluate to false.
func (r *Registry) EvaluateCondition(ctx context.Context, condition json.RawMessage, dialect string, answers map[string]any) (bool, error) {
	trimmed := strings.TrimSpace(string(condition))
	if trimmed == "" || trimmed == "null" {
		return false, nil
	}

	if trimmed[0] == '"' {
		var expression string
		if err := json.Unmarshal(condition, &expression); err != nil {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"malformed condition: %s", err.Error()).WithCause(err)
		}
		out, err := r.Get(dialect).Evaluate(ctx, expression, map[string]any{"answers": answers})
		if err != nil {
			return false, err
		}
		return Truthy(out), nil
	}

	out, err := r.logic.Apply(ctx, condition, answers)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Truthy reduces an evaluation result to a boolean with json-logic
// semantics: false, null, zero, the empty string and empty containers are
// falsy, everything else truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case float32:
		return val != 0
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case []any:
		return len(val) > 0
	case []string:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
