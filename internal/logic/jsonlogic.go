package logic

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/diegoholiveira/jsonlogic/v3"

	"intakeflow/pkg/schema"
)

// JSONLogicEngine evaluates json-logic rules, the condition dialect the
// schema compiler emits for byOption branching. Rules are plain JSON trees
// so there is nothing to compile or cache.
type JSONLogicEngine struct{}

// NewJSONLogicEngine creates a new json-logic engine.
func NewJSONLogicEngine() *JSONLogicEngine {
	return &JSONLogicEngine{}
}

// Name returns the engine identifier.
func (e *JSONLogicEngine) Name() string {
	return "jsonlogic"
}

// Evaluate parses expression as a JSON rule and applies it to the data map.
// Satisfies the Engine interface so string-typed conditions carrying inline
// JSON still resolve through the registry.
func (e *JSONLogicEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty json-logic rule")
	}
	return e.Apply(ctx, json.RawMessage(expression), data)
}

// Apply evaluates a raw json-logic rule against the answer map.
func (e *JSONLogicEngine) Apply(_ context.Context, rule json.RawMessage, data map[string]any) (any, error) {
	var parsed any
	dec := json.NewDecoder(bytes.NewReader(rule))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"json-logic parse error in %q: %s", string(rule), err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"rule": string(rule)})
	}

	if data == nil {
		data = map[string]any{}
	}

	out, err := jsonlogic.ApplyInterface(normalizeNumbers(parsed), normalizeNumbers(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"json-logic evaluation failed for %q: %s", string(rule), err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"rule": string(rule)})
	}
	return out, nil
}

// normalizeNumbers rewrites json.Number and integer values to float64, the
// number representation json-logic comparisons expect.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumbers(item)
		}
		return out
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*JSONLogicEngine)(nil)
