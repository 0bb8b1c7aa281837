package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"intakeflow/pkg/schema"
)

// runtimeSchemaJSON is the JSON Schema the compiled document must satisfy
// before it is published. Embedded as a constant to avoid filesystem
// dependencies.
const runtimeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://intakeflow.dev/schemas/runtime.json",
  "type": "object",
  "required": ["schemaVersion", "generatedAt", "workflow", "steps", "counts"],
  "properties": {
    "schemaVersion": { "type": "integer", "minimum": 1 },
    "generatedAt": { "type": "string" },
    "workflow": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "id": { "type": "integer" },
        "name": { "type": "string" },
        "status": { "type": "string", "enum": ["draft", "active", "inactive"] }
      }
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "counts": {
      "type": "object",
      "required": ["steps", "components"],
      "properties": {
        "steps": { "type": "integer", "minimum": 0 },
        "components": { "type": "integer", "minimum": 0 }
      }
    }
  },
  "$defs": {
    "text": {
      "type": "object",
      "properties": {
        "en": { "type": "string" },
        "fr": { "type": "string" }
      }
    },
    "step": {
      "type": "object",
      "required": ["stepId", "title"],
      "properties": {
        "stepId": { "type": "string", "minLength": 1 },
        "title": { "$ref": "#/$defs/text" },
        "description": { "$ref": "#/$defs/text" },
        "components": {
          "type": "array",
          "items": { "$ref": "#/$defs/component" }
        },
        "nextStepId": { "type": "string", "minLength": 1 },
        "defaultNextStepId": { "type": "string", "minLength": 1 },
        "branching": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["condition", "nextStepId"],
            "properties": {
              "condition": {},
              "nextStepId": { "type": "string", "minLength": 1 }
            }
          }
        }
      }
    },
    "component": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "label": { "$ref": "#/$defs/text" },
        "storageKey": { "type": "string" },
        "required": { "type": "boolean" },
        "options": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["value"],
            "properties": {
              "value": { "type": "string" },
              "label": { "$ref": "#/$defs/text" },
              "children": {
                "type": "array",
                "items": { "$ref": "#/$defs/component" }
              }
            }
          }
        }
      }
    }
  }
}`

// SelfCheck validates a compiled document against the runtime schema
// contract. The compiler runs it before publishing so a malformed document
// never reaches the portal. Safe for concurrent use after construction.
type SelfCheck struct {
	compiled *jsonschema.Schema
}

// NewSelfCheck compiles the embedded runtime JSON Schema.
func NewSelfCheck() (*SelfCheck, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(runtimeSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal runtime schema: %w", err)
	}
	if err := c.AddResource("https://intakeflow.dev/schemas/runtime.json", doc); err != nil {
		return nil, fmt.Errorf("add runtime schema resource: %w", err)
	}
	compiled, err := c.Compile("https://intakeflow.dev/schemas/runtime.json")
	if err != nil {
		return nil, fmt.Errorf("compile runtime schema: %w", err)
	}
	return &SelfCheck{compiled: compiled}, nil
}

// Validate checks one compiled document.
func (s *SelfCheck) Validate(rs *schema.RuntimeSchema) error {
	if rs == nil {
		return schema.NewError(schema.ErrCodeValidation, "runtime schema is nil")
	}
	doc, err := toJSONValue(rs)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize runtime schema").WithCause(err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation,
		"runtime schema validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
