package schema

import "fmt"

// Issue is a single structural diagnostic with location context.
type Issue struct {
	StepID   string   `json:"step_id,omitempty"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// StepDiagnostics groups the diagnostics attributed to one step.
type StepDiagnostics struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationReport aggregates structural diagnostics for a workflow graph.
// Errors holds the flat "<stepName>: <message>" strings for display; ByStep
// is the per-step structure clients should consume programmatically.
type ValidationReport struct {
	Errors   []string                   `json:"errors"`
	Warnings []string                   `json:"warnings,omitempty"`
	ByStep   map[string]StepDiagnostics `json:"byStep"`
	Issues   []Issue                    `json:"issues,omitempty"`
}

// NewValidationReport returns an empty report with initialized containers.
func NewValidationReport() *ValidationReport {
	return &ValidationReport{
		Errors: []string{},
		ByStep: make(map[string]StepDiagnostics),
	}
}

// Valid reports whether the graph has no errors (warnings are acceptable).
func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records an error attributed to a step. stepName is used for the
// flat display string; stepID keys the per-step structure.
func (r *ValidationReport) AddError(stepID, stepName, code, message string) {
	d := r.ByStep[stepID]
	d.Errors = append(d.Errors, message)
	r.ByStep[stepID] = d
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", stepName, message))
	r.Issues = append(r.Issues, Issue{StepID: stepID, Code: code, Message: message, Severity: SeverityError})
}

// AddWarning records a non-blocking diagnostic attributed to a step.
func (r *ValidationReport) AddWarning(stepID, stepName, code, message string) {
	d := r.ByStep[stepID]
	d.Warnings = append(d.Warnings, message)
	r.ByStep[stepID] = d
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", stepName, message))
	r.Issues = append(r.Issues, Issue{StepID: stepID, Code: code, Message: message, Severity: SeverityWarn})
}

// ToError converts the report to a FlowError if invalid, nil if valid.
// A cycle diagnostic takes precedence as the error code so callers can
// tell a cyclic graph apart from other structural problems.
func (r *ValidationReport) ToError() error {
	if r.Valid() {
		return nil
	}
	code := ErrCodeValidation
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError && issue.Code == ErrCodeCycleDetected {
			code = ErrCodeCycleDetected
			break
		}
	}
	msg := r.Errors[0]
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}
	return NewError(code, msg).WithDetails(map[string]any{
		"error_count": len(r.Errors),
		"errors":      r.Errors,
		"by_step":     r.ByStep,
	})
}
