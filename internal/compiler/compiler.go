// Package compiler turns an authored workflow into the versioned runtime
// schema the interpreter and the intake portal consume. Compilation is a
// pure projection of the workflow graph plus the library components it
// references; the output is regenerated wholesale on every source change.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"intakeflow/internal/library"
	"intakeflow/internal/routing"
	"intakeflow/internal/rules"
	"intakeflow/pkg/schema"
)

// Component ids that authoring templates ship as placeholders; never usable
// as storage keys.
var placeholderNames = map[string]bool{
	"example-radio": true,
	"first-name":    true,
	"last-name":     true,
	"input":         true,
	"text-input":    true,
	"field":         true,
	"checkboxes":    true,
	"radio":         true,
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Compiler builds runtime schemas from workflows.
type Compiler struct {
	library library.Provider
}

// New creates a compiler backed by the given step library.
func New(provider library.Provider) *Compiler {
	return &Compiler{library: provider}
}

// Compile validates the workflow graph and emits its runtime schema. A
// structurally invalid graph fails with the validation report attached; a
// missing library step fails with COMPILE_ERROR. Steps are ordered breadth
// first from the start step, with unreachable steps appended in declaration
// order so nothing authored is silently lost.
func (c *Compiler) Compile(ctx context.Context, wf *schema.Workflow) (*schema.RuntimeSchema, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeCompile, "workflow is nil")
	}

	if report := routing.Validate(wf); !report.Valid() {
		return nil, report.ToError()
	}

	slugs := buildSlugMap(wf.Steps)
	order := compileOrder(wf)

	out := &schema.RuntimeSchema{
		SchemaVersion: schema.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Workflow: schema.WorkflowMeta{
			Name:   wf.Name,
			Status: wf.Status,
		},
	}
	if wf.ID != nil {
		out.Workflow.ID = *wf.ID
	}

	stepsByID := make(map[string]schema.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		stepsByID[s.ID] = s
	}

	componentCount := 0
	for _, stepID := range order {
		step := stepsByID[stepID]
		compiled, err := c.compileStep(ctx, step, slugs)
		if err != nil {
			return nil, err
		}
		componentCount += len(compiled.Components)
		out.Steps = append(out.Steps, *compiled)
	}

	out.Counts = schema.SchemaCounts{
		Steps:      len(out.Steps),
		Components: componentCount,
	}
	return out, nil
}

func (c *Compiler) compileStep(ctx context.Context, step schema.Step, slugs map[string]string) (*schema.CompiledStep, error) {
	out := &schema.CompiledStep{
		StepID: slugs[step.ID],
		Title:  schema.NewText(step.Name),
	}

	switch step.Routing.Mode {
	case schema.RouteLinear:
		if slug, ok := slugs[step.Routing.Next]; ok {
			out.NextStepID = slug
		}
	case schema.RouteByOption:
		for _, opt := range step.Routing.Options {
			target, ok := slugs[step.Routing.Mapping[opt]]
			if !ok {
				continue
			}
			cond, err := json.Marshal(map[string]any{
				"==": []any{map[string]any{"var": step.Routing.FieldKey}, opt},
			})
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeCompile,
					"marshal branch condition: %s", err.Error()).WithStep(step.ID).WithCause(err)
			}
			out.Branching = append(out.Branching, schema.BranchRule{
				Condition:  cond,
				NextStepID: target,
			})
		}
		if slug, ok := slugs[step.Routing.DefaultNext]; ok {
			out.DefaultNextStepID = slug
		}
	}

	components, err := c.stepComponents(ctx, step)
	if err != nil {
		return nil, err
	}
	out.Components = components
	return out, nil
}

// stepComponents loads the backing library step, assigns ids and storage
// keys, migrates validation specs and embeds conditional reveal children.
// A workflow step without a backing library step compiles to an empty
// component list.
func (c *Compiler) stepComponents(ctx context.Context, step schema.Step) ([]schema.Component, error) {
	if step.StepID == nil {
		return []schema.Component{}, nil
	}
	detail, err := c.library.GetStep(ctx, *step.StepID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCompile,
			"load library step %d: %s", *step.StepID, err.Error()).
			WithStep(step.ID).WithCause(err)
	}

	routeField := ""
	if step.Routing.Mode == schema.RouteByOption {
		routeField = strings.TrimSpace(step.Routing.FieldKey)
	}

	usedIDs := map[string]bool{}
	// Conditional child references use authoring-time identifiers, which id
	// and storage key derivation may rewrite. Index both the original and
	// the final identifiers.
	authoringIndex := map[string]int{}
	components := make([]schema.Component, 0, len(detail.Components))
	for i, src := range detail.Components {
		comp := src
		comp.Options = append([]schema.Option(nil), src.Options...)
		comp.Validation = rules.MigrateSpec(src.Validation)

		key := storageKey(&comp, routeField, i)
		comp.ID = uniqueID(firstNonEmpty(key, comp.ID, labelSlug(&comp, i)), comp.Type, i, usedIDs)
		if isInputType(comp.Type) {
			comp.StorageKey = key
		}

		// The route field key belongs to exactly one choice component per
		// step; later choice components keep their own keys.
		if routeField != "" && comp.StorageKey == routeField {
			routeField = ""
		}

		idx := len(components)
		for _, alias := range []string{src.ID, src.StorageKey, comp.ID, comp.StorageKey} {
			if alias != "" {
				if _, ok := authoringIndex[alias]; !ok {
					authoringIndex[alias] = idx
				}
			}
		}
		components = append(components, comp)
	}

	return embedConditionalChildren(components, authoringIndex), nil
}

// storageKey resolves a component's durable answer key. Preference order:
// the routing field key (choice components only), the authored storage key,
// the authored component id unless it is a template placeholder, then a
// slug of the English label.
func storageKey(comp *schema.Component, routeField string, index int) string {
	if !isInputType(comp.Type) {
		return ""
	}
	if routeField != "" && isChoiceType(comp.Type) {
		return routeField
	}
	if comp.StorageKey != "" {
		return comp.StorageKey
	}
	if id := strings.TrimSpace(comp.ID); id != "" && !placeholderNames[strings.ToLower(id)] {
		return id
	}
	return labelSlug(comp, index)
}

func labelSlug(comp *schema.Component, index int) string {
	if slug := slugify(comp.Label.EN); slug != "" {
		return slug
	}
	t := comp.Type
	if t == "" {
		t = "field"
	}
	return fmt.Sprintf("%s-%d", t, index+1)
}

func slugify(s string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}

// uniqueID appends a numeric suffix until the candidate is unused within
// the step.
func uniqueID(base, compType string, index int, used map[string]bool) string {
	if base == "" {
		t := compType
		if t == "" {
			t = "field"
		}
		base = fmt.Sprintf("%s-%d", t, index+1)
	}
	candidate := base
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	used[candidate] = true
	return candidate
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isInputType(t string) bool {
	switch t {
	case "paragraph", "inset-text", "warning-text", "summary-list":
		return false
	}
	return true
}

func isChoiceType(t string) bool {
	switch t {
	case "radio", "radios", "select", "checkbox", "checkboxes":
		return true
	}
	return false
}

// embedConditionalChildren resolves option ConditionalChildID references
// into nested option children, one level deep. The referenced component is
// removed from the top level; each component can be consumed by at most one
// option, and self references are ignored.
func embedConditionalChildren(components []schema.Component, byID map[string]int) []schema.Component {
	consumed := map[int]bool{}
	for pIdx := range components {
		parent := &components[pIdx]
		if !isChoiceType(parent.Type) {
			continue
		}
		for oIdx := range parent.Options {
			opt := &parent.Options[oIdx]
			ref := strings.TrimSpace(opt.ConditionalChildID)
			if ref == "" {
				continue
			}
			childIdx, ok := byID[ref]
			if !ok || childIdx == pIdx || consumed[childIdx] {
				opt.ConditionalChildID = ""
				continue
			}
			opt.Children = append(opt.Children, components[childIdx])
			consumed[childIdx] = true
			opt.ConditionalChildID = ""
		}
	}

	if len(consumed) == 0 {
		return components
	}
	out := make([]schema.Component, 0, len(components)-len(consumed))
	for i, comp := range components {
		if !consumed[i] {
			out = append(out, comp)
		}
	}
	return out
}

// buildSlugMap derives a stable slug per step from its name, deduplicating
// repeats with a counter suffix in declaration order.
func buildSlugMap(steps []schema.Step) map[string]string {
	counts := map[string]int{}
	slugs := make(map[string]string, len(steps))
	for _, s := range steps {
		base := slugify(s.Name)
		if base == "" {
			base = "step"
		}
		counts[base]++
		if counts[base] == 1 {
			slugs[s.ID] = base
		} else {
			slugs[s.ID] = fmt.Sprintf("%s-%d", base, counts[base])
		}
	}
	return slugs
}

// compileOrder walks the graph breadth first from the start step, then
// appends unreached steps in declaration order.
func compileOrder(wf *schema.Workflow) []string {
	known := make(map[string]bool, len(wf.Steps))
	byID := make(map[string]schema.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		known[s.ID] = true
		byID[s.ID] = s
	}

	startID := wf.StartStepID
	if startID == "" || !known[startID] {
		if len(wf.Steps) == 0 {
			return nil
		}
		startID = wf.Steps[0].ID
	}

	var order []string
	seen := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, succ := range stepSuccessors(byID[id], known) {
			if !seen[succ] {
				seen[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	for _, s := range wf.Steps {
		if !seen[s.ID] {
			order = append(order, s.ID)
		}
	}
	return order
}

func stepSuccessors(s schema.Step, known map[string]bool) []string {
	var out []string
	add := func(id string) {
		if id != "" && known[id] {
			out = append(out, id)
		}
	}
	switch s.Routing.Mode {
	case schema.RouteLinear:
		add(s.Routing.Next)
	case schema.RouteByOption:
		for _, opt := range s.Routing.Options {
			add(s.Routing.Mapping[opt])
		}
		add(s.Routing.DefaultNext)
	}
	return out
}
