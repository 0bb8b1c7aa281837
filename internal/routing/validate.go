package routing

import (
	"fmt"
	"sort"

	"intakeflow/pkg/schema"
)

// Diagnostic codes attached to routing validation issues.
const (
	CodeDanglingNext    = "DANGLING_NEXT"
	CodeDanglingMapping = "DANGLING_MAPPING"
	CodeDanglingDefault = "DANGLING_DEFAULT"
	CodeUnmappedOption  = "UNMAPPED_OPTION"
	CodeMissingFieldKey = "MISSING_FIELD_KEY"
	CodeDuplicateStepID = "DUPLICATE_STEP_ID"
	CodeCycleDetected   = "CYCLE_DETECTED"
	CodeUnreachableStep = "UNREACHABLE_STEP"
	CodeMissingStart    = "MISSING_START"
)

// Validate checks the structural integrity of a workflow's routing graph.
// Dangling references, unmapped option values without a default, duplicate
// step ids and cycles are errors; steps unreachable from the start step are
// reported as warnings. The returned report is always non-nil.
func Validate(wf *schema.Workflow) *schema.ValidationReport {
	report := schema.NewValidationReport()
	if wf == nil || len(wf.Steps) == 0 {
		return report
	}

	known := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		if known[s.ID] {
			report.AddError(s.ID, s.Name, CodeDuplicateStepID,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		known[s.ID] = true
	}

	startID := wf.StartStepID
	if startID == "" {
		startID = wf.Steps[0].ID
	}
	if !known[startID] {
		report.AddError(startID, startID, CodeMissingStart,
			fmt.Sprintf("start step %q does not exist", startID))
	}

	for _, s := range wf.Steps {
		r := s.Routing
		switch r.Mode {
		case schema.RouteLinear:
			if r.Next != "" && !known[r.Next] {
				report.AddError(s.ID, s.Name, CodeDanglingNext,
					fmt.Sprintf("next step %q does not exist", r.Next))
			}
		case schema.RouteByOption:
			if r.FieldKey == "" {
				report.AddError(s.ID, s.Name, CodeMissingFieldKey,
					"byOption routing requires a field key")
			}
			if r.DefaultNext != "" && !known[r.DefaultNext] {
				report.AddError(s.ID, s.Name, CodeDanglingDefault,
					fmt.Sprintf("default next step %q does not exist", r.DefaultNext))
			}
			for _, opt := range sortedKeys(r.Mapping) {
				target := r.Mapping[opt]
				if target != "" && !known[target] {
					report.AddError(s.ID, s.Name, CodeDanglingMapping,
						fmt.Sprintf("option %q routes to missing step %q", opt, target))
				}
			}
			if r.DefaultNext == "" {
				for _, opt := range r.Options {
					if _, ok := r.Mapping[opt]; !ok {
						report.AddError(s.ID, s.Name, CodeUnmappedOption,
							fmt.Sprintf("option %q has no route and no default is set", opt))
					}
				}
			}
		}
	}

	if cycle := detectCycle(wf.Steps); len(cycle) > 0 {
		first := findStep(wf.Steps, cycle[0])
		report.AddError(cycle[0], stepName(first, cycle[0]), CodeCycleDetected,
			fmt.Sprintf("routing cycle: %s", joinCycle(cycle)))
	}

	if known[startID] {
		reachable := reachableFrom(wf.Steps, startID)
		for _, s := range wf.Steps {
			if !reachable[s.ID] {
				report.AddWarning(s.ID, s.Name, CodeUnreachableStep,
					fmt.Sprintf("step %q is unreachable from the start step", s.ID))
			}
		}
	}

	return report
}

// successors returns every distinct step id a step can route to, skipping
// references that do not resolve to a known step.
func successors(s schema.Step, known map[string]bool) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] || !known[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	switch s.Routing.Mode {
	case schema.RouteLinear:
		add(s.Routing.Next)
	case schema.RouteByOption:
		for _, opt := range sortedKeys(s.Routing.Mapping) {
			add(s.Routing.Mapping[opt])
		}
		add(s.Routing.DefaultNext)
	}
	return out
}

// detectCycle runs Kahn's algorithm over the resolved routing edges and, if
// any steps survive the peel, walks forward from one of them until an id
// repeats to report a concrete cycle path.
func detectCycle(steps []schema.Step) []string {
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		known[s.ID] = true
	}

	indegree := make(map[string]int, len(steps))
	adj := make(map[string][]string, len(steps))
	for _, s := range steps {
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
		for _, succ := range successors(s, known) {
			adj[s.ID] = append(adj[s.ID], succ)
			indegree[succ]++
		}
	}

	var queue []string
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, succ := range adj[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if processed == len(steps) {
		return nil
	}

	// Every remaining step sits on or leads into a cycle. Walk forward from
	// the first remaining step in declaration order until an id repeats.
	var entry string
	for _, s := range steps {
		if indegree[s.ID] > 0 {
			entry = s.ID
			break
		}
	}
	visited := map[string]int{}
	var path []string
	cur := entry
	for {
		if pos, ok := visited[cur]; ok {
			return path[pos:]
		}
		visited[cur] = len(path)
		path = append(path, cur)
		next := adj[cur]
		if len(next) == 0 {
			return path
		}
		cur = ""
		for _, succ := range next {
			if indegree[succ] > 0 {
				cur = succ
				break
			}
		}
		if cur == "" {
			return path
		}
	}
}

func reachableFrom(steps []schema.Step, startID string) map[string]bool {
	known := make(map[string]bool, len(steps))
	byID := make(map[string]schema.Step, len(steps))
	for _, s := range steps {
		known[s.ID] = true
		byID[s.ID] = s
	}
	reached := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range successors(byID[id], known) {
			if !reached[succ] {
				reached[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return reached
}

func findStep(steps []schema.Step, id string) *schema.Step {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
	}
	return nil
}

func stepName(s *schema.Step, fallback string) string {
	if s != nil && s.Name != "" {
		return s.Name
	}
	return fallback
}

func joinCycle(cycle []string) string {
	out := ""
	for _, id := range cycle {
		out += id + " -> "
	}
	return out + cycle[0]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
