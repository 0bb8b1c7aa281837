package routing

import (
	"fmt"
	"strings"

	"intakeflow/pkg/schema"
)

// Edge is a derived, read-only projection of one routing hop. It exists for
// visualization and reachability analysis and is never the authoritative
// routing state.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// BuildEdges derives the labeled edge list from the routing model. Linear
// routes emit a single unlabeled edge. ByOption routes group option values
// by their resolved target (mapping entry, falling back to defaultNext) and
// emit one edge per distinct target with a comma-joined label. Option values
// that resolve nowhere produce no edge. Parallel edges between the same
// source and target are merged, joining their labels.
func BuildEdges(steps []schema.Step) []Edge {
	var raw []Edge
	for _, s := range steps {
		r := s.Routing
		switch r.Mode {
		case schema.RouteLinear:
			if r.Next != "" {
				raw = append(raw, Edge{Source: s.ID, Target: r.Next})
			}
		case schema.RouteByOption:
			var order []string
			groups := map[string][]string{}
			for _, opt := range r.Options {
				target := r.Mapping[opt]
				if target == "" {
					target = r.DefaultNext
				}
				if target == "" {
					continue
				}
				if _, ok := groups[target]; !ok {
					order = append(order, target)
				}
				groups[target] = append(groups[target], opt)
			}
			for _, target := range order {
				raw = append(raw, Edge{
					Source: s.ID,
					Target: target,
					Label:  strings.Join(groups[target], ", "),
				})
			}
		}
	}

	var keys []string
	dedup := map[string]Edge{}
	for i, e := range raw {
		key := e.Source + "->" + e.Target
		prev, ok := dedup[key]
		if !ok {
			e.ID = fmt.Sprintf("e%d", i)
			dedup[key] = e
			keys = append(keys, key)
			continue
		}
		prev.Label = joinLabels(prev.Label, e.Label)
		dedup[key] = prev
	}

	out := make([]Edge, 0, len(keys))
	for _, key := range keys {
		out = append(out, dedup[key])
	}
	return out
}

func joinLabels(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + ", " + b
	}
}

// Levels assigns each step a breadth-first depth from the start step, a
// layout hint for rendering the graph in columns. Unreachable steps are
// appended as a final level in declaration order.
func Levels(wf *schema.Workflow) [][]string {
	if wf == nil || len(wf.Steps) == 0 {
		return nil
	}
	known := make(map[string]bool, len(wf.Steps))
	byID := make(map[string]schema.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		known[s.ID] = true
		byID[s.ID] = s
	}
	startID := wf.StartStepID
	if startID == "" || !known[startID] {
		startID = wf.Steps[0].ID
	}

	depth := map[string]int{startID: 0}
	queue := []string{startID}
	maxDepth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range successors(byID[id], known) {
			if _, seen := depth[succ]; seen {
				continue
			}
			depth[succ] = depth[id] + 1
			if depth[succ] > maxDepth {
				maxDepth = depth[succ]
			}
			queue = append(queue, succ)
		}
	}

	levels := make([][]string, maxDepth+1)
	var orphans []string
	for _, s := range wf.Steps {
		if d, ok := depth[s.ID]; ok {
			levels[d] = append(levels[d], s.ID)
		} else {
			orphans = append(orphans, s.ID)
		}
	}
	if len(orphans) > 0 {
		levels = append(levels, orphans)
	}
	return levels
}
