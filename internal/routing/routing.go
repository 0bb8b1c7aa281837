// Package routing implements the in-memory workflow graph model: step ID
// allocation, deletion with rewire, structural validation and the derived
// edge projection used for layout.
package routing

import (
	"fmt"
	"regexp"
	"strconv"

	"intakeflow/pkg/schema"
)

var stepIDPattern = regexp.MustCompile(`^S(\d+)$`)

// NextStepID scans existing ids matching "S<n>" and returns "S<max+1>".
// IDs are never reused after deletion, so a dangling reference can never
// silently re-attach to a newly created step.
func NextStepID(steps []schema.Step) string {
	max := 0
	for _, s := range steps {
		m := stepIDPattern.FindStringSubmatch(s.ID)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("S%d", max+1)
}

// RemoveStepAndRewire removes the step with deletedID and repairs every
// dangling reference with skip-over semantics: predecessors of the deleted
// step are reconnected to wherever it would have gone (its own Fallback).
// A byOption mapping entry pointing at the deleted step is redirected to the
// fallback, or removed entirely when there is none; the orphaned option
// value then resurfaces through Validate as an unmapped-option diagnostic.
//
// Pure function: the input list is left untouched and an independently
// cloned list is returned. An unknown deletedID returns a plain clone.
func RemoveStepAndRewire(steps []schema.Step, deletedID string) []schema.Step {
	cloned := schema.CloneSteps(steps)

	var deleted *schema.Step
	for i := range cloned {
		if cloned[i].ID == deletedID {
			deleted = &cloned[i]
			break
		}
	}
	if deleted == nil {
		return cloned
	}
	fallback := deleted.Routing.Fallback()

	for i := range cloned {
		r := &cloned[i].Routing
		switch r.Mode {
		case schema.RouteLinear:
			if r.Next == deletedID {
				r.Next = fallback
			}
		case schema.RouteByOption:
			if r.DefaultNext == deletedID {
				r.DefaultNext = fallback
			}
			for opt, target := range r.Mapping {
				if target != deletedID {
					continue
				}
				if fallback != "" {
					r.Mapping[opt] = fallback
				} else {
					delete(r.Mapping, opt)
				}
			}
		}
	}

	out := cloned[:0:0]
	for _, s := range cloned {
		if s.ID != deletedID {
			out = append(out, s)
		}
	}
	return out
}
