// Package graph validates subtask dependency graphs.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/sethgrantham/baton/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the subtask graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// Validate checks a composite task's dependency graph: every DependsOn
// reference must resolve within the composite and the graph must be
// acyclic. It returns the subtask IDs in a valid execution order.
//
// The scheduler does not detect cycles itself; decompositions are
// rejected here before the scheduling loop ever runs.
func Validate(composite *models.CompositeTask) ([]string, error) {
	byID := make(map[string]*models.SubTask, len(composite.Subtasks))
	for _, st := range composite.Subtasks {
		if _, dup := byID[st.ID]; dup {
			return nil, fmt.Errorf("duplicate subtask id %q", st.ID)
		}
		byID[st.ID] = st
	}

	for _, st := range composite.Subtasks {
		for _, depID := range st.DependsOn {
			if _, ok := byID[depID]; !ok {
				return nil, fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, st := range composite.Subtasks {
		if len(st.DependsOn) == 0 {
			// Edge from nil keeps dependency-free subtasks in the sort.
			edges = append(edges, toposort.Edge{nil, st.ID})
			continue
		}
		for _, depID := range st.DependsOn {
			edges = append(edges, toposort.Edge{depID, st.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycleDetected, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(composite.Subtasks) {
		var missing []string
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for _, st := range composite.Subtasks {
			if !found[st.ID] {
				missing = append(missing, st.ID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d subtasks: %s",
			len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Dependents returns the IDs of subtasks that depend on the given one,
// directly or transitively, in declaration order.
func Dependents(composite *models.CompositeTask, id string) []string {
	blocked := map[string]bool{id: true}
	for {
		grew := false
		for _, st := range composite.Subtasks {
			if blocked[st.ID] {
				continue
			}
			for _, depID := range st.DependsOn {
				if blocked[depID] {
					blocked[st.ID] = true
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
	}

	var out []string
	for _, st := range composite.Subtasks {
		if st.ID != id && blocked[st.ID] {
			out = append(out, st.ID)
		}
	}
	return out
}
