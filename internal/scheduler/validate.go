package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
)

// Validate checks the whole dependency graph, paused tasks included, and
// returns task ids in a valid topological order.
func (k *Kernel) Validate() ([]TaskID, error) {
	ids := make([]TaskID, 0, len(k.byID))
	for id := range k.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Verify all dependencies exist
	for _, id := range ids {
		e := k.byID[id]
		for _, dep := range e.deps {
			if _, ok := k.byID[dep]; !ok {
				return nil, fmt.Errorf("%w: task %q depends on unknown id %d", ErrMissingDependency, e.name, dep)
			}
		}
	}

	// Edge (dep, id) means dep must come before id
	var edges []toposort.Edge
	for _, id := range ids {
		e := k.byID[id]
		if len(e.deps) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, dep := range e.deps {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCircularDependency, err)
	}

	order := make([]TaskID, 0, len(sorted))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(TaskID))
		}
	}

	// Catches tasks that only appear on a cycle the sort did not report
	if len(order) != len(ids) {
		found := make(map[TaskID]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, k.byID[id].name)
			}
		}
		return nil, fmt.Errorf("%w: unordered tasks %s", ErrCircularDependency, strings.Join(missing, ", "))
	}

	return order, nil
}
