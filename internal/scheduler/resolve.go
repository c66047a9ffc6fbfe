package scheduler

import (
	"fmt"
	"sort"
)

type visitColor uint8

const (
	white visitColor = iota // not visited
	gray                    // on the current DFS path
	black                   // resolved
)

// resolve produces this cycle's update order: the active collection in order,
// with every task preceded by its active dependencies (themselves visited in
// order). The root task is visited last. Dependencies on paused tasks are
// treated as satisfied. On a cycle or a missing dependency it returns the
// prefix resolved so far along with the error.
func (k *Kernel) resolve() ([]*entry, error) {
	active := entries(k.active)
	color := make(map[TaskID]visitColor, len(active))
	order := make([]*entry, 0, len(active))

	var visit func(e *entry) error
	visit = func(e *entry) error {
		switch color[e.id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: task %q (id=%d) is part of a dependency cycle", ErrCircularDependency, e.name, e.id)
		}

		color[e.id] = gray
		deps := make([]*entry, 0, len(e.deps))
		for _, id := range e.deps {
			dep, ok := k.byID[id]
			if !ok {
				return fmt.Errorf("%w: task %q (id=%d) depends on unknown id %d", ErrMissingDependency, e.name, e.id, id)
			}
			if !dep.paused {
				deps = append(deps, dep)
			}
		}
		sort.Slice(deps, func(i, j int) bool { return bySortKey(deps[i].key(), deps[j].key()) < 0 })
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[e.id] = black
		order = append(order, e)
		return nil
	}

	var root *entry
	for _, e := range active {
		if e.id == k.rootID {
			root = e
			continue
		}
		if err := visit(e); err != nil {
			return order, err
		}
	}
	if root != nil {
		if err := visit(root); err != nil {
			return order, err
		}
	}
	return order, nil
}
