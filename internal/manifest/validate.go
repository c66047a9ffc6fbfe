package manifest

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/scheduler"
	"github.com/aristath/cadence/internal/tasks"
)

// Validate checks every task spec and the dependency graph. Channels
// referenced by tasks must be declared in the manifest or listed in known.
func (m *Manifest) Validate(known ...string) error {
	channels := make(map[string]bool, len(m.Channels)+len(known))
	for _, c := range known {
		channels[c] = true
	}
	for _, c := range m.Channels {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("channels: %w: empty channel name", ErrInvalidField)
		}
		channels[c] = true
	}

	names := make(map[string]bool, len(m.Tasks))
	for i, t := range m.Tasks {
		if t.Name == "" {
			return fmt.Errorf("tasks[%d]: %w: name", i, ErrMissingField)
		}
		if names[t.Name] {
			return fmt.Errorf("task %q: %w", t.Name, ErrDuplicateName)
		}
		names[t.Name] = true
		if err := t.validate(channels); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
	}

	for _, t := range m.Tasks {
		for _, dep := range t.DependsOn {
			if !names[dep] {
				return fmt.Errorf("task %q: %w %q", t.Name, ErrUnknownDependency, dep)
			}
		}
	}

	_, err := m.Sorted()
	return err
}

func (t TaskSpec) validate(channels map[string]bool) error {
	if !tasks.IsKind(t.Kind) {
		return fmt.Errorf("%w %q (want one of %s)", ErrUnknownKind, t.Kind, strings.Join(tasks.Kinds, ", "))
	}
	order, err := scheduler.ParseOrder(t.Order)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	if order.IsSystem() {
		return fmt.Errorf("order %s: %w", order, scheduler.ErrSystemOrder)
	}
	if _, err := events.ParsePriority(t.Priority); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, err)
	}

	needChannel := func() error {
		if t.Channel == "" {
			return fmt.Errorf("%w: channel", ErrMissingField)
		}
		if !channels[t.Channel] {
			return fmt.Errorf("%w %q", ErrUnknownChannel, t.Channel)
		}
		return nil
	}

	switch t.Kind {
	case tasks.KindEmit:
		if t.Every < 0 {
			return fmt.Errorf("%w: every must not be negative", ErrInvalidField)
		}
		return needChannel()
	case tasks.KindCron:
		if t.Schedule == "" {
			return fmt.Errorf("%w: schedule", ErrMissingField)
		}
		if _, err := tasks.ParseSchedule(t.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		return needChannel()
	case tasks.KindWatch:
		if t.Path == "" {
			return fmt.Errorf("%w: path", ErrMissingField)
		}
		return needChannel()
	case tasks.KindLog:
		if len(t.Channels) == 0 {
			return fmt.Errorf("%w: channels", ErrMissingField)
		}
		for _, c := range t.Channels {
			if !channels[c] {
				return fmt.Errorf("%w %q", ErrUnknownChannel, c)
			}
		}
	case tasks.KindCountdown:
		// Stopping the kernel is only allowed from the scheduling goroutine
		if t.Thread {
			return fmt.Errorf("%w: countdown cannot run on a thread", ErrInvalidField)
		}
		if t.Ticks < 1 {
			return fmt.Errorf("%w: ticks must be at least 1", ErrInvalidField)
		}
	}
	return nil
}

// Sorted returns the task specs with every task after its dependencies.
// Among tasks whose dependencies are satisfied, manifest order wins.
func (m *Manifest) Sorted() ([]TaskSpec, error) {
	index := make(map[string]int, len(m.Tasks))
	for i, t := range m.Tasks {
		index[t.Name] = i
	}

	// Edge (dep, task) means dep must come before task
	var edges []toposort.Edge
	for i, t := range m.Tasks {
		edges = append(edges, toposort.Edge{nil, i})
		for _, dep := range t.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("task %q: %w %q", t.Name, ErrUnknownDependency, dep)
			}
			edges = append(edges, toposort.Edge{j, i})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return nil, fmt.Errorf("%w: %v", scheduler.ErrCircularDependency, err)
	}

	// Stable pass: repeatedly take the first spec whose dependencies are placed
	placed := make([]bool, len(m.Tasks))
	out := make([]TaskSpec, 0, len(m.Tasks))
	for len(out) < len(m.Tasks) {
		progress := false
		for i, t := range m.Tasks {
			if placed[i] || !depsPlaced(t, index, placed) {
				continue
			}
			placed[i] = true
			out = append(out, t)
			progress = true
			break
		}
		if !progress {
			return nil, fmt.Errorf("%w: dependency cycle among manifest tasks", scheduler.ErrCircularDependency)
		}
	}
	return out, nil
}

func depsPlaced(t TaskSpec, index map[string]int, placed []bool) bool {
	for _, dep := range t.DependsOn {
		if !placed[index[dep]] {
			return false
		}
	}
	return true
}
