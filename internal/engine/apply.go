package engine

import (
	"errors"
	"fmt"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/manifest"
	"github.com/aristath/cadence/internal/scheduler"
	"github.com/aristath/cadence/internal/tasks"
)

// Apply validates m, creates its channels, and registers its tasks in
// dependency order. Watch tasks always run on their own worker. On error,
// tasks registered before the failure stay registered.
func (e *Engine) Apply(m *manifest.Manifest) error {
	if err := m.Validate(e.bus.Channels()...); err != nil {
		return err
	}
	specs, err := m.Sorted()
	if err != nil {
		return err
	}

	for _, name := range m.Channels {
		if _, err := e.bus.CreateChannel(name); err != nil && !errors.Is(err, events.ErrChannelExists) {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, spec := range specs {
		if _, ok := e.tasks[spec.Name]; ok {
			return fmt.Errorf("task %q: %w", spec.Name, manifest.ErrDuplicateName)
		}
	}

	for _, spec := range specs {
		if err := e.register(spec); err != nil {
			return fmt.Errorf("task %q: %w", spec.Name, err)
		}
	}
	return nil
}

func (e *Engine) register(spec manifest.TaskSpec) error {
	task, err := e.build(spec)
	if err != nil {
		return err
	}
	order, err := scheduler.ParseOrder(spec.Order)
	if err != nil {
		return err
	}

	deps := make([]scheduler.TaskID, 0, len(spec.DependsOn))
	for _, name := range spec.DependsOn {
		id, ok := e.tasks[name]
		if !ok {
			return fmt.Errorf("%w %q", manifest.ErrUnknownDependency, name)
		}
		deps = append(deps, id)
	}

	thread := spec.Thread || spec.Kind == tasks.KindWatch
	id, err := e.kernel.AddTask(task, order, scheduler.TaskUser, thread, scheduler.DependsOn(deps...))
	if err != nil {
		return err
	}
	e.tasks[spec.Name] = id
	e.log.DebugCtx("task registered", map[string]any{
		"task":    spec.Name,
		"kind":    spec.Kind,
		"task_id": id,
		"order":   order.String(),
		"thread":  thread,
	})
	return nil
}

// build creates the task for a validated spec.
func (e *Engine) build(spec manifest.TaskSpec) (scheduler.Task, error) {
	prio, err := events.ParsePriority(spec.Priority)
	if err != nil {
		return nil, err
	}
	log := e.log.WithComponent("tasks")

	switch spec.Kind {
	case tasks.KindEmit:
		return tasks.NewEmitter(spec.Name, e.bus, spec.Channel, spec.Message, spec.Every, prio), nil
	case tasks.KindCron:
		return tasks.NewCronEmitter(spec.Name, e.bus, spec.Channel, spec.Message, spec.Schedule, prio)
	case tasks.KindWatch:
		return tasks.NewFileWatcher(spec.Name, e.bus, spec.Channel, spec.Path, prio, log), nil
	case tasks.KindLog:
		return tasks.NewEventLogger(spec.Name, e.bus, spec.Channels, log), nil
	case tasks.KindCountdown:
		// Runs inside a cycle, where the engine lock is already held
		return tasks.NewCountdown(spec.Name, spec.Ticks, e.kernel.StopExecution), nil
	case tasks.KindNoop:
		return tasks.NewNoop(spec.Name), nil
	default:
		return nil, fmt.Errorf("%w %q", manifest.ErrUnknownKind, spec.Kind)
	}
}

// TaskID returns the kernel id of a task registered from a manifest.
func (e *Engine) TaskID(name string) (scheduler.TaskID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.tasks[name]
	return id, ok
}

// Suspend pauses a manifest task by name.
func (e *Engine) Suspend(name string) error {
	return e.byName(name, func(k *scheduler.Kernel, id scheduler.TaskID) error { return k.SuspendTask(id) })
}

// Resume resumes a manifest task by name.
func (e *Engine) Resume(name string) error {
	return e.byName(name, func(k *scheduler.Kernel, id scheduler.TaskID) error { return k.ResumeTask(id) })
}

// Remove removes a manifest task by name at the end of the next cycle.
func (e *Engine) Remove(name string) error {
	return e.byName(name, func(k *scheduler.Kernel, id scheduler.TaskID) error {
		if err := k.RemoveTask(id); err != nil {
			return err
		}
		delete(e.tasks, name)
		return nil
	})
}

func (e *Engine) byName(name string, fn func(*scheduler.Kernel, scheduler.TaskID) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.tasks[name]
	if !ok {
		return fmt.Errorf("%w: name %q", scheduler.ErrTaskNotFound, name)
	}
	return fn(e.kernel, id)
}
