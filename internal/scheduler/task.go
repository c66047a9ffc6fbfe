package scheduler

// TaskID identifies a registered task. IDs are assigned by the kernel and never reused.
type TaskID uint32

// TaskType distinguishes kernel-owned tasks from application tasks.
type TaskType int

const (
	TaskUser   TaskType = iota // Application task
	TaskSystem                 // Privileged task (root, clock, event bus, journal)
)

func (t TaskType) String() string {
	if t == TaskSystem {
		return "system"
	}
	return "user"
}

// TaskState is the lifecycle state of a registered task.
type TaskState int

const (
	StateStopped TaskState = iota // Registered, not started (or start failed)
	StateRunning                  // Started and in rotation
	StatePaused                   // Suspended, held in the paused collection
)

func (s TaskState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Task is a unit of cooperative work. Each hook returns an error to signal
// failure; a failing Init rejects registration, a failing Start keeps the task
// out of rotation, a failing OnSuspend or OnResume aborts the transition.
// Update errors are logged and do not stop the task.
type Task interface {
	Name() string
	Init() error
	Start() error
	Update() error
	Stop() error
	OnSuspend() error
	OnResume() error
}

// Base supplies no-op hooks and a name. Embed it and implement Update.
type Base struct {
	TaskName string
}

func (b *Base) Name() string     { return b.TaskName }
func (b *Base) Init() error      { return nil }
func (b *Base) Start() error     { return nil }
func (b *Base) Stop() error      { return nil }
func (b *Base) OnSuspend() error { return nil }
func (b *Base) OnResume() error  { return nil }

type funcTask struct {
	Base
	update func() error
}

func (f *funcTask) Update() error { return f.update() }

// NewFunc wraps update as a task with no-op lifecycle hooks.
func NewFunc(name string, update func() error) Task {
	return &funcTask{Base: Base{TaskName: name}, update: update}
}

type rootTask struct{ Base }

func (rootTask) Update() error { return nil }

// RootTaskName is the name of the no-op system task the kernel registers on its first cycle.
const RootTaskName = "KernelRoot"

// TaskInfo is a point-in-time copy of a task's kernel-owned metadata.
type TaskInfo struct {
	ID             TaskID
	Name           string
	Order          Order
	Type           TaskType
	State          TaskState
	RunsOnThread   bool
	Dependencies   []TaskID
	PendingRemoval bool
	Task           Task
}
