package scheduler

import (
	"time"

	"github.com/aristath/cadence/internal/events"
)

// TaskEventKind names a lifecycle transition.
type TaskEventKind int

const (
	TaskStarted TaskEventKind = iota + 1
	TaskStopped
	TaskSuspended
	TaskResumed
)

func (k TaskEventKind) String() string {
	switch k {
	case TaskStarted:
		return "started"
	case TaskStopped:
		return "stopped"
	case TaskSuspended:
		return "suspended"
	case TaskResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Event type constants for lifecycle events.
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskStopped   = "task.stopped"
	EventTypeTaskSuspended = "task.suspended"
	EventTypeTaskResumed   = "task.resumed"
)

// TaskEvent is emitted on the system channel after a successful transition.
// It is always delivered immediately.
type TaskEvent struct {
	Kind      TaskEventKind
	ID        TaskID
	Name      string
	Type      TaskType
	Tick      uint64
	Timestamp time.Time
}

func (e TaskEvent) EventType() string {
	return "task." + e.Kind.String()
}

func (e TaskEvent) Priority() events.Priority { return events.PriorityImmediate }
