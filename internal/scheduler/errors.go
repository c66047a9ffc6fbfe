package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrNilTask            = errors.New("nil task")
	ErrTaskNotFound       = errors.New("task not found")
	ErrDuplicateTask      = errors.New("task already registered")
	ErrNoRights           = errors.New("system task access denied")
	ErrSystemOrder        = fmt.Errorf("%w: order reserved for system tasks", ErrNoRights)
	ErrInvalidState       = errors.New("invalid task state")
	ErrCircularDependency = errors.New("circular dependency")
	ErrMissingDependency  = errors.New("missing dependency")
)

// HookError reports a failed lifecycle hook.
type HookError struct {
	TaskID TaskID
	Task   string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("task %q (id=%d) %s: %v", e.Task, e.TaskID, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking hook.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
