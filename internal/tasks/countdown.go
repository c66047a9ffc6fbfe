package tasks

import (
	"github.com/aristath/cadence/internal/scheduler"
)

// Countdown calls done once after a fixed number of updates and then idles.
// The engine uses it to bound a run: done stops the kernel.
type Countdown struct {
	scheduler.Base

	remaining int
	done      func()
}

// NewCountdown creates a countdown of n updates.
func NewCountdown(name string, n int, done func()) *Countdown {
	return &Countdown{
		Base:      scheduler.Base{TaskName: name},
		remaining: n,
		done:      done,
	}
}

func (c *Countdown) Update() error {
	if c.remaining <= 0 {
		return nil
	}
	c.remaining--
	if c.remaining == 0 && c.done != nil {
		c.done()
	}
	return nil
}

// Remaining returns the updates left before done fires.
func (c *Countdown) Remaining() int { return c.remaining }

// Noop is a task that does nothing. Manifests use it as a dependency anchor.
type Noop struct {
	scheduler.Base
}

// NewNoop creates a no-op task.
func NewNoop(name string) *Noop {
	return &Noop{Base: scheduler.Base{TaskName: name}}
}

func (n *Noop) Update() error { return nil }
