// Package clock provides the system clock task: a filtered frame duration,
// a frame counter, and timers that advance once per kernel cycle.
package clock

import (
	"sync"
	"time"

	"github.com/aristath/cadence/internal/scheduler"
)

// TaskName is the name the clock reports when registered as a task.
const TaskName = "SystemClock"

const (
	defaultWindow    = 7
	defaultFrameTime = 33 * time.Millisecond
	maxFrameDuration = 200 * time.Millisecond
)

// Clock measures the time between kernel cycles. Frame durations longer than
// 200ms (a stall, a breakpoint) are replaced by the previous sample so a
// single hiccup does not distort the filtered value.
type Clock struct {
	scheduler.Base

	mu          sync.RWMutex
	now         func() time.Time
	start       time.Time
	last        time.Time
	elapsed     time.Duration
	frameTime   time.Duration
	frameNumber uint64
	window      int
	history     []time.Duration
	fixedRate   float64
	timers      []*Timer
}

// Option configures a Clock.
type Option func(*Clock)

// WithTimeSource replaces time.Now.
func WithTimeSource(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithFrameWindow sets how many frames are averaged, and the duration assumed
// before any frame was measured.
func WithFrameWindow(frames int, initial time.Duration) Option {
	return func(c *Clock) { c.setWindow(frames, initial) }
}

// WithFixedFrameRate makes every frame last exactly 1/fps, regardless of wall time.
func WithFixedFrameRate(fps float64) Option {
	return func(c *Clock) { c.fixedRate = fps }
}

// New creates a Clock.
func New(opts ...Option) *Clock {
	c := &Clock{
		Base: scheduler.Base{TaskName: TaskName},
		now:  time.Now,
	}
	c.setWindow(defaultWindow, defaultFrameTime)
	for _, opt := range opts {
		opt(c)
	}
	c.frameTime = c.filtered()
	return c
}

func (c *Clock) setWindow(frames int, initial time.Duration) {
	if frames < 1 {
		frames = 1
	}
	c.window = frames
	c.history = []time.Duration{initial}
}

// Start resets the time base.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = c.now()
	c.last = c.start
	c.elapsed = 0
	c.frameNumber = 0
	return nil
}

// Update measures one frame and advances every timer.
func (c *Clock) Update() error {
	c.mu.Lock()
	frame := c.exactFrame()
	c.history = append(c.history, frame)
	if len(c.history) > c.window {
		c.history = c.history[len(c.history)-c.window:]
	}
	c.frameTime = c.filtered()
	c.elapsed = c.last.Sub(c.start)
	c.frameNumber++
	frameTime := c.frameTime
	timers := make([]*Timer, len(c.timers))
	copy(timers, c.timers)
	c.mu.Unlock()

	for _, t := range timers {
		t.advance(frameTime)
	}
	return nil
}

// Stop drops every timer.
func (c *Clock) Stop() error {
	c.mu.Lock()
	c.timers = nil
	c.mu.Unlock()
	return nil
}

func (c *Clock) exactFrame() time.Duration {
	if c.fixedRate > 0 {
		c.last = c.last.Add(c.fixedFrame())
		return c.fixedFrame()
	}

	now := c.now()
	d := now.Sub(c.last)
	switch {
	case d > maxFrameDuration:
		d = c.history[len(c.history)-1]
	case d < 0:
		d = 0
	}
	c.last = now
	return d
}

func (c *Clock) fixedFrame() time.Duration {
	return time.Duration(float64(time.Second) / c.fixedRate)
}

func (c *Clock) filtered() time.Duration {
	if c.fixedRate > 0 {
		return c.fixedFrame()
	}
	var total time.Duration
	for _, d := range c.history {
		total += d
	}
	return total / time.Duration(len(c.history))
}

// Time returns the time elapsed since Start, as of the last update.
func (c *Clock) Time() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.elapsed
}

// FrameInterval returns the filtered frame duration.
func (c *Clock) FrameInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frameTime
}

// FrameRate returns frames per second derived from the filtered frame duration.
func (c *Clock) FrameRate() float64 {
	d := c.FrameInterval()
	if d <= 0 {
		return 0
	}
	return float64(time.Second) / float64(d)
}

// FrameNumber returns how many frames have been measured since Start.
func (c *Clock) FrameNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frameNumber
}

// NewTimer creates a timer driven by this clock.
func (c *Clock) NewTimer() *Timer {
	t := &Timer{scale: 1}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// RemoveTimer detaches t. It reports whether t was attached.
func (c *Clock) RemoveTimer(t *Timer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.timers {
		if existing == t {
			c.timers = append(c.timers[:i:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}
