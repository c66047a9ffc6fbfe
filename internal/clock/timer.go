package clock

import (
	"sync"
	"time"
)

// Timer accumulates scaled clock frames. A paused timer ignores frames.
type Timer struct {
	mu        sync.Mutex
	elapsed   time.Duration
	frameTime time.Duration
	scale     float64
	paused    bool
}

func (t *Timer) advance(frame time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.frameTime = 0
		return
	}
	t.frameTime = time.Duration(float64(frame) * t.scale)
	t.elapsed += t.frameTime
}

// Elapsed returns the accumulated time.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// FrameInterval returns the scaled duration of the last frame.
func (t *Timer) FrameInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameTime
}

// SetScale changes how fast the timer runs relative to the clock.
func (t *Timer) SetScale(scale float64) {
	t.mu.Lock()
	t.scale = scale
	t.mu.Unlock()
}

// SetPaused pauses or resumes the timer.
func (t *Timer) SetPaused(paused bool) {
	t.mu.Lock()
	t.paused = paused
	t.mu.Unlock()
}

// Reset sets the accumulated time back to zero.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.elapsed = 0
	t.frameTime = 0
	t.mu.Unlock()
}
