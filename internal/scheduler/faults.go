package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// safeCall runs fn and converts a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// callHook runs one hook of e inside the per-task fault boundary.
func callHook(e *entry, hook string, fn func() error) error {
	if err := safeCall(fn); err != nil {
		return &HookError{TaskID: e.id, Task: e.name, Hook: hook, Err: err}
	}
	return nil
}

// newBreaker builds the update breaker for one task. It opens after threshold
// consecutive update failures and lets a single probe through after cooldown.
func (k *Kernel) newBreaker(e *entry) *gobreaker.CircuitBreaker {
	threshold := k.faultThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("%s#%d", e.name, e.id),
		MaxRequests: 1,
		Timeout:     k.faultCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			k.log.WarnCtx("task fault breaker changed state", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

// runUpdate calls e's Update through the fault boundary, and through the
// task's breaker when fault isolation is enabled. Safe to call from a worker goroutine.
func (k *Kernel) runUpdate(e *entry) {
	var err error
	if e.breaker != nil {
		_, err = e.breaker.Execute(func() (interface{}, error) {
			return nil, callHook(e, "update", e.task.Update)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return
		}
	} else {
		err = callHook(e, "update", e.task.Update)
	}

	if err != nil {
		k.log.WarnCtx("task update failed", map[string]any{
			"task_id": e.id,
			"task":    e.name,
			"error":   err.Error(),
		})
	}
}

// RetryPolicy schedules automatic start retries for tasks whose Start hook failed.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int // 0 retries forever
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// scheduleRetry records a failed start and picks the next attempt time.
func (k *Kernel) scheduleRetry(e *entry) {
	if k.retry == nil || e.retryExhausted {
		return
	}
	if e.backoff == nil {
		e.backoff = k.retry.newBackOff()
	}
	if k.retry.MaxAttempts > 0 && e.retries >= k.retry.MaxAttempts {
		e.retryExhausted = true
		k.log.WarnCtx("giving up on task start", map[string]any{
			"task_id":  e.id,
			"task":     e.name,
			"attempts": e.retries + 1,
		})
		return
	}
	e.retries++
	e.retryAt = k.now().Add(e.backoff.NextBackOff())
}

func (k *Kernel) retryDue(e *entry) bool {
	return e.backoff != nil && !e.retryExhausted && !k.now().Before(e.retryAt)
}

func (e *entry) resetRetry() {
	e.backoff = nil
	e.retries = 0
	e.retryExhausted = false
	e.retryAt = time.Time{}
}
