// Package engine wires a Kernel, its event Bus, the system Clock, and the
// lifecycle Journal together, applies workload manifests, and drives the
// kernel from a paced loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/cadence/internal/clock"
	"github.com/aristath/cadence/internal/config"
	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/persistence"
	"github.com/aristath/cadence/internal/scheduler"
)

var (
	ErrRunning = errors.New("engine is already running")
	ErrClosed  = errors.New("engine is closed")
)

// Engine owns one kernel and the system tasks around it. The kernel is not
// safe for concurrent use, so every access goes through the engine's lock.
type Engine struct {
	cfg config.Config
	log *logging.Logger

	mu      sync.Mutex
	kernel  *scheduler.Kernel
	bus     *events.Bus
	clock   *clock.Clock
	journal *persistence.Journal
	store   persistence.Store
	ownsDB  bool
	tasks   map[string]scheduler.TaskID
	closed  bool

	running atomic.Bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	log   *logging.Logger
	store persistence.Store
	now   func() time.Time
}

// WithLogger sets the logger. Components log under child loggers.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStore journals into store instead of opening the configured path.
// The caller keeps ownership of store.
func WithStore(s persistence.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTimeSource replaces time.Now for the clock and the kernel.
func WithTimeSource(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an engine from cfg: the bus and its pre-created channels, the
// kernel, and the system tasks (clock, bus, and journal when enabled).
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Component("engine")
	}

	e := &Engine{
		cfg:   cfg,
		log:   o.log,
		tasks: make(map[string]scheduler.TaskID),
	}

	e.bus = events.NewBus(
		events.WithLogger(o.log.WithComponent("events")),
		events.WithSystemChannel(cfg.Events.SystemChannel),
	)
	for _, name := range cfg.Events.Channels {
		if _, err := e.bus.CreateChannel(name); err != nil && !errors.Is(err, events.ErrChannelExists) {
			return nil, err
		}
	}

	e.kernel = scheduler.New(e.kernelOptions(o)...)

	var clockOpts []clock.Option
	if o.now != nil {
		clockOpts = append(clockOpts, clock.WithTimeSource(o.now))
	}
	e.clock = clock.New(clockOpts...)

	if cfg.Journal.Enabled {
		store := o.store
		if store == nil {
			s, err := openStore(ctx, cfg.Journal.Path, o.log)
			if err != nil {
				return nil, err
			}
			store = s
			e.ownsDB = true
		}
		e.store = store
		e.journal = persistence.NewJournal(store, persistence.WithJournalLogger(o.log))
		if err := e.bus.Connect(e.bus.SystemChannel(), e.journal); err != nil {
			e.closeStore()
			return nil, err
		}
	}

	if err := e.registerSystemTasks(); err != nil {
		e.closeStore()
		return nil, err
	}
	return e, nil
}

func (e *Engine) kernelOptions(o options) []scheduler.Option {
	kc := e.cfg.Kernel
	opts := []scheduler.Option{
		scheduler.WithLogger(o.log.WithComponent("kernel")),
		scheduler.WithNotifier(e.bus),
		scheduler.WithSendEvents(kc.SendEvents),
	}
	if kc.FaultThreshold > 0 {
		opts = append(opts, scheduler.WithFaultThreshold(kc.FaultThreshold, kc.FaultCooldown))
	}
	if kc.StartRetry.Enabled {
		opts = append(opts, scheduler.WithStartRetry(scheduler.RetryPolicy{
			InitialInterval: kc.StartRetry.InitialInterval,
			MaxInterval:     kc.StartRetry.MaxInterval,
			Multiplier:      kc.StartRetry.Multiplier,
			MaxAttempts:     kc.StartRetry.MaxAttempts,
		}))
	}
	if o.now != nil {
		opts = append(opts, scheduler.WithClock(o.now))
	}
	return opts
}

func (e *Engine) registerSystemTasks() error {
	return e.kernel.WithSystemAccess(func() error {
		if _, err := e.kernel.AddTask(e.clock, scheduler.OrderSysFirst, scheduler.TaskSystem, false); err != nil {
			return fmt.Errorf("registering clock: %w", err)
		}
		if _, err := e.kernel.AddTask(e.bus, scheduler.OrderSysSecond, scheduler.TaskSystem, false); err != nil {
			return fmt.Errorf("registering event bus: %w", err)
		}
		if e.journal != nil {
			if _, err := e.kernel.AddTask(e.journal, scheduler.OrderSysThird, scheduler.TaskSystem, false); err != nil {
				return fmt.Errorf("registering journal: %w", err)
			}
		}
		return nil
	})
}

// Run drives the kernel until it drains or ctx is cancelled. With a tick
// interval configured, cycles are paced by a ticker; otherwise they run back
// to back. Cancelling ctx stops every task and keeps cycling until the
// kernel is empty, then returns ctx's error. Structural cycle errors are
// logged and do not end the loop.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	if e.isClosed() {
		return ErrClosed
	}

	var tick <-chan time.Time
	if e.cfg.Kernel.TickInterval > 0 {
		ticker := time.NewTicker(e.cfg.Kernel.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	e.log.InfoCtx("engine started", map[string]any{
		"tick_interval": e.cfg.Kernel.TickInterval.String(),
		"journal":       e.journal != nil,
	})

	stopping := false
	for {
		if !stopping && ctx.Err() != nil {
			e.Stop()
			stopping = true
		}

		if err := e.Step(); err != nil {
			e.log.Warnf("cycle error: %v", err)
		}
		if e.Finished() {
			break
		}

		if tick != nil && !stopping {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
	}

	if err := e.kernel.Wait(); err != nil {
		e.log.Err(err).Msg("thread worker stopped with error")
	}
	e.log.InfoCtx("engine stopped", map[string]any{"ticks": e.Ticks()})
	return ctx.Err()
}

// Step runs one kernel cycle.
func (e *Engine) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.kernel.ActiveCount() == 0 {
		return nil
	}
	return e.kernel.OneTick()
}

// Finished reports whether the kernel has drained.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kernel.ActiveCount() == 0
}

// Stop marks every task for removal; the next cycle tears them down.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kernel.StopExecution()
}

// Drain stops every task and cycles until the kernel is empty, then waits
// for thread workers to exit. Used when the caller drove cycles with Step.
func (e *Engine) Drain() {
	e.Stop()
	for !e.Finished() {
		if err := e.Step(); err != nil {
			e.log.Warnf("cycle error: %v", err)
		}
	}
	if err := e.kernel.Wait(); err != nil {
		e.log.Err(err).Msg("thread worker stopped with error")
	}
}

// Do runs fn with exclusive access to the kernel, between cycles.
func (e *Engine) Do(fn func(k *scheduler.Kernel) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.kernel)
}

// Snapshot lists every registered task.
func (e *Engine) Snapshot() []scheduler.TaskInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kernel.Snapshot()
}

// Ticks reports how many cycles have completed.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kernel.Ticks()
}

// Bus returns the event bus.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Clock returns the system clock.
func (e *Engine) Clock() *clock.Clock { return e.clock }

// Journal returns the lifecycle journal, or nil when journaling is disabled.
func (e *Engine) Journal() *persistence.Journal { return e.journal }

// Close flushes the journal, ends its session, and releases the store when
// the engine opened it. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.closeStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeStore() error {
	if !e.ownsDB || e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
