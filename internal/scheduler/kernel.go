package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
	"github.com/cenkalti/backoff/v4"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Notifier receives kernel lifecycle events. *events.Bus satisfies it.
type Notifier interface {
	EmitSystem(e events.Event) error
}

// entry is the kernel-owned record of one registered task.
type entry struct {
	task     Task
	name     string
	id       TaskID
	seq      uint64
	order    Order
	typ      TaskType
	state    TaskState
	deps     []TaskID
	onThread bool
	paused   bool // held in the paused collection

	startAttempted bool
	pendingRemoval bool
	orderChanged   bool
	newOrder       Order

	worker  *worker
	breaker *gobreaker.CircuitBreaker

	backoff        *backoff.ExponentialBackOff
	retries        int
	retryAt        time.Time
	retryExhausted bool
}

func (e *entry) key() sortKey { return sortKey{order: e.order, seq: e.seq} }

func (e *entry) info() TaskInfo {
	deps := make([]TaskID, len(e.deps))
	copy(deps, e.deps)
	return TaskInfo{
		ID:             e.id,
		Name:           e.name,
		Order:          e.order,
		Type:           e.typ,
		State:          e.state,
		RunsOnThread:   e.onThread,
		Dependencies:   deps,
		PendingRemoval: e.pendingRemoval,
		Task:           e.task,
	}
}

// sortKey orders a collection by order value, then by registration sequence.
type sortKey struct {
	order Order
	seq   uint64
}

func bySortKey(a, b interface{}) int {
	ka, kb := a.(sortKey), b.(sortKey)
	switch {
	case ka.order < kb.order:
		return -1
	case ka.order > kb.order:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	}
	return 0
}

// Kernel is a cooperative, dependency-aware task scheduler. Every call to
// OneTick starts newly registered tasks, updates the running ones in
// dependency order, then tears down removed tasks.
//
// A Kernel is not safe for concurrent use. Tasks may call back into it from
// their hooks, but only on the goroutine driving OneTick.
type Kernel struct {
	log *logging.Logger

	active *redblacktree.Tree // sortKey -> *entry
	paused *redblacktree.Tree // sortKey -> *entry
	byID   map[TaskID]*entry

	lastID  TaskID
	seq     uint64
	rootID  TaskID
	cycling bool
	halting bool // StopExecution called, no task added since
	ticks   uint64
	access  int

	notifier   Notifier
	sendEvents bool

	faultThreshold uint32
	faultCooldown  time.Duration
	retry          *RetryPolicy

	now     func() time.Time
	workers *errgroup.Group
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(l *logging.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithNotifier sets where lifecycle events are emitted.
func WithNotifier(n Notifier) Option {
	return func(k *Kernel) { k.notifier = n }
}

// WithSendEvents toggles lifecycle event emission. Enabled by default.
func WithSendEvents(enabled bool) Option {
	return func(k *Kernel) { k.sendEvents = enabled }
}

// WithFaultThreshold isolates tasks whose Update fails threshold times in a
// row: their updates are skipped for cooldown, then probed once.
func WithFaultThreshold(threshold uint32, cooldown time.Duration) Option {
	return func(k *Kernel) {
		k.faultThreshold = threshold
		k.faultCooldown = cooldown
	}
}

// WithStartRetry retries failed starts on an exponential schedule.
func WithStartRetry(p RetryPolicy) Option {
	return func(k *Kernel) { k.retry = &p }
}

// WithClock replaces the time source used for start retries.
func WithClock(now func() time.Time) Option {
	return func(k *Kernel) { k.now = now }
}

// New creates an empty Kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		active:     redblacktree.NewWith(bySortKey),
		paused:     redblacktree.NewWith(bySortKey),
		byID:       make(map[TaskID]*entry),
		workers:    new(errgroup.Group),
		sendEvents: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.log == nil {
		k.log = logging.Component("kernel")
	}
	return k
}

// TaskOption configures a task at registration.
type TaskOption func(*taskOptions)

type taskOptions struct {
	deps []TaskID
}

// DependsOn makes the new task run after each of ids in every cycle.
func DependsOn(ids ...TaskID) TaskOption {
	return func(o *taskOptions) { o.deps = append(o.deps, ids...) }
}

// AddTask registers t and runs its Init hook. The task is started on the next
// cycle. Registering a system task requires the privilege window.
func (k *Kernel) AddTask(t Task, order Order, typ TaskType, runsOnThread bool, opts ...TaskOption) (TaskID, error) {
	if t == nil {
		return 0, ErrNilTask
	}
	name := t.Name()
	if name == "" {
		return 0, fmt.Errorf("%w: task name must not be empty", ErrInvalidState)
	}
	if typ == TaskSystem && !k.privileged() {
		return 0, fmt.Errorf("%w: registering system task %q", ErrNoRights, name)
	}
	if typ == TaskUser && order.IsSystem() {
		return 0, fmt.Errorf("%w: task %q order %d", ErrSystemOrder, name, order)
	}

	for _, e := range k.byID {
		if e.name == name {
			return 0, fmt.Errorf("%w: name %q (id=%d)", ErrDuplicateTask, name, e.id)
		}
		if sameTask(e.task, t) {
			return 0, fmt.Errorf("%w: %q is already registered as id %d", ErrDuplicateTask, name, e.id)
		}
	}

	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, dep := range o.deps {
		if _, ok := k.byID[dep]; !ok {
			return 0, fmt.Errorf("%w: dependency id %d of %q", ErrTaskNotFound, dep, name)
		}
	}

	e := &entry{
		task:     t,
		name:     name,
		id:       k.lastID + 1,
		order:    order,
		typ:      typ,
		state:    StateStopped,
		deps:     uniqueIDs(o.deps),
		onThread: runsOnThread,
	}
	if err := callHook(e, "init", t.Init); err != nil {
		return 0, err
	}

	k.lastID++
	k.seq++
	e.seq = k.seq
	if k.faultThreshold > 0 {
		e.breaker = k.newBreaker(e)
	}
	k.byID[e.id] = e
	k.active.Put(e.key(), e)
	k.halting = false

	k.log.DebugCtx("task added", map[string]any{
		"task_id": e.id,
		"task":    name,
		"order":   order.String(),
		"type":    typ.String(),
		"thread":  runsOnThread,
	})
	return e.id, nil
}

// sameTask reports whether a and b are the same task value. Values of
// incomparable dynamic types never match.
func sameTask(a, b Task) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func uniqueIDs(ids []TaskID) []TaskID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[TaskID]bool, len(ids))
	out := make([]TaskID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// AddDependency makes id run after dep in every cycle.
func (k *Kernel) AddDependency(id, dep TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	if _, ok := k.byID[dep]; !ok {
		return fmt.Errorf("%w: dependency id %d", ErrTaskNotFound, dep)
	}
	for _, d := range e.deps {
		if d == dep {
			return nil
		}
	}
	e.deps = append(e.deps, dep)
	return nil
}

// RemoveDependency drops the edge from id to dep, if present.
func (k *Kernel) RemoveDependency(id, dep TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	e.deps = removeID(e.deps, dep)
	return nil
}

func removeID(ids []TaskID, id TaskID) []TaskID {
	for i, d := range ids {
		if d == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// RemoveTask marks the task for removal. It stops and leaves the kernel at
// the end of the current (or next) cycle.
func (k *Kernel) RemoveTask(id TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	e.pendingRemoval = true
	return nil
}

// StartTask starts a stopped task, or resumes a paused one. Starting a
// running task is a no-op.
func (k *Kernel) StartTask(id TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case e.paused:
		return k.ResumeTask(id)
	case e.state == StateRunning:
		return nil
	}
	e.startAttempted = true
	e.resetRetry()
	return k.start(e)
}

func (k *Kernel) start(e *entry) error {
	if err := callHook(e, "start", e.task.Start); err != nil {
		k.log.WarnCtx("task start failed", map[string]any{
			"task_id": e.id,
			"task":    e.name,
			"error":   err.Error(),
		})
		k.scheduleRetry(e)
		return err
	}
	e.resetRetry()
	e.state = StateRunning
	if e.onThread {
		e.worker = newWorker(k, e)
		k.workers.Go(e.worker.run)
	}
	k.log.DebugCtx("task started", map[string]any{"task_id": e.id, "task": e.name})
	k.notify(TaskStarted, e)
	return nil
}

// SuspendTask runs the task's OnSuspend hook and moves it to the paused
// collection. A failing hook leaves the task running.
func (k *Kernel) SuspendTask(id TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	if e.paused || e.state != StateRunning {
		return fmt.Errorf("%w: task %q is %s", ErrInvalidState, e.name, e.state)
	}

	if e.onThread {
		err = e.worker.send(signalSuspend)
	} else {
		err = callHook(e, "on_suspend", e.task.OnSuspend)
	}
	if err != nil {
		return err
	}

	k.active.Remove(e.key())
	k.paused.Put(e.key(), e)
	e.paused = true
	e.state = StatePaused
	k.log.DebugCtx("task suspended", map[string]any{"task_id": e.id, "task": e.name})
	k.notify(TaskSuspended, e)
	return nil
}

// ResumeTask runs the task's OnResume hook and moves it back into rotation.
// A failing hook leaves the task paused.
func (k *Kernel) ResumeTask(id TaskID) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	if !e.paused {
		return fmt.Errorf("%w: task %q is %s", ErrInvalidState, e.name, e.state)
	}

	if e.onThread {
		err = e.worker.send(signalResume)
	} else {
		err = callHook(e, "on_resume", e.task.OnResume)
	}
	if err != nil {
		return err
	}

	k.paused.Remove(e.key())
	k.active.Put(e.key(), e)
	e.paused = false
	e.state = StateRunning
	k.log.DebugCtx("task resumed", map[string]any{"task_id": e.id, "task": e.name})
	k.notify(TaskResumed, e)
	return nil
}

// ChangeTaskOrder moves a task to a new order. During a cycle the change is
// buffered and applied when the cycle ends.
func (k *Kernel) ChangeTaskOrder(id TaskID, order Order) error {
	e, err := k.lookup(id)
	if err != nil {
		return err
	}
	if e.typ == TaskUser && order.IsSystem() {
		return fmt.Errorf("%w: task %q order %d", ErrSystemOrder, e.name, order)
	}
	if k.cycling {
		e.orderChanged = true
		e.newOrder = order
		return nil
	}
	k.reorder(e, order)
	return nil
}

func (k *Kernel) reorder(e *entry, order Order) {
	tree := k.collection(e)
	tree.Remove(e.key())
	e.order = order
	tree.Put(e.key(), e)
	e.orderChanged = false
}

func (k *Kernel) collection(e *entry) *redblacktree.Tree {
	if e.paused {
		return k.paused
	}
	return k.active
}

// StopExecution marks every task for removal. The following cycle tears them
// all down, after which Execute returns.
func (k *Kernel) StopExecution() {
	for _, e := range k.byID {
		e.pendingRemoval = true
	}
	k.halting = true
	k.log.Debug("stopping execution")
}

// GetTaskByID returns a snapshot of the task with the given id.
func (k *Kernel) GetTaskByID(id TaskID) (TaskInfo, error) {
	e, err := k.lookup(id)
	if err != nil {
		return TaskInfo{}, err
	}
	return e.info(), nil
}

// GetTaskByName returns a snapshot of the task with the given name.
func (k *Kernel) GetTaskByName(name string) (TaskInfo, error) {
	for _, e := range k.byID {
		if e.name == name {
			if err := k.checkRights(e); err != nil {
				return TaskInfo{}, err
			}
			return e.info(), nil
		}
	}
	return TaskInfo{}, fmt.Errorf("%w: name %q", ErrTaskNotFound, name)
}

func (k *Kernel) lookup(id TaskID) (*entry, error) {
	e, ok := k.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTaskNotFound, id)
	}
	if err := k.checkRights(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (k *Kernel) checkRights(e *entry) error {
	if e.typ == TaskSystem && !k.privileged() {
		return fmt.Errorf("%w: task %q (id=%d)", ErrNoRights, e.name, e.id)
	}
	return nil
}

// UnlockSystemTasks opens the privilege window: system tasks can be looked
// up and manipulated until the matching LockSystemTasks. Windows nest.
func (k *Kernel) UnlockSystemTasks() { k.access++ }

// LockSystemTasks closes one level of the privilege window.
func (k *Kernel) LockSystemTasks() {
	if k.access > 0 {
		k.access--
	}
}

// WithSystemAccess runs fn inside a privilege window.
func (k *Kernel) WithSystemAccess(fn func() error) error {
	k.UnlockSystemTasks()
	defer k.LockSystemTasks()
	return fn()
}

func (k *Kernel) privileged() bool { return k.access > 0 }

// OneTick runs one scheduling cycle: start pending tasks, update running
// tasks in dependency order, then sweep removed tasks and apply buffered
// order changes. A dependency cycle or a missing dependency is returned
// after the cycle completes; tasks resolved before the fault were updated.
func (k *Kernel) OneTick() error {
	k.startPending()

	order, resolveErr := k.resolve()

	k.cycling = true
	for _, e := range order {
		if e.pendingRemoval || e.paused || e.state != StateRunning || e.onThread {
			continue
		}
		k.runUpdate(e)
	}
	k.cycling = false

	k.sweep()
	k.ticks++

	if resolveErr != nil {
		k.log.Err(resolveErr).Uint64("tick", k.ticks).Msg("dependency resolution failed")
		return fmt.Errorf("tick %d: %w", k.ticks, resolveErr)
	}
	return nil
}

// startPending registers the root task on the first cycle and starts every
// task that has not been started yet, or whose start retry is due.
func (k *Kernel) startPending() {
	if k.rootID == 0 && !k.halting {
		k.addRoot()
	}
	for _, e := range entries(k.active) {
		if e.state != StateStopped || e.pendingRemoval {
			continue
		}
		if !e.startAttempted {
			e.startAttempted = true
			_ = k.start(e)
			continue
		}
		if k.retryDue(e) {
			_ = k.start(e)
		}
	}
}

// addRoot registers the no-op root task depending on every task present.
func (k *Kernel) addRoot() {
	deps := make([]TaskID, 0, len(k.byID))
	for _, e := range entries(k.active) {
		deps = append(deps, e.id)
	}
	for _, e := range entries(k.paused) {
		deps = append(deps, e.id)
	}

	k.UnlockSystemTasks()
	defer k.LockSystemTasks()
	id, err := k.AddTask(&rootTask{Base{TaskName: RootTaskName}}, OrderSysRoot, TaskSystem, false, DependsOn(deps...))
	if err != nil {
		k.log.Err(err).Msg("registering root task")
		return
	}
	k.rootID = id
}

// sweep tears down tasks marked for removal, prunes edges pointing at them,
// and applies order changes buffered during the cycle.
func (k *Kernel) sweep() {
	var removed []TaskID
	for _, e := range append(entries(k.active), entries(k.paused)...) {
		if e.pendingRemoval {
			k.teardown(e)
			removed = append(removed, e.id)
		}
	}

	if len(removed) > 0 {
		for _, e := range k.byID {
			for _, id := range removed {
				e.deps = removeID(e.deps, id)
			}
		}
	}

	for _, e := range append(entries(k.active), entries(k.paused)...) {
		if e.orderChanged {
			k.reorder(e, e.newOrder)
		}
	}
}

// teardown runs the stop hook of every removed task, started or not, since
// Init has already run for it. Only a started thread task has a worker to join.
func (k *Kernel) teardown(e *entry) {
	wasStarted := e.state != StateStopped
	var err error
	if e.worker != nil {
		err = e.worker.stop()
	} else {
		err = callHook(e, "stop", e.task.Stop)
	}
	if err != nil {
		k.log.WarnCtx("task stop failed", map[string]any{
			"task_id": e.id,
			"task":    e.name,
			"error":   err.Error(),
		})
	}
	e.state = StateStopped

	k.collection(e).Remove(e.key())
	delete(k.byID, e.id)
	if e.id == k.rootID {
		k.rootID = 0
	}
	k.log.DebugCtx("task removed", map[string]any{"task_id": e.id, "task": e.name})
	if wasStarted {
		k.notify(TaskStopped, e)
	}
}

// Execute runs cycles until no active task remains. Cancelling ctx stops
// every task and drains the kernel before returning ctx's error. Structural
// errors from individual cycles are logged and do not end the loop.
func (k *Kernel) Execute(ctx context.Context) error {
	stopping := false
	for k.active.Size() > 0 {
		if !stopping && ctx.Err() != nil {
			k.StopExecution()
			stopping = true
		}
		_ = k.OneTick()
	}
	if err := k.Wait(); err != nil {
		k.log.Err(err).Msg("thread worker stopped with error")
	}
	return ctx.Err()
}

// Wait blocks until every thread worker started so far has exited and
// returns the first stop hook error among them. Workers started afterwards
// join a fresh group, so an error is reported by one Wait only.
func (k *Kernel) Wait() error {
	g := k.workers
	k.workers = new(errgroup.Group)
	return g.Wait()
}

// Ticks reports how many cycles have completed.
func (k *Kernel) Ticks() uint64 { return k.ticks }

// ActiveCount reports how many tasks are in the active collection.
func (k *Kernel) ActiveCount() int { return k.active.Size() }

// PausedCount reports how many tasks are suspended.
func (k *Kernel) PausedCount() int { return k.paused.Size() }

// Snapshot lists every task, active ones first, each collection in order.
// System tasks are included regardless of the privilege window.
func (k *Kernel) Snapshot() []TaskInfo {
	out := make([]TaskInfo, 0, len(k.byID))
	for _, e := range entries(k.active) {
		out = append(out, e.info())
	}
	for _, e := range entries(k.paused) {
		out = append(out, e.info())
	}
	return out
}

func (k *Kernel) notify(kind TaskEventKind, e *entry) {
	if !k.sendEvents || k.notifier == nil {
		return
	}
	ev := TaskEvent{
		Kind:      kind,
		ID:        e.id,
		Name:      e.name,
		Type:      e.typ,
		Tick:      k.ticks,
		Timestamp: k.now(),
	}
	if err := k.notifier.EmitSystem(ev); err != nil {
		k.log.DebugCtx("lifecycle event not delivered", map[string]any{
			"event": ev.EventType(),
			"error": err.Error(),
		})
	}
}

// entries returns the entries of tree in order.
func entries(tree *redblacktree.Tree) []*entry {
	out := make([]*entry, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*entry))
	}
	return out
}
