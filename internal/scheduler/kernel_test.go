package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
)

// probe records every hook call into a shared journal.
type probe struct {
	Base
	journal *[]string

	initErr    error
	startErr   error
	updateErr  error
	suspendErr error
	resumeErr  error
	stopErr    error
	panicIn    string
	onUpdate   func()
	updates    int
}

func newProbe(name string, journal *[]string) *probe {
	return &probe{Base: Base{TaskName: name}, journal: journal}
}

func (p *probe) record(hook string) error {
	*p.journal = append(*p.journal, p.TaskName+"."+hook)
	if p.panicIn == hook {
		panic(p.TaskName + " " + hook + " exploded")
	}
	return nil
}

func (p *probe) Init() error {
	p.record("init")
	return p.initErr
}

func (p *probe) Start() error {
	p.record("start")
	return p.startErr
}

func (p *probe) Update() error {
	p.updates++
	p.record("update")
	if p.onUpdate != nil {
		p.onUpdate()
	}
	return p.updateErr
}

func (p *probe) Stop() error {
	p.record("stop")
	return p.stopErr
}

func (p *probe) OnSuspend() error {
	p.record("suspend")
	return p.suspendErr
}

func (p *probe) OnResume() error {
	p.record("resume")
	return p.resumeErr
}

// updatesOnly filters a journal down to update calls, as task names.
func updatesOnly(journal []string) []string {
	var out []string
	for _, j := range journal {
		if strings.HasSuffix(j, ".update") {
			out = append(out, strings.TrimSuffix(j, ".update"))
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(journal []string, entry string) bool {
	for _, j := range journal {
		if j == entry {
			return true
		}
	}
	return false
}

type eventSink struct {
	got []TaskEvent
}

func (s *eventSink) EmitSystem(e events.Event) error {
	if te, ok := events.As[TaskEvent](e); ok {
		s.got = append(s.got, te)
	}
	return nil
}

func (s *eventSink) kinds() []string {
	var out []string
	for _, e := range s.got {
		out = append(out, e.Name+":"+e.Kind.String())
	}
	return out
}

func testKernel(opts ...Option) *Kernel {
	return New(append([]Option{WithLogger(logging.NewNop())}, opts...)...)
}

func mustAdd(t *testing.T, k *Kernel, task Task, order Order, opts ...TaskOption) TaskID {
	t.Helper()
	id, err := k.AddTask(task, order, TaskUser, false, opts...)
	if err != nil {
		t.Fatalf("AddTask(%s) error = %v", task.Name(), err)
	}
	return id
}

func TestKernelUpdateOrder(t *testing.T) {
	tests := []struct {
		name  string
		setup func(k *Kernel, j *[]string)
		want  []string
	}{
		{
			name: "lower order runs first",
			setup: func(k *Kernel, j *[]string) {
				k.AddTask(newProbe("low", j), OrderLow, TaskUser, false)
				k.AddTask(newProbe("high", j), OrderHigh, TaskUser, false)
				k.AddTask(newProbe("normal", j), OrderNormal, TaskUser, false)
			},
			want: []string{"high", "normal", "low"},
		},
		{
			name: "equal orders run in registration order",
			setup: func(k *Kernel, j *[]string) {
				k.AddTask(newProbe("a", j), OrderNormal, TaskUser, false)
				k.AddTask(newProbe("b", j), OrderNormal, TaskUser, false)
				k.AddTask(newProbe("c", j), OrderNormal, TaskUser, false)
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "dependency overrides order",
			setup: func(k *Kernel, j *[]string) {
				a, _ := k.AddTask(newProbe("a", j), OrderLast, TaskUser, false)
				k.AddTask(newProbe("b", j), OrderFirst, TaskUser, false, DependsOn(a))
				k.AddTask(newProbe("c", j), OrderNormal, TaskUser, false)
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "diamond",
			setup: func(k *Kernel, j *[]string) {
				a, _ := k.AddTask(newProbe("a", j), OrderLow, TaskUser, false)
				b, _ := k.AddTask(newProbe("b", j), OrderNormal, TaskUser, false, DependsOn(a))
				c, _ := k.AddTask(newProbe("c", j), OrderNormal, TaskUser, false, DependsOn(a))
				k.AddTask(newProbe("d", j), OrderFirst, TaskUser, false, DependsOn(b, c))
			},
			want: []string{"a", "b", "c", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var journal []string
			k := testKernel()
			tt.setup(k, &journal)

			if err := k.OneTick(); err != nil {
				t.Fatalf("OneTick() error = %v", err)
			}
			if got := updatesOnly(journal); !equalStrings(got, tt.want) {
				t.Errorf("update order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKernelAddTaskValidation(t *testing.T) {
	var journal []string
	k := testKernel()
	first := newProbe("first", &journal)
	mustAdd(t, k, first, OrderNormal)

	tests := []struct {
		name    string
		task    Task
		order   Order
		typ     TaskType
		opts    []TaskOption
		wantErr error
	}{
		{"nil task", nil, OrderNormal, TaskUser, nil, ErrNilTask},
		{"duplicate name", newProbe("first", &journal), OrderNormal, TaskUser, nil, ErrDuplicateTask},
		{"same task value", first, OrderLow, TaskUser, nil, ErrDuplicateTask},
		{"user task in system band", newProbe("sneaky", &journal), OrderSysLast, TaskUser, nil, ErrSystemOrder},
		{"system task without rights", newProbe("sys", &journal), OrderSysFirst, TaskSystem, nil, ErrNoRights},
		{"unknown dependency", newProbe("orphan", &journal), OrderNormal, TaskUser, []TaskOption{DependsOn(99)}, ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.AddTask(tt.task, tt.order, tt.typ, false, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddTask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if !errors.Is(ErrSystemOrder, ErrNoRights) {
		t.Error("ErrSystemOrder should be a rights error")
	}
}

func TestKernelInitFailureRejectsTask(t *testing.T) {
	var journal []string
	k := testKernel()
	p := newProbe("broken", &journal)
	p.initErr = errors.New("no config")

	_, err := k.AddTask(p, OrderNormal, TaskUser, false)
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Hook != "init" {
		t.Fatalf("AddTask() error = %v, want init HookError", err)
	}
	if _, err := k.GetTaskByName("broken"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("rejected task is registered: %v", err)
	}

	// The id is not consumed by a failed registration.
	id := mustAdd(t, k, newProbe("ok", &journal), OrderNormal)
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
}

func TestKernelRootTask(t *testing.T) {
	var journal []string
	k := testKernel()
	a := mustAdd(t, k, newProbe("a", &journal), OrderNormal)
	b := mustAdd(t, k, newProbe("b", &journal), OrderLow)

	if err := k.OneTick(); err != nil {
		t.Fatalf("OneTick() error = %v", err)
	}

	if _, err := k.GetTaskByName(RootTaskName); !errors.Is(err, ErrNoRights) {
		t.Errorf("root visible without privilege window: %v", err)
	}

	k.UnlockSystemTasks()
	defer k.LockSystemTasks()
	root, err := k.GetTaskByName(RootTaskName)
	if err != nil {
		t.Fatalf("GetTaskByName(root) error = %v", err)
	}
	if root.Type != TaskSystem || root.Order != OrderSysRoot {
		t.Errorf("root = %+v", root)
	}
	if len(root.Dependencies) != 2 || root.Dependencies[0] != a || root.Dependencies[1] != b {
		t.Errorf("root dependencies = %v, want [%d %d]", root.Dependencies, a, b)
	}
	if root.State != StateRunning {
		t.Errorf("root state = %v", root.State)
	}
}

func TestKernelLateTasksAreStartedAndUpdated(t *testing.T) {
	var journal []string
	k := testKernel()
	mustAdd(t, k, newProbe("early", &journal), OrderNormal)
	k.OneTick()

	late := newProbe("late", &journal)
	mustAdd(t, k, late, OrderHigh)
	k.OneTick()

	if !contains(journal, "late.start") {
		t.Error("task added after the first cycle was never started")
	}
	if late.updates != 1 {
		t.Errorf("late.updates = %d, want 1", late.updates)
	}
	if got := updatesOnly(journal); !equalStrings(got, []string{"early", "late", "early"}) {
		t.Errorf("updates = %v", got)
	}
}

func TestKernelCircularDependency(t *testing.T) {
	var journal []string
	k := testKernel()
	free := mustAdd(t, k, newProbe("free", &journal), OrderFirst)
	x := mustAdd(t, k, newProbe("x", &journal), OrderNormal)
	y := mustAdd(t, k, newProbe("y", &journal), OrderNormal, DependsOn(x))
	mustAdd(t, k, newProbe("after", &journal), OrderLast)
	if err := k.AddDependency(x, y); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	_ = free

	err := k.OneTick()
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("OneTick() error = %v, want ErrCircularDependency", err)
	}

	// Tasks resolved before the cycle was found still ran; the rest did not.
	if got := updatesOnly(journal); !equalStrings(got, []string{"free"}) {
		t.Errorf("updates = %v, want [free]", got)
	}
	if k.Ticks() != 1 {
		t.Errorf("Ticks() = %d, want 1", k.Ticks())
	}

	// Breaking the cycle lets the next cycle run everything.
	if err := k.RemoveDependency(x, y); err != nil {
		t.Fatalf("RemoveDependency() error = %v", err)
	}
	journal = nil
	if err := k.OneTick(); err != nil {
		t.Fatalf("OneTick() after fix error = %v", err)
	}
	if got := updatesOnly(journal); !equalStrings(got, []string{"free", "x", "y", "after"}) {
		t.Errorf("updates = %v", got)
	}
}

func TestKernelPausedDependencyIsSatisfied(t *testing.T) {
	var journal []string
	k := testKernel()
	a := mustAdd(t, k, newProbe("a", &journal), OrderNormal)
	mustAdd(t, k, newProbe("b", &journal), OrderHigh, DependsOn(a))
	k.OneTick()

	if err := k.SuspendTask(a); err != nil {
		t.Fatalf("SuspendTask() error = %v", err)
	}
	journal = nil
	if err := k.OneTick(); err != nil {
		t.Fatalf("OneTick() error = %v", err)
	}
	if got := updatesOnly(journal); !equalStrings(got, []string{"b"}) {
		t.Errorf("updates = %v, want [b]", got)
	}
}

func TestKernelRemoveTask(t *testing.T) {
	var journal []string
	k := testKernel()
	a := mustAdd(t, k, newProbe("a", &journal), OrderHigh)
	mustAdd(t, k, newProbe("b", &journal), OrderNormal, DependsOn(a))
	k.OneTick()

	if err := k.RemoveTask(a); err != nil {
		t.Fatalf("RemoveTask() error = %v", err)
	}
	// Marked tasks stay registered until the sweep.
	if _, err := k.GetTaskByID(a); err != nil {
		t.Errorf("task gone before sweep: %v", err)
	}

	journal = nil
	if err := k.OneTick(); err != nil {
		t.Fatalf("OneTick() error = %v", err)
	}
	if got := updatesOnly(journal); !equalStrings(got, []string{"b"}) {
		t.Errorf("updates = %v, want [b]", got)
	}
	if !contains(journal, "a.stop") {
		t.Error("stop hook not called on removal")
	}
	if _, err := k.GetTaskByID(a); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("GetTaskByID after removal error = %v", err)
	}
	if _, err := k.GetTaskByName("a"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("GetTaskByName after removal error = %v", err)
	}

	// The dangling edge was pruned.
	b, _ := k.GetTaskByName("b")
	if len(b.Dependencies) != 0 {
		t.Errorf("b dependencies = %v, want none", b.Dependencies)
	}
	if err := k.OneTick(); err != nil {
		t.Errorf("OneTick() after removal error = %v", err)
	}
}

func TestKernelRemoveDuringCycle(t *testing.T) {
	var journal []string
	k := testKernel()
	victim := newProbe("victim", &journal)
	killer := newProbe("killer", &journal)
	mustAdd(t, k, killer, OrderHigh)
	victimID := mustAdd(t, k, victim, OrderLow)
	k.OneTick()

	killer.onUpdate = func() { k.RemoveTask(victimID) }
	journal = nil
	k.OneTick()

	if victim.updates != 1 {
		t.Errorf("victim.updates = %d, want 1 (no update after removal)", victim.updates)
	}
	if !contains(journal, "victim.stop") {
		t.Error("victim not stopped in the same cycle")
	}
}

func count(journal []string, entry string) int {
	n := 0
	for _, j := range journal {
		if j == entry {
			n++
		}
	}
	return n
}

func TestKernelNeverStartedTaskIsStoppedOnce(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		warmup   int // cycles before removal
	}{
		{name: "removed before first cycle"},
		{name: "start failed", startErr: errors.New("no device"), warmup: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var journal []string
			k := testKernel()
			p := newProbe("idle", &journal)
			p.startErr = tt.startErr
			id := mustAdd(t, k, p, OrderNormal)
			for i := 0; i < tt.warmup; i++ {
				k.OneTick()
			}
			if err := k.RemoveTask(id); err != nil {
				t.Fatalf("RemoveTask() error = %v", err)
			}
			k.OneTick()
			k.OneTick()

			if got := count(journal, "idle.stop"); got != 1 {
				t.Errorf("stop hook fired %d times, want 1 (journal %v)", got, journal)
			}
			if p.updates != 0 {
				t.Errorf("removed task was updated %d times", p.updates)
			}
		})
	}
}

func TestKernelThreadTaskRemovedBeforeStartIsStopped(t *testing.T) {
	var journal []string
	k := testKernel()
	p := newProbe("worker", &journal)
	id, err := k.AddTask(p, OrderNormal, TaskUser, true)
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	k.RemoveTask(id)
	k.OneTick()
	if err := k.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if got := count(journal, "worker.stop"); got != 1 {
		t.Errorf("stop hook fired %d times, want 1", got)
	}
	if contains(journal, "worker.start") {
		t.Errorf("removed thread task was started: %v", journal)
	}
}

func TestKernelStartFailure(t *testing.T) {
	var journal []string
	k := testKernel()
	p := newProbe("flaky", &journal)
	p.startErr = errors.New("device busy")
	id := mustAdd(t, k, p, OrderNormal)

	k.OneTick()
	k.OneTick()

	info, err := k.GetTaskByID(id)
	if err != nil {
		t.Fatalf("GetTaskByID() error = %v", err)
	}
	if info.State != StateStopped {
		t.Errorf("state = %v, want stopped", info.State)
	}
	if p.updates != 0 {
		t.Errorf("failed task was updated %d times", p.updates)
	}
	starts := 0
	for _, j := range journal {
		if j == "flaky.start" {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("start attempts = %d, want 1 without a retry policy", starts)
	}

	p.startErr = nil
	if err := k.StartTask(id); err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}
	k.OneTick()
	if p.updates != 1 {
		t.Errorf("updates after manual start = %d, want 1", p.updates)
	}
	if err := k.StartTask(id); err != nil {
		t.Errorf("StartTask() on a running task error = %v", err)
	}
}

func TestKernelSuspendResume(t *testing.T) {
	var journal []string
	sink := &eventSink{}
	k := testKernel(WithNotifier(sink))
	p := newProbe("worker", &journal)
	id := mustAdd(t, k, p, OrderNormal)
	k.OneTick()

	if err := k.SuspendTask(id); err != nil {
		t.Fatalf("SuspendTask() error = %v", err)
	}
	if k.ActiveCount() != 1 || k.PausedCount() != 1 {
		t.Errorf("active=%d paused=%d, want 1 (root) and 1", k.ActiveCount(), k.PausedCount())
	}
	if err := k.SuspendTask(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second SuspendTask() error = %v, want ErrInvalidState", err)
	}

	k.OneTick()
	if p.updates != 1 {
		t.Errorf("paused task updated: %d", p.updates)
	}

	if err := k.StartTask(id); err != nil {
		t.Fatalf("StartTask() on paused task error = %v", err)
	}
	k.OneTick()
	if p.updates != 2 {
		t.Errorf("updates = %d, want 2", p.updates)
	}
	if err := k.ResumeTask(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ResumeTask() on running task error = %v", err)
	}

	want := []string{"worker:started", "worker:suspended", "worker:resumed"}
	if got := sink.kinds(); !equalStrings(got[len(got)-3:], want) {
		t.Errorf("events = %v, want suffix %v", got, want)
	}
}

func TestKernelFailingTransitionHooks(t *testing.T) {
	var journal []string
	k := testKernel()
	p := newProbe("stubborn", &journal)
	id := mustAdd(t, k, p, OrderNormal)
	k.OneTick()

	p.suspendErr = errors.New("not now")
	if err := k.SuspendTask(id); err == nil {
		t.Fatal("SuspendTask() succeeded despite failing hook")
	}
	info, _ := k.GetTaskByID(id)
	if info.State != StateRunning {
		t.Errorf("state after failed suspend = %v", info.State)
	}

	p.suspendErr = nil
	k.SuspendTask(id)
	p.resumeErr = errors.New("still not now")
	if err := k.ResumeTask(id); err == nil {
		t.Fatal("ResumeTask() succeeded despite failing hook")
	}
	info, _ = k.GetTaskByID(id)
	if info.State != StatePaused {
		t.Errorf("state after failed resume = %v", info.State)
	}
}

func TestKernelPanicIsContained(t *testing.T) {
	var journal []string
	k := testKernel()
	bad := newProbe("bad", &journal)
	bad.panicIn = "update"
	good := newProbe("good", &journal)
	mustAdd(t, k, bad, OrderHigh)
	mustAdd(t, k, good, OrderLow)

	for i := 0; i < 3; i++ {
		if err := k.OneTick(); err != nil {
			t.Fatalf("OneTick() error = %v", err)
		}
	}
	if good.updates != 3 {
		t.Errorf("good.updates = %d, want 3", good.updates)
	}
}

func TestCallHookWrapsPanic(t *testing.T) {
	e := &entry{id: 7, name: "p"}
	err := callHook(e, "start", func() error { panic("kaboom") })

	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("error = %v, want HookError", err)
	}
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("error = %v, want PanicError inside", err)
	}
	if panicErr.Value != "kaboom" || len(panicErr.Stack) == 0 {
		t.Errorf("panic = %+v", panicErr)
	}
	if hookErr.TaskID != 7 || hookErr.Hook != "start" {
		t.Errorf("hook error = %+v", hookErr)
	}
}

func TestKernelChangeTaskOrder(t *testing.T) {
	var journal []string
	k := testKernel()
	a := newProbe("a", &journal)
	aID := mustAdd(t, k, a, OrderHigh)
	bID := mustAdd(t, k, newProbe("b", &journal), OrderNormal)
	k.OneTick()

	if err := k.ChangeTaskOrder(aID, OrderLow); err != nil {
		t.Fatalf("ChangeTaskOrder() error = %v", err)
	}
	journal = nil
	k.OneTick()
	if got := updatesOnly(journal); !equalStrings(got, []string{"b", "a"}) {
		t.Errorf("after reorder = %v, want [b a]", got)
	}

	if err := k.ChangeTaskOrder(bID, OrderSysFifth); !errors.Is(err, ErrSystemOrder) {
		t.Errorf("ChangeTaskOrder into system band error = %v", err)
	}

	// A change requested mid-cycle takes effect from the next cycle.
	a.onUpdate = func() {
		k.ChangeTaskOrder(aID, OrderFirst)
		a.onUpdate = nil
	}
	journal = nil
	k.OneTick()
	if got := updatesOnly(journal); !equalStrings(got, []string{"b", "a"}) {
		t.Errorf("during change cycle = %v, want [b a]", got)
	}
	journal = nil
	k.OneTick()
	if got := updatesOnly(journal); !equalStrings(got, []string{"a", "b"}) {
		t.Errorf("after buffered change = %v, want [a b]", got)
	}
	info, _ := k.GetTaskByID(aID)
	if info.Order != OrderFirst {
		t.Errorf("order = %v, want first", info.Order)
	}
}

func TestKernelSystemTaskRights(t *testing.T) {
	var journal []string
	k := testKernel()

	var sysID TaskID
	err := k.WithSystemAccess(func() error {
		var err error
		sysID, err = k.AddTask(newProbe("clock", &journal), OrderSysFirst, TaskSystem, false)
		return err
	})
	if err != nil {
		t.Fatalf("adding system task error = %v", err)
	}

	checks := []struct {
		name string
		call func() error
	}{
		{"get by id", func() error { _, err := k.GetTaskByID(sysID); return err }},
		{"get by name", func() error { _, err := k.GetTaskByName("clock"); return err }},
		{"remove", func() error { return k.RemoveTask(sysID) }},
		{"suspend", func() error { return k.SuspendTask(sysID) }},
		{"reorder", func() error { return k.ChangeTaskOrder(sysID, OrderSysSecond) }},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, ErrNoRights) {
				t.Errorf("error = %v, want ErrNoRights", err)
			}
		})
	}

	// Windows nest.
	k.UnlockSystemTasks()
	k.UnlockSystemTasks()
	k.LockSystemTasks()
	if _, err := k.GetTaskByID(sysID); err != nil {
		t.Errorf("inside nested window error = %v", err)
	}
	k.LockSystemTasks()
	k.LockSystemTasks()
	if _, err := k.GetTaskByID(sysID); !errors.Is(err, ErrNoRights) {
		t.Errorf("after closing window error = %v", err)
	}
}

func TestKernelStopExecution(t *testing.T) {
	var journal []string
	sink := &eventSink{}
	k := testKernel(WithNotifier(sink))
	a := newProbe("a", &journal)
	b := newProbe("b", &journal)
	mustAdd(t, k, a, OrderNormal)
	bID := mustAdd(t, k, b, OrderLow)
	a.onUpdate = func() {
		if a.updates == 3 {
			k.StopExecution()
		}
	}
	k.OneTick()
	k.SuspendTask(bID)

	done := make(chan error, 1)
	go func() { done <- k.Execute(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute() did not return")
	}

	if a.updates != 3 {
		t.Errorf("a.updates = %d, want 3", a.updates)
	}
	if !contains(journal, "a.stop") || !contains(journal, "b.stop") {
		t.Errorf("not every task was stopped: %v", journal)
	}
	if k.ActiveCount() != 0 || k.PausedCount() != 0 {
		t.Errorf("active=%d paused=%d after Execute", k.ActiveCount(), k.PausedCount())
	}

	stopped := 0
	for _, e := range sink.got {
		if e.Kind == TaskStopped {
			stopped++
		}
	}
	if stopped != 3 {
		t.Errorf("stopped events = %d, want 3 (a, b, root)", stopped)
	}
}

func TestKernelStopBeforeFirstTick(t *testing.T) {
	var journal []string
	k := testKernel()
	mustAdd(t, k, newProbe("a", &journal), OrderNormal)
	k.StopExecution()

	if err := k.OneTick(); err != nil {
		t.Fatalf("OneTick() error = %v", err)
	}
	if k.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", k.ActiveCount())
	}
	if contains(journal, "a.start") {
		t.Errorf("task marked for removal was started: %v", journal)
	}
	if count(journal, "a.stop") != 1 {
		t.Errorf("task marked for removal was not stopped once: %v", journal)
	}

	// The kernel comes back to life when a task is added.
	b := newProbe("b", &journal)
	mustAdd(t, k, b, OrderNormal)
	k.OneTick()
	if b.updates != 1 {
		t.Errorf("b.updates = %d, want 1", b.updates)
	}
	err := k.WithSystemAccess(func() error {
		_, err := k.GetTaskByName(RootTaskName)
		return err
	})
	if err != nil {
		t.Errorf("root task not registered again: %v", err)
	}
}

func TestKernelExecuteCancelled(t *testing.T) {
	var journal []string
	k := testKernel()
	p := newProbe("forever", &journal)
	mustAdd(t, k, p, OrderNormal)

	ctx, cancel := context.WithCancel(context.Background())
	p.onUpdate = func() {
		if p.updates == 5 {
			cancel()
		}
	}

	err := k.Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if !contains(journal, "forever.stop") {
		t.Error("task not stopped after cancellation")
	}
	if k.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d", k.ActiveCount())
	}
}

func TestKernelSendEventsDisabled(t *testing.T) {
	var journal []string
	sink := &eventSink{}
	k := testKernel(WithNotifier(sink), WithSendEvents(false))
	mustAdd(t, k, newProbe("quiet", &journal), OrderNormal)
	k.OneTick()

	if len(sink.got) != 0 {
		t.Errorf("events emitted while disabled: %v", sink.kinds())
	}
}

func TestKernelLifecycleEventsReachBus(t *testing.T) {
	var journal []string
	bus := events.NewBus(events.WithLogger(logging.NewNop()))
	var seen []string
	bus.Connect(bus.SystemChannel(), events.NewActor("spy", func(_ string, e events.Event) {
		seen = append(seen, e.EventType())
	}))

	k := testKernel(WithNotifier(bus))
	id := mustAdd(t, k, newProbe("x", &journal), OrderNormal)
	k.OneTick()
	k.RemoveTask(id)
	k.OneTick()

	// Delivered synchronously, no bus update needed.
	want := []string{EventTypeTaskStarted, EventTypeTaskStarted, EventTypeTaskStopped}
	if !equalStrings(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

func TestKernelDrivesBusDelivery(t *testing.T) {
	var journal []string
	bus := events.NewBus(events.WithLogger(logging.NewNop()))
	if _, err := bus.CreateChannel("chan1"); err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	var delivered []events.Event
	bus.Connect("chan1", events.NewActor("reader", func(_ string, e events.Event) {
		delivered = append(delivered, e)
	}))

	k := testKernel(WithNotifier(bus))
	err := k.WithSystemAccess(func() error {
		_, err := k.AddTask(bus, OrderSysSecond, TaskSystem, false)
		return err
	})
	if err != nil {
		t.Fatalf("AddTask(bus) error = %v", err)
	}

	// A user task runs after the bus and must already see this cycle's events.
	consumer := newProbe("consumer", &journal)
	var seenAtUpdate []int
	consumer.onUpdate = func() { seenAtUpdate = append(seenAtUpdate, len(delivered)) }
	mustAdd(t, k, consumer, OrderNormal)
	k.OneTick()

	msg := events.Message{Kind: "ping", Prio: events.PriorityNormal}
	if err := bus.Emit("chan1", msg); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(delivered) != 0 {
		t.Fatalf("normal event delivered before the bus task ran: %v", delivered)
	}

	k.OneTick()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d events after one cycle, want 1", len(delivered))
	}
	if m, ok := events.As[events.Message](delivered[0]); !ok || m.Kind != "ping" {
		t.Errorf("delivered %v, want the ping message", delivered[0])
	}
	if len(seenAtUpdate) != 2 || seenAtUpdate[1] != 1 {
		t.Errorf("consumer saw %v delivered events at its updates, want [0 1]", seenAtUpdate)
	}

	k.OneTick()
	if len(delivered) != 1 {
		t.Errorf("event delivered %d times, want exactly once", len(delivered))
	}
}

func TestKernelSnapshot(t *testing.T) {
	var journal []string
	k := testKernel()
	a := mustAdd(t, k, newProbe("a", &journal), OrderLow)
	b := mustAdd(t, k, newProbe("b", &journal), OrderHigh)
	k.OneTick()
	k.SuspendTask(a)

	snap := k.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Snapshot() has %d entries, want 3", len(snap))
	}
	if snap[0].Name != RootTaskName || snap[1].ID != b || snap[2].ID != a {
		t.Errorf("snapshot order = %s, %s, %s", snap[0].Name, snap[1].Name, snap[2].Name)
	}
	if snap[2].State != StatePaused {
		t.Errorf("paused entry state = %v", snap[2].State)
	}
}

func TestKernelAddDependencyUnknown(t *testing.T) {
	var journal []string
	k := testKernel()
	a := mustAdd(t, k, newProbe("a", &journal), OrderNormal)

	if err := k.AddDependency(a, 42); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("AddDependency(unknown dep) error = %v", err)
	}
	if err := k.AddDependency(42, a); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("AddDependency(unknown task) error = %v", err)
	}
}

func TestNewFunc(t *testing.T) {
	calls := 0
	k := testKernel()
	mustAdd(t, k, NewFunc("counter", func() error { calls++; return nil }), OrderNormal)
	k.OneTick()
	k.OneTick()
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
