package scheduler

import (
	"runtime"
	"sync/atomic"
)

type threadState int32

const (
	threadStopped threadState = iota
	threadRunning
	threadSleeping
	threadResumePending
	threadSuspendPending
)

func (s threadState) String() string {
	switch s {
	case threadRunning:
		return "running"
	case threadSleeping:
		return "sleeping"
	case threadResumePending:
		return "resume-pending"
	case threadSuspendPending:
		return "suspend-pending"
	default:
		return "stopped"
	}
}

type threadSignal int

const (
	signalSuspend threadSignal = iota + 1
	signalResume
	signalStop
)

type threadRequest struct {
	signal threadSignal
	ack    chan error
}

// worker runs a thread-backed task on its own goroutine. The kernel talks to
// it only through requests; suspend and resume are acknowledged with the
// hook's result so a failing hook aborts the transition on the kernel side.
type worker struct {
	k        *Kernel
	e        *entry
	requests chan threadRequest
	done     chan struct{}
	state    atomic.Int32
	stopErr  error
}

func newWorker(k *Kernel, e *entry) *worker {
	return &worker{
		k:        k,
		e:        e,
		requests: make(chan threadRequest),
		done:     make(chan struct{}),
	}
}

func (w *worker) getState() threadState  { return threadState(w.state.Load()) }
func (w *worker) setState(s threadState) { w.state.Store(int32(s)) }

// run is the worker loop. The stop hook runs after the loop exits.
func (w *worker) run() error {
	defer close(w.done)
	w.setState(threadRunning)

	for {
		req, ok := w.next()
		if ok {
			if req.signal == signalStop {
				break
			}
			w.handle(req)
			continue
		}
		w.k.runUpdate(w.e)
		runtime.Gosched()
	}

	w.setState(threadStopped)
	w.stopErr = callHook(w.e, "stop", w.e.task.Stop)
	return w.stopErr
}

// next blocks while sleeping and polls otherwise.
func (w *worker) next() (threadRequest, bool) {
	if w.getState() == threadSleeping {
		return <-w.requests, true
	}
	select {
	case req := <-w.requests:
		return req, true
	default:
		return threadRequest{}, false
	}
}

func (w *worker) handle(req threadRequest) {
	var err error
	switch req.signal {
	case signalSuspend:
		w.setState(threadSuspendPending)
		if err = callHook(w.e, "on_suspend", w.e.task.OnSuspend); err != nil {
			w.setState(threadRunning)
		} else {
			w.setState(threadSleeping)
		}
	case signalResume:
		w.setState(threadResumePending)
		if err = callHook(w.e, "on_resume", w.e.task.OnResume); err != nil {
			w.setState(threadSleeping)
		} else {
			w.setState(threadRunning)
		}
	}
	req.ack <- err
}

// send delivers a suspend or resume request and waits for the acknowledgement.
func (w *worker) send(sig threadSignal) error {
	ack := make(chan error, 1)
	select {
	case w.requests <- threadRequest{signal: sig, ack: ack}:
	case <-w.done:
		return ErrInvalidState
	}
	return <-ack
}

// stop asks the worker to exit and waits until its stop hook has run.
func (w *worker) stop() error {
	select {
	case w.requests <- threadRequest{signal: signalStop}:
	case <-w.done:
	}
	<-w.done
	return w.stopErr
}
