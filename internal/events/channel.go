package events

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/aristath/cadence/internal/logging"
	"github.com/emirpasic/gods/queues/priorityqueue"
)

// Subscriber receives events delivered on a channel. Identity is interface
// equality, so implementations should use pointer receivers.
type Subscriber interface {
	OnEvent(channel string, e Event)
}

type pending struct {
	event Event
	seq   uint64
}

// byPriority puts higher priorities first and keeps FIFO among equals.
func byPriority(a, b interface{}) int {
	pa, pb := a.(pending), b.(pending)
	switch {
	case pa.event.Priority() > pb.event.Priority():
		return -1
	case pa.event.Priority() < pb.event.Priority():
		return 1
	case pa.seq < pb.seq:
		return -1
	case pa.seq > pb.seq:
		return 1
	}
	return 0
}

// Channel is a named topic with a subscriber list and a pending queue.
// Push may be called from any goroutine.
type Channel struct {
	name string
	log  *logging.Logger

	mu    sync.Mutex
	subs  []Subscriber
	queue *priorityqueue.Queue
	seq   uint64
}

func newChannel(name string, log *logging.Logger) *Channel {
	return &Channel{
		name:  name,
		log:   log,
		queue: priorityqueue.NewWith(byPriority),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Connect adds s to the subscriber list. Connecting twice is a no-op.
// Subscribers must be comparable (pointers, or values without slices, maps
// or funcs); wrap a plain func in an Actor.
func (c *Channel) Connect(s Subscriber) error {
	if s == nil {
		return ErrNilSubscriber
	}
	if !reflect.TypeOf(s).Comparable() {
		return fmt.Errorf("%w: %T", ErrUncomparableSubscriber, s)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.subs {
		if sameSubscriber(existing, s) {
			return nil
		}
	}
	c.subs = append(c.subs, s)
	return nil
}

// Disconnect removes s. Unknown subscribers are ignored.
func (c *Channel) Disconnect(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.subs {
		if sameSubscriber(existing, s) {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

func sameSubscriber(a, b Subscriber) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// DisconnectAll empties the subscriber list.
func (c *Channel) DisconnectAll() {
	c.mu.Lock()
	c.subs = nil
	c.mu.Unlock()
}

// Subscribers reports how many subscribers are connected.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Pending reports how many events wait for the next delivery.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Size()
}

// Push queues e, or delivers it right away when its priority is Immediate.
// Immediate delivery happens on the caller's goroutine, outside the channel lock,
// so subscribers may push again.
func (c *Channel) Push(e Event) error {
	if e == nil {
		return ErrNilEvent
	}

	c.mu.Lock()
	if e.Priority() == PriorityImmediate {
		subs := c.snapshot()
		c.mu.Unlock()
		for _, s := range subs {
			c.dispatch(s, e)
		}
		return nil
	}
	c.seq++
	c.queue.Enqueue(pending{event: e, seq: c.seq})
	c.mu.Unlock()
	return nil
}

// Deliver drains the events queued before the call, highest priority first.
// Events pushed while delivering wait for the next call.
func (c *Channel) Deliver() int {
	c.mu.Lock()
	if c.queue.Empty() {
		c.mu.Unlock()
		return 0
	}
	batch := c.queue
	c.queue = priorityqueue.NewWith(byPriority)
	c.mu.Unlock()

	delivered := 0
	for {
		v, ok := batch.Dequeue()
		if !ok {
			break
		}
		e := v.(pending).event

		// Subscribers are read per event so that connects made by an earlier
		// handler in this batch see the following events.
		c.mu.Lock()
		subs := c.snapshot()
		c.mu.Unlock()

		for _, s := range subs {
			c.dispatch(s, e)
		}
		delivered++
	}
	return delivered
}

func (c *Channel) snapshot() []Subscriber {
	if len(c.subs) == 0 {
		return nil
	}
	subs := make([]Subscriber, len(c.subs))
	copy(subs, c.subs)
	return subs
}

func (c *Channel) dispatch(s Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorCtx("subscriber panicked", map[string]any{
				"channel":    c.name,
				"event_type": e.EventType(),
				"panic":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			})
		}
	}()
	s.OnEvent(c.name, e)
}
