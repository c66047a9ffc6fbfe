package events

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aristath/cadence/internal/logging"
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// DefaultSystemChannel is where kernel lifecycle events are emitted.
const DefaultSystemChannel = "system"

// BusTaskName is the name the bus reports when registered as a task.
const BusTaskName = "EventSystem"

var (
	ErrChannelExists   = errors.New("channel already exists")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNilEvent        = errors.New("nil event")
	ErrNilSubscriber   = errors.New("nil subscriber")

	ErrUncomparableSubscriber = errors.New("subscriber type is not comparable")
	ErrSystemChannel          = errors.New("system channel cannot be removed")
)

// Bus is a registry of named channels. It is also a cooperative task: every
// Update delivers the pending events of every channel, in registration order.
// All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	channels *linkedhashmap.Map // name -> *Channel
	system   string
	log      *logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// WithSystemChannel renames the system channel.
func WithSystemChannel(name string) Option {
	return func(b *Bus) {
		if name != "" {
			b.system = name
		}
	}
}

// NewBus creates a bus with its system channel already registered.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		channels: linkedhashmap.New(),
		system:   DefaultSystemChannel,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logging.Component("events")
	}
	b.channels.Put(b.system, newChannel(b.system, b.log))
	return b
}

// SystemChannel returns the name of the system channel.
func (b *Bus) SystemChannel() string { return b.system }

// CreateChannel registers a new channel.
func (b *Bus) CreateChannel(name string) (*Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, found := b.channels.Get(name); found {
		return nil, fmt.Errorf("%w: %q", ErrChannelExists, name)
	}
	ch := newChannel(name, b.log)
	b.channels.Put(name, ch)
	b.log.DebugCtx("channel created", map[string]any{"channel": name})
	return ch, nil
}

// RemoveChannel disconnects every subscriber of name and drops it.
// Events still pending on it are discarded. The system channel stays.
func (b *Bus) RemoveChannel(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == b.system {
		return fmt.Errorf("%w: %q", ErrSystemChannel, name)
	}
	v, found := b.channels.Get(name)
	if !found {
		return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	v.(*Channel).DisconnectAll()
	b.channels.Remove(name)
	b.log.DebugCtx("channel removed", map[string]any{"channel": name})
	return nil
}

// Channel looks up a channel by name.
func (b *Bus) Channel(name string) (*Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, found := b.channels.Get(name)
	if !found {
		return nil, false
	}
	return v.(*Channel), true
}

// Channels returns the channel names in registration order.
func (b *Bus) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, b.channels.Size())
	for _, k := range b.channels.Keys() {
		names = append(names, k.(string))
	}
	return names
}

func (b *Bus) all() []*Channel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	chs := make([]*Channel, 0, b.channels.Size())
	for _, v := range b.channels.Values() {
		chs = append(chs, v.(*Channel))
	}
	return chs
}

// Emit pushes e onto the named channel. An empty name broadcasts to every channel.
func (b *Bus) Emit(name string, e Event) error {
	if e == nil {
		return ErrNilEvent
	}
	if name == "" {
		for _, ch := range b.all() {
			if err := ch.Push(e); err != nil {
				return err
			}
		}
		return nil
	}

	ch, ok := b.Channel(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	return ch.Push(e)
}

// EmitSystem pushes e onto the system channel.
func (b *Bus) EmitSystem(e Event) error {
	return b.Emit(b.system, e)
}

// Connect subscribes s to the named channel.
func (b *Bus) Connect(name string, s Subscriber) error {
	ch, ok := b.Channel(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	return ch.Connect(s)
}

// Disconnect unsubscribes s from the named channel.
func (b *Bus) Disconnect(name string, s Subscriber) error {
	ch, ok := b.Channel(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	ch.Disconnect(s)
	return nil
}

// Deliver runs one delivery pass over every channel and reports how many
// events were delivered.
func (b *Bus) Deliver() int {
	total := 0
	for _, ch := range b.all() {
		total += ch.Deliver()
	}
	return total
}

// Task hooks. The bus has no lifecycle of its own beyond delivering.

func (b *Bus) Name() string     { return BusTaskName }
func (b *Bus) Init() error      { return nil }
func (b *Bus) Start() error     { return nil }
func (b *Bus) Stop() error      { return nil }
func (b *Bus) OnSuspend() error { return nil }
func (b *Bus) OnResume() error  { return nil }

// Update delivers pending events on every channel.
func (b *Bus) Update() error {
	b.Deliver()
	return nil
}
