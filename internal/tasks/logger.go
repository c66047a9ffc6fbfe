package tasks

import (
	"sync/atomic"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/scheduler"
)

// Connector is the part of the event bus a subscriber task attaches through.
type Connector interface {
	Connect(channel string, s events.Subscriber) error
	Disconnect(channel string, s events.Subscriber) error
}

// EventLogger logs every event delivered on its channels. It is connected
// while running and disconnected when stopped.
type EventLogger struct {
	scheduler.Base

	bus      Connector
	channels []string
	log      *logging.Logger
	received atomic.Int64
}

// NewEventLogger creates a logger for the given channels.
func NewEventLogger(name string, bus Connector, channels []string, log *logging.Logger) *EventLogger {
	if log == nil {
		log = logging.Component("tasks")
	}
	return &EventLogger{
		Base:     scheduler.Base{TaskName: name},
		bus:      bus,
		channels: channels,
		log:      log,
	}
}

func (l *EventLogger) Start() error {
	for i, ch := range l.channels {
		if err := l.bus.Connect(ch, l); err != nil {
			for _, done := range l.channels[:i] {
				_ = l.bus.Disconnect(done, l)
			}
			return err
		}
	}
	return nil
}

func (l *EventLogger) Update() error { return nil }

func (l *EventLogger) Stop() error {
	var first error
	for _, ch := range l.channels {
		if err := l.bus.Disconnect(ch, l); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *EventLogger) OnEvent(channel string, e events.Event) {
	l.received.Add(1)
	fields := map[string]any{
		"task":     l.Name(),
		"channel":  channel,
		"type":     e.EventType(),
		"priority": e.Priority().String(),
	}
	if m, ok := events.As[events.Message](e); ok {
		fields["kind"] = m.Kind
		fields["source"] = m.Source
		if m.Payload != nil {
			fields["payload"] = m.Payload
		}
	}
	l.log.InfoCtx("event", fields)
}

// Received returns how many events have been delivered to the logger.
func (l *EventLogger) Received() int64 { return l.received.Load() }
