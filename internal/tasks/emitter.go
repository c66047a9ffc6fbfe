package tasks

import (
	"time"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/scheduler"
)

// Emitter publishes a Message on a channel every N updates.
type Emitter struct {
	scheduler.Base

	pub     Publisher
	channel string
	kind    string
	every   int
	prio    events.Priority

	updates int
	sent    int
}

// NewEmitter creates an emitter. every values below 1 mean every update.
// An empty kind defaults to the task name.
func NewEmitter(name string, pub Publisher, channel, kind string, every int, prio events.Priority) *Emitter {
	if every < 1 {
		every = 1
	}
	if kind == "" {
		kind = name
	}
	return &Emitter{
		Base:    scheduler.Base{TaskName: name},
		pub:     pub,
		channel: channel,
		kind:    kind,
		every:   every,
		prio:    prio,
	}
}

func (e *Emitter) Update() error {
	e.updates++
	if e.updates%e.every != 0 {
		return nil
	}
	e.sent++
	return e.pub.Emit(e.channel, events.Message{
		Kind:      e.kind,
		Source:    e.Name(),
		Payload:   e.sent,
		Prio:      e.prio,
		Timestamp: time.Now(),
	})
}

// Sent returns how many messages have been published.
func (e *Emitter) Sent() int { return e.sent }
