package tasks

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/scheduler"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression. Five fields, six with leading
// seconds, and descriptors such as "@every 5s" are accepted.
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// CronEmitter publishes a Message whenever its schedule fires. It checks the
// schedule once per update, so firings are as precise as the tick interval.
type CronEmitter struct {
	scheduler.Base

	pub      Publisher
	channel  string
	kind     string
	schedule cron.Schedule
	prio     events.Priority
	now      func() time.Time

	next  time.Time
	fired int
}

// CronOption configures a CronEmitter.
type CronOption func(*CronEmitter)

// WithCronClock overrides the time source.
func WithCronClock(now func() time.Time) CronOption {
	return func(c *CronEmitter) { c.now = now }
}

// NewCronEmitter creates a cron emitter from a schedule expression.
func NewCronEmitter(name string, pub Publisher, channel, kind, spec string, prio events.Priority, opts ...CronOption) (*CronEmitter, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = name
	}
	c := &CronEmitter{
		Base:     scheduler.Base{TaskName: name},
		pub:      pub,
		channel:  channel,
		kind:     kind,
		schedule: schedule,
		prio:     prio,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CronEmitter) Start() error {
	c.next = c.schedule.Next(c.now())
	return nil
}

// OnResume skips firings missed while suspended.
func (c *CronEmitter) OnResume() error {
	c.next = c.schedule.Next(c.now())
	return nil
}

func (c *CronEmitter) Update() error {
	now := c.now()
	if now.Before(c.next) {
		return nil
	}
	c.next = c.schedule.Next(now)
	c.fired++
	return c.pub.Emit(c.channel, events.Message{
		Kind:      c.kind,
		Source:    c.Name(),
		Payload:   c.fired,
		Prio:      c.prio,
		Timestamp: now,
	})
}

// Next returns the next firing time.
func (c *CronEmitter) Next() time.Time { return c.next }

// Fired returns how many times the schedule has fired.
func (c *CronEmitter) Fired() int { return c.fired }
