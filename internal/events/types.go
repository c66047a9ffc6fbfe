package events

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Priority orders pending events within a channel. Higher values are delivered first.
type Priority int32

// Priority bands. Immediate bypasses the queue and is delivered synchronously on push.
const (
	PriorityLast      Priority = -3
	PriorityLow       Priority = -2
	PriorityBelow     Priority = -1
	PriorityNormal    Priority = 0
	PriorityAbove     Priority = 1
	PriorityHigh      Priority = 2
	PriorityFirst     Priority = 3
	PriorityImmediate Priority = math.MaxInt32
)

var priorityNames = map[string]Priority{
	"last":      PriorityLast,
	"low":       PriorityLow,
	"below":     PriorityBelow,
	"normal":    PriorityNormal,
	"above":     PriorityAbove,
	"high":      PriorityHigh,
	"first":     PriorityFirst,
	"immediate": PriorityImmediate,
}

// ParsePriority accepts a band name ("high", "immediate", ...) or an integer.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, nil
	}
	if p, ok := priorityNames[s]; ok {
		return p, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return PriorityNormal, fmt.Errorf("invalid priority %q", s)
	}
	return Priority(n), nil
}

func (p Priority) String() string {
	for name, v := range priorityNames {
		if v == p {
			return name
		}
	}
	return fmt.Sprintf("priority(%d)", int32(p))
}

// Event is the base interface for everything carried by a Channel.
type Event interface {
	EventType() string
	Priority() Priority
}

// Is reports whether e is of concrete type T.
func Is[T Event](e Event) bool {
	_, ok := e.(T)
	return ok
}

// As narrows e to T.
func As[T Event](e Event) (T, bool) {
	t, ok := e.(T)
	return t, ok
}

// Message is a general-purpose event carrying a kind and a payload.
type Message struct {
	Kind      string
	Source    string
	Payload   any
	Prio      Priority
	Timestamp time.Time
}

// Event type constants.
const (
	EventTypeMessage = "message"
)

func (m Message) EventType() string  { return EventTypeMessage }
func (m Message) Priority() Priority { return m.Prio }
