// Package tasks provides the built-in task kinds a workload manifest can name.
package tasks

import (
	"github.com/aristath/cadence/internal/events"
)

// Publisher is the part of the event bus tasks emit through.
type Publisher interface {
	Emit(channel string, e events.Event) error
}

// Kind names accepted by manifests.
const (
	KindEmit      = "emit"
	KindCron      = "cron"
	KindWatch     = "watch"
	KindLog       = "log"
	KindCountdown = "countdown"
	KindNoop      = "noop"
)

// Kinds lists every built-in kind.
var Kinds = []string{KindEmit, KindCron, KindWatch, KindLog, KindCountdown, KindNoop}

// IsKind reports whether name is a built-in kind.
func IsKind(name string) bool {
	for _, k := range Kinds {
		if k == name {
			return true
		}
	}
	return false
}
