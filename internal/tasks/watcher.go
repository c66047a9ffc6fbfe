package tasks

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/scheduler"
)

// FileEvent is the payload of messages published by a FileWatcher.
type FileEvent struct {
	Path string
	Op   string
}

// FileWatcher publishes a Message for every change under a path. It blocks
// on the filesystem, so it is meant to be registered as a thread-backed task.
type FileWatcher struct {
	scheduler.Base

	pub     Publisher
	channel string
	path    string
	prio    events.Priority
	poll    time.Duration
	log     *logging.Logger

	watcher *fsnotify.Watcher
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(name string, pub Publisher, channel, path string, prio events.Priority, log *logging.Logger) *FileWatcher {
	if log == nil {
		log = logging.Component("tasks")
	}
	return &FileWatcher{
		Base:    scheduler.Base{TaskName: name},
		pub:     pub,
		channel: channel,
		path:    path,
		prio:    prio,
		poll:    50 * time.Millisecond,
		log:     log,
	}
}

func (w *FileWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	w.watcher = watcher
	return nil
}

// Update waits up to the poll interval for one filesystem event.
func (w *FileWatcher) Update() error {
	select {
	case event, ok := <-w.watcher.Events:
		if !ok {
			return nil
		}
		return w.pub.Emit(w.channel, events.Message{
			Kind:      "file." + opName(event.Op),
			Source:    w.Name(),
			Payload:   FileEvent{Path: event.Name, Op: event.Op.String()},
			Prio:      w.prio,
			Timestamp: time.Now(),
		})
	case err, ok := <-w.watcher.Errors:
		if ok {
			w.log.Warnf("watcher error on %s: %v", w.path, err)
		}
		return nil
	case <-time.After(w.poll):
		return nil
	}
}

func (w *FileWatcher) Stop() error {
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
