package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/cadence/internal/events"
	"github.com/aristath/cadence/internal/logging"
	"github.com/aristath/cadence/internal/scheduler"
)

// JournalTaskName is the name the journal registers under.
const JournalTaskName = "Journal"

// Journal records lifecycle events into a Store. It subscribes to the
// system channel and flushes its buffer once per tick, in one transaction.
type Journal struct {
	scheduler.Base

	store   Store
	session string
	log     *logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending []Record
	began   bool
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithSessionID overrides the generated session id.
func WithSessionID(id string) JournalOption {
	return func(j *Journal) { j.session = id }
}

// WithJournalLogger sets the journal's logger.
func WithJournalLogger(l *logging.Logger) JournalOption {
	return func(j *Journal) { j.log = l.WithComponent("journal") }
}

// NewJournal creates a journal writing to store under a fresh session id.
func NewJournal(store Store, opts ...JournalOption) *Journal {
	j := &Journal{
		Base:    scheduler.Base{TaskName: JournalTaskName},
		store:   store,
		session: uuid.NewString(),
		log:     logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SessionID returns the id records are written under.
func (j *Journal) SessionID() string { return j.session }

// OnEvent buffers task lifecycle events and ignores everything else.
func (j *Journal) OnEvent(_ string, e events.Event) {
	te, ok := events.As[scheduler.TaskEvent](e)
	if !ok {
		return
	}
	ts := te.Timestamp
	if ts.IsZero() {
		ts = j.now()
	}
	j.mu.Lock()
	j.pending = append(j.pending, Record{
		SessionID: j.session,
		TaskID:    uint32(te.ID),
		TaskName:  te.Name,
		TaskType:  te.Type.String(),
		Kind:      te.EventType(),
		Tick:      te.Tick,
		Timestamp: ts,
	})
	j.mu.Unlock()
}

// Start opens the session.
func (j *Journal) Start() error {
	if err := j.store.BeginSession(context.Background(), j.session, j.now()); err != nil {
		return err
	}
	j.mu.Lock()
	j.began = true
	j.mu.Unlock()
	j.log.InfoCtx("session started", map[string]any{"session": j.session})
	return nil
}

func (j *Journal) Update() error { return j.Flush() }

// Stop flushes what has been buffered so far. Events raised by tasks torn
// down after the journal are written by Close.
func (j *Journal) Stop() error { return j.Flush() }

// Flush writes buffered records. On failure the batch is kept for the next flush.
func (j *Journal) Flush() error {
	j.mu.Lock()
	if !j.began || len(j.pending) == 0 {
		j.mu.Unlock()
		return nil
	}
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if err := j.store.AppendRecords(context.Background(), j.session, batch); err != nil {
		j.mu.Lock()
		j.pending = append(batch, j.pending...)
		j.mu.Unlock()
		return fmt.Errorf("journal flush: %w", err)
	}
	j.log.Debugf("flushed %d records", len(batch))
	return nil
}

// Pending returns the number of buffered records.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Close flushes remaining records and stamps the session end.
func (j *Journal) Close() error {
	j.mu.Lock()
	began := j.began
	j.mu.Unlock()
	if !began {
		return nil
	}
	if err := j.Flush(); err != nil {
		return err
	}
	return j.store.EndSession(context.Background(), j.session, j.now())
}
