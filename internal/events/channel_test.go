package events

import (
	"sync"
	"testing"

	"github.com/aristath/cadence/internal/logging"
)

type testEvent struct {
	id   int
	prio Priority
}

func (e testEvent) EventType() string  { return "test" }
func (e testEvent) Priority() Priority { return e.prio }

// recorder collects delivered event ids.
type recorder struct {
	mu  sync.Mutex
	got []int
	on  func(channel string, e Event)
}

func (r *recorder) OnEvent(channel string, e Event) {
	r.mu.Lock()
	if te, ok := As[testEvent](e); ok {
		r.got = append(r.got, te.id)
	}
	r.mu.Unlock()
	if r.on != nil {
		r.on(channel, e)
	}
}

func (r *recorder) ids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.got))
	copy(out, r.got)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testChannel() *Channel {
	return newChannel("test", logging.NewNop())
}

func TestChannelDeliverOrder(t *testing.T) {
	tests := []struct {
		name   string
		pushed []testEvent
		want   []int
	}{
		{
			name:   "higher priority first",
			pushed: []testEvent{{1, PriorityLow}, {2, PriorityHigh}, {3, PriorityNormal}},
			want:   []int{2, 3, 1},
		},
		{
			name:   "fifo among equal priorities",
			pushed: []testEvent{{1, PriorityNormal}, {2, PriorityNormal}, {3, PriorityNormal}},
			want:   []int{1, 2, 3},
		},
		{
			name:   "mixed bands keep fifo inside each band",
			pushed: []testEvent{{1, PriorityLow}, {2, PriorityHigh}, {3, PriorityLow}, {4, PriorityHigh}, {5, PriorityLast}},
			want:   []int{2, 4, 1, 3, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := testChannel()
			rec := &recorder{}
			ch.Connect(rec)

			for _, e := range tt.pushed {
				if err := ch.Push(e); err != nil {
					t.Fatalf("Push() error = %v", err)
				}
			}
			if len(rec.ids()) != 0 {
				t.Fatalf("events delivered before Deliver(): %v", rec.ids())
			}

			if n := ch.Deliver(); n != len(tt.pushed) {
				t.Errorf("Deliver() = %d, want %d", n, len(tt.pushed))
			}
			if !equalInts(rec.ids(), tt.want) {
				t.Errorf("delivery order = %v, want %v", rec.ids(), tt.want)
			}
			if ch.Pending() != 0 {
				t.Errorf("Pending() = %d after deliver", ch.Pending())
			}
		})
	}
}

func TestChannelImmediateIsSynchronous(t *testing.T) {
	ch := testChannel()
	rec := &recorder{}
	ch.Connect(rec)

	ch.Push(testEvent{1, PriorityNormal})
	ch.Push(testEvent{2, PriorityImmediate})

	if got := rec.ids(); !equalInts(got, []int{2}) {
		t.Fatalf("after immediate push got %v, want [2]", got)
	}
	if ch.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", ch.Pending())
	}

	ch.Deliver()
	if got := rec.ids(); !equalInts(got, []int{2, 1}) {
		t.Errorf("got %v, want [2 1]", got)
	}
}

func TestChannelImmediateReentrant(t *testing.T) {
	ch := testChannel()
	rec := &recorder{}
	rec.on = func(_ string, e Event) {
		te := e.(testEvent)
		if te.id == 1 {
			// Pushing from inside an immediate delivery must not deadlock.
			ch.Push(testEvent{2, PriorityImmediate})
			ch.Push(testEvent{3, PriorityNormal})
			ch.Connect(&recorder{})
		}
	}
	ch.Connect(rec)

	ch.Push(testEvent{1, PriorityImmediate})

	if got := rec.ids(); !equalInts(got, []int{1, 2}) {
		t.Errorf("got %v, want [1 2]", got)
	}
	if ch.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", ch.Pending())
	}
	if ch.Subscribers() != 2 {
		t.Errorf("Subscribers() = %d, want 2", ch.Subscribers())
	}
}

func TestChannelPushDuringDeliverWaitsForNextCycle(t *testing.T) {
	ch := testChannel()
	rec := &recorder{}
	rec.on = func(_ string, e Event) {
		if e.(testEvent).id == 1 {
			ch.Push(testEvent{10, PriorityFirst})
		}
	}
	ch.Connect(rec)

	ch.Push(testEvent{1, PriorityNormal})
	ch.Push(testEvent{2, PriorityLow})

	if n := ch.Deliver(); n != 2 {
		t.Errorf("first Deliver() = %d, want 2", n)
	}
	if got := rec.ids(); !equalInts(got, []int{1, 2}) {
		t.Errorf("first cycle got %v, want [1 2]", got)
	}

	if n := ch.Deliver(); n != 1 {
		t.Errorf("second Deliver() = %d, want 1", n)
	}
	if got := rec.ids(); !equalInts(got, []int{1, 2, 10}) {
		t.Errorf("second cycle got %v, want [1 2 10]", got)
	}
}

func TestChannelConnectDisconnect(t *testing.T) {
	ch := testChannel()
	a, b := &recorder{}, &recorder{}

	ch.Connect(a)
	ch.Connect(a)
	ch.Connect(b)
	if ch.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", ch.Subscribers())
	}

	ch.Disconnect(&recorder{})
	if ch.Subscribers() != 2 {
		t.Errorf("disconnecting an unknown subscriber changed the list")
	}

	ch.Disconnect(a)
	ch.Push(testEvent{1, PriorityImmediate})
	if len(a.ids()) != 0 {
		t.Errorf("disconnected subscriber received %v", a.ids())
	}
	if !equalInts(b.ids(), []int{1}) {
		t.Errorf("remaining subscriber got %v", b.ids())
	}

	ch.DisconnectAll()
	if ch.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after DisconnectAll", ch.Subscribers())
	}
}

func TestChannelPanickingSubscriberIsContained(t *testing.T) {
	ch := testChannel()
	bad := &recorder{on: func(string, Event) { panic("boom") }}
	good := &recorder{}
	ch.Connect(bad)
	ch.Connect(good)

	ch.Push(testEvent{1, PriorityNormal})
	ch.Push(testEvent{2, PriorityImmediate})
	ch.Deliver()

	if !equalInts(good.ids(), []int{2, 1}) {
		t.Errorf("good subscriber got %v, want [2 1]", good.ids())
	}
}

func TestChannelPushNil(t *testing.T) {
	if err := testChannel().Push(nil); err != ErrNilEvent {
		t.Errorf("Push(nil) = %v, want ErrNilEvent", err)
	}
}

func TestChannelConcurrentPush(t *testing.T) {
	ch := testChannel()
	rec := &recorder{}
	ch.Connect(rec)

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ch.Push(testEvent{w*perWriter + i, PriorityNormal})
			}
		}(w)
	}

	// Deliver concurrently with the writers, then drain.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	delivered := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			delivered += ch.Deliver()
		}
	}
	delivered += ch.Deliver()

	if delivered != writers*perWriter {
		t.Errorf("delivered %d events, want %d", delivered, writers*perWriter)
	}
	if len(rec.ids()) != writers*perWriter {
		t.Errorf("subscriber got %d events, want %d", len(rec.ids()), writers*perWriter)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"high", PriorityHigh, false},
		{"IMMEDIATE", PriorityImmediate, false},
		{"7", Priority(7), false},
		{"-2", PriorityLow, false},
		{"urgent", PriorityNormal, true},
		{"12abc", PriorityNormal, true},
		{"3 4", PriorityNormal, true},
		{"99999999999", PriorityNormal, true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsAs(t *testing.T) {
	var e Event = Message{Kind: "ping", Prio: PriorityHigh}

	if !Is[Message](e) {
		t.Error("Is[Message] = false")
	}
	if Is[testEvent](e) {
		t.Error("Is[testEvent] = true")
	}
	m, ok := As[Message](e)
	if !ok || m.Kind != "ping" {
		t.Errorf("As[Message] = %+v, %v", m, ok)
	}
}
