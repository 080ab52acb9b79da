package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type collectingWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []Event
}

func (w *collectingWriter) Write(_ context.Context, event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("store unavailable")
	}
	w.events = append(w.events, event)
	return nil
}

func (w *collectingWriter) snapshot() (int, []Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls, append([]Event(nil), w.events...)
}

func testEvent(t *testing.T, round int) Event {
	t.Helper()
	ev, err := NewEvent(uuid.New(), round, EventTypeRoundStarted, RoundStartedPayload{ScheduledDurationMs: 1000})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	w := &collectingWriter{}
	cfg := DefaultAsyncConfig("test")
	cfg.BufferSize = 2
	s := NewAsyncSink(w, cfg)

	for i := 1; i <= 5; i++ {
		s.Record(testEvent(t, i))
	}

	st := s.Stats()
	if st.Recorded != 5 {
		t.Errorf("recorded = %d, want 5", st.Recorded)
	}
	if st.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", st.Dropped)
	}
	if st.Pending != 2 {
		t.Errorf("pending = %d, want 2", st.Pending)
	}
}

func TestAsyncSinkRetriesThenWrites(t *testing.T) {
	w := &collectingWriter{failures: 2}
	cfg := DefaultAsyncConfig("retry")
	cfg.RetryDelay = time.Millisecond
	s := NewAsyncSink(w, cfg)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	ev := testEvent(t, 1)
	s.Record(ev)
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop after Close")
	}

	calls, events := w.snapshot()
	if calls != 3 {
		t.Errorf("writer calls = %d, want 3", calls)
	}
	if len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("written events = %+v, want the recorded event", events)
	}
	if st := s.Stats(); st.Written != 1 || st.Failed != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAsyncSinkGivesUpAfterMaxRetries(t *testing.T) {
	w := &collectingWriter{failures: 10}
	cfg := DefaultAsyncConfig("failing")
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	s := NewAsyncSink(w, cfg)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	s.Record(testEvent(t, 1))
	s.Close()
	<-done

	calls, _ := w.snapshot()
	if calls != 2 {
		t.Errorf("writer calls = %d, want 2", calls)
	}
	if st := s.Stats(); st.Failed != 1 || st.Written != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAsyncSinkRecordAfterCloseIsDropped(t *testing.T) {
	s := NewAsyncSink(&collectingWriter{}, DefaultAsyncConfig("closed"))
	s.Close()
	s.Close()
	s.Record(testEvent(t, 1))
	if st := s.Stats(); st.Dropped != 1 || st.Recorded != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFanoutDeliversInOrder(t *testing.T) {
	var got []string
	a := SinkFunc(func(e Event) { got = append(got, "a:"+string(e.Type)) })
	b := SinkFunc(func(e Event) { got = append(got, "b:"+string(e.Type)) })

	Fanout{a, b}.Record(testEvent(t, 1))

	want := []string{"a:RoundStarted", "b:RoundStarted"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodePayload(t *testing.T) {
	ev := testEvent(t, 2)
	var p RoundStartedPayload
	if err := ev.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.ScheduledDurationMs != 1000 {
		t.Errorf("scheduled = %d, want 1000", p.ScheduledDurationMs)
	}

	empty := Event{ID: uuid.New()}
	if err := empty.DecodePayload(&p); err == nil {
		t.Error("expected error for empty payload")
	}
}
