package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

type memStore struct {
	mu     sync.Mutex
	order  []uuid.UUID
	events map[uuid.UUID]OutboxEvent
}

func newMemStore(events ...telemetry.Event) *memStore {
	s := &memStore{events: map[uuid.UUID]OutboxEvent{}}
	for _, e := range events {
		s.order = append(s.order, e.ID)
		s.events[e.ID] = OutboxEvent{Event: e, CreatedAt: e.Timestamp}
	}
	return s
}

func (s *memStore) FetchUnsent(_ context.Context, limit int32) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, id := range s.order {
		if e := s.events[id]; e.SentAt == nil && int32(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) FetchByID(_ context.Context, id uuid.UUID) (OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.SentAt != nil {
		return OutboxEvent{}, ErrNotFound
	}
	return e, nil
}

func (s *memStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	now := time.Now()
	e.SentAt = &now
	s.events[id] = e
	return nil
}

func (s *memStore) CountUnsent(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.SentAt == nil {
			n++
		}
	}
	return n, nil
}

type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	published []uuid.UUID
}

func (p *flakyPublisher) Publish(_ context.Context, e OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, e.Event.ID)
	return nil
}

func testEvent(t *testing.T, typ telemetry.EventType, index int) telemetry.Event {
	t.Helper()
	ev, err := telemetry.NewEvent(uuid.New(), index, typ, telemetry.RoundPausedPayload{RemainingMs: 1500})
	if err != nil {
		t.Fatal(err)
	}
	ev.GameID = "defuse"
	return ev
}

func fastConfig(retries int) RelayConfig {
	return RelayConfig{MaxRetries: retries, RetryDelay: time.Millisecond, BatchSize: 10}
}

func TestProcessUnsentRelaysInOrderAndMarksSent(t *testing.T) {
	a := testEvent(t, telemetry.EventTypeRoundStarted, 1)
	b := testEvent(t, telemetry.EventTypeRoundPaused, 1)
	store := newMemStore(a, b)
	pub := &flakyPublisher{}
	relay := NewRelay(store, pub, fastConfig(0))

	n, err := relay.ProcessUnsent(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("ProcessUnsent = %d, %v", n, err)
	}
	if len(pub.published) != 2 || pub.published[0] != a.ID || pub.published[1] != b.ID {
		t.Fatalf("published %v", pub.published)
	}
	if pending, _ := store.CountUnsent(context.Background()); pending != 0 {
		t.Fatalf("%d events still pending", pending)
	}

	n, _ = relay.ProcessUnsent(context.Background())
	if n != 0 {
		t.Fatalf("second pass relayed %d events", n)
	}
}

func TestRelayRetriesThenSucceeds(t *testing.T) {
	e := testEvent(t, telemetry.EventTypeActionCommitted, 2)
	store := newMemStore(e)
	pub := &flakyPublisher{failures: 2}
	relay := NewRelay(store, pub, fastConfig(3))

	if err := relay.HandleNotification(context.Background(), e.ID.String()); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	processed, failed, last := relay.Stats()
	if processed != 1 || failed != 0 || last.IsZero() {
		t.Fatalf("stats = %d, %d, %v", processed, failed, last)
	}
}

func TestRelayLeavesEventUnsentWhenRetriesRunOut(t *testing.T) {
	e := testEvent(t, telemetry.EventTypeRoundTimedOut, 1)
	store := newMemStore(e)
	relay := NewRelay(store, &flakyPublisher{failures: 5}, fastConfig(1))

	if err := relay.HandleNotification(context.Background(), e.ID.String()); err == nil {
		t.Fatal("expected an error")
	}
	if pending, _ := store.CountUnsent(context.Background()); pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}
	if _, failed, _ := relay.Stats(); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func TestHandleNotificationRejectsBadIDs(t *testing.T) {
	relay := NewRelay(newMemStore(), &flakyPublisher{}, fastConfig(0))
	if err := relay.HandleNotification(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("accepted a malformed ID")
	}
	if err := relay.HandleNotification(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEnvelopeAndSubject(t *testing.T) {
	e := testEvent(t, telemetry.EventTypeRoundPaused, 3)
	oe := OutboxEvent{Event: e}

	if got, want := Subject("game.events", oe), "game.events.defuse.RoundPaused"; got != want {
		t.Fatalf("subject = %q, want %q", got, want)
	}
	env := NewEnvelope(oe)
	if env.EventID != e.ID.String() || env.RoundIndex != 3 || env.GameID != "defuse" {
		t.Fatalf("envelope = %+v", env)
	}
	var p telemetry.RoundPausedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.RemainingMs != 1500 {
		t.Fatalf("payload = %s (%v)", env.Payload, err)
	}
}

func TestHealthReportsPendingAndDisconnectedBus(t *testing.T) {
	store := newMemStore(testEvent(t, telemetry.EventTypeRoundStarted, 1))
	h := &HealthChecker{
		Relay:          NewRelay(store, &flakyPublisher{}, fastConfig(0)),
		Store:          store,
		BusConnected:   func() bool { return false },
		ListenerActive: func() bool { return true },
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.PendingEvents != 1 || status.BusConnected || !status.ListenerActive {
		t.Fatalf("status = %+v", status)
	}
}

func TestMetricsExposeRelayCounters(t *testing.T) {
	sent := testEvent(t, telemetry.EventTypeRoundStarted, 1)
	stuck := testEvent(t, telemetry.EventTypeRoundStarted, 2)
	store := newMemStore(sent, stuck)
	relay := NewRelay(store, &flakyPublisher{}, fastConfig(0))
	if err := relay.HandleNotification(context.Background(), sent.ID.String()); err != nil {
		t.Fatal(err)
	}
	h := &HealthChecker{Relay: relay, Store: store, BusConnected: func() bool { return true }}

	srv := httptest.NewServer(h.MetricsHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, line := range []string{
		"outbox_healthy 1",
		"outbox_events_processed_total 1",
		"outbox_events_failed_total 0",
		"outbox_pending_events 1",
		"go_goroutines ",
	} {
		if !strings.Contains(string(body), line) {
			t.Errorf("metrics missing %q:\n%s", line, body)
		}
	}
}

func TestSchemaNotifiesListenerChannel(t *testing.T) {
	want := "pg_notify('" + NotifyChannel + "'"
	if !strings.Contains(schema, want) {
		t.Fatalf("schema trigger does not notify %q", NotifyChannel)
	}
	if n := strings.Count(schema, "pg_notify("); n != 1 {
		t.Fatalf("schema has %d pg_notify calls, want 1", n)
	}
}
