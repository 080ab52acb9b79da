package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/round"
	"github.com/mcdev12/mindgames/go/internal/session"
)

type fixture struct {
	manager *session.Manager
	cm      *ConnectionManager
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := games.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	cm := NewConnectionManager(nil, DefaultConnectionConfig())
	m := session.NewManager(catalog, session.DefaultConfig(),
		session.WithManagerClock(clockwork.NewFakeClock()),
		session.WithManagerPresenter(cm),
	)
	cm.SetCommander(m)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		m.Shutdown()
		cancel()
	})
	return &fixture{manager: m, cm: cm, server: srv}
}

func (f *fixture) dial(t *testing.T, playID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/play?play_id=" + playID + "&player_id=p1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

// readUntil skips frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readMessage(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("expected frame never arrived")
	return ServerMessage{}
}

func ackFor(cmd MessageType) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MessageTypeAck && m.Command == cmd }
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPlayConnectionCommands(t *testing.T) {
	f := newFixture(t)
	info, _, err := f.manager.Create(session.CreatePlayRequest{GameID: "risk-safe", PlayerID: "p1", Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	conn := f.dial(t, info.PlayID)

	first := readMessage(t, conn)
	if first.Type != MessageTypeSnapshot || first.Snapshot == nil || first.Snapshot.Status != round.StateIdle {
		t.Fatalf("first frame = %+v", first)
	}

	send(t, conn, `{"type":"start"}`)
	ack := readUntil(t, conn, ackFor(MessageTypeStart))
	if !ack.Accepted || ack.Snapshot.Status != round.StateActive || ack.Snapshot.RoundIndex != 1 {
		t.Fatalf("start ack = %+v", ack)
	}

	send(t, conn, `{"type":"submit","round":1,"action":"safe"}`)
	ack = readUntil(t, conn, ackFor(MessageTypeSubmit))
	if !ack.Accepted || ack.Snapshot.Score != 500 {
		t.Fatalf("submit ack = %+v", ack)
	}

	send(t, conn, `{"type":"submit","round":1,"action":"risky"}`)
	ack = readUntil(t, conn, ackFor(MessageTypeSubmit))
	if ack.Accepted {
		t.Fatal("second submit for the same round was accepted")
	}

	send(t, conn, `{"type":"dance"}`)
	bad := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeError })
	if bad.Command != "dance" {
		t.Fatalf("error frame = %+v", bad)
	}
}

func TestSnapshotsAreBroadcast(t *testing.T) {
	f := newFixture(t)
	info, _, err := f.manager.Create(session.CreatePlayRequest{GameID: "risk-safe", Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	watcher := f.dial(t, info.PlayID)
	readMessage(t, watcher)

	if ok, _, _ := f.manager.Start(info.PlayID); !ok {
		t.Fatal("Start rejected")
	}
	msg := readUntil(t, watcher, func(m ServerMessage) bool { return m.Type == MessageTypeSnapshot })
	if msg.Snapshot.Status != round.StateActive || msg.PlayID != info.PlayID {
		t.Fatalf("broadcast = %+v", msg)
	}
}

func TestClosedPlayDisconnects(t *testing.T) {
	f := newFixture(t)
	info, _, err := f.manager.Create(session.CreatePlayRequest{GameID: "risk-safe", Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	conn := f.dial(t, info.PlayID)
	readMessage(t, conn)

	if err := f.manager.Close(info.PlayID); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeClosed })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := f.cm.GetConnectionStats()
		if stats["total_connections"] == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connections still registered: %v", stats)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnknownPlayIsRejected(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/play?play_id=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded for an unknown play")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %v", resp)
	}

	resp2, err := http.Get(f.server.URL + "/ws/play")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing play_id status = %d", resp2.StatusCode)
	}
}

func TestConnectionStats(t *testing.T) {
	f := newFixture(t)
	info, _, err := f.manager.Create(session.CreatePlayRequest{GameID: "emotion-catcher", Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	conn := f.dial(t, info.PlayID)
	readMessage(t, conn)

	resp, err := http.Get(f.server.URL + "/ws/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats struct {
		Total int            `json:"total_connections"`
		Plays map[string]int `json:"play_connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Plays[info.PlayID] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestStaleSnapshotsAreSkipped(t *testing.T) {
	cm := NewConnectionManager(nil, DefaultConnectionConfig())
	conn := &Connection{ID: "c1", PlayID: "play", Send: make(chan []byte, 8), manager: cm}
	cm.registerConnection(conn)

	snap := func(v uint64) ServerMessage {
		return snapshotMessage("play", round.Snapshot{Version: v})
	}
	cm.handleBroadcast(broadcast{playID: "play", msg: snap(3)})
	cm.handleBroadcast(broadcast{playID: "play", msg: snap(2)})
	cm.handleBroadcast(broadcast{playID: "play", msg: snap(3)})
	cm.reply(conn, ServerMessage{Type: MessageTypeAck, PlayID: "play", Command: MessageTypeSync, Snapshot: &round.Snapshot{Version: 1}})
	cm.handleBroadcast(broadcast{playID: "play", msg: snap(4)})

	var got []string
	for len(conn.Send) > 0 {
		var msg ServerMessage
		if err := json.Unmarshal(<-conn.Send, &msg); err != nil {
			t.Fatal(err)
		}
		got = append(got, fmt.Sprintf("%s/%d", msg.Type, msg.Snapshot.Version))
	}
	want := []string{"snapshot/3", "ack/1", "snapshot/4"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("frames = %v, want %v", got, want)
	}
}

func TestFirstFrameMatchesCurrentVersion(t *testing.T) {
	f := newFixture(t)
	info, _, err := f.manager.Create(session.CreatePlayRequest{GameID: "risk-safe", Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Start(info.PlayID)
	f.manager.Pause(info.PlayID)
	for len(f.cm.broadcastCh) > 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	conn := f.dial(t, info.PlayID)
	first := readMessage(t, conn)
	current, err := f.manager.Snapshot(info.PlayID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Type != MessageTypeSnapshot || first.Snapshot.Status != round.StatePaused || first.Snapshot.Version != current.Version {
		t.Fatalf("first frame = %+v, want version %d", first.Snapshot, current.Version)
	}

	f.manager.Resume(info.PlayID)
	next := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == MessageTypeSnapshot })
	if next.Snapshot.Status != round.StateActive || next.Snapshot.Version <= first.Snapshot.Version {
		t.Fatalf("next frame = %+v", next.Snapshot)
	}
}
