package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/round"
)

// Commander executes client commands against a play. *session.Manager
// satisfies it.
type Commander interface {
	Start(playID string) (bool, round.Snapshot, error)
	Submit(playID string, in round.Input) (bool, round.Snapshot, error)
	Pause(playID string) (bool, round.Snapshot, error)
	Resume(playID string) (bool, round.Snapshot, error)
	Reset(playID string) (bool, round.Snapshot, error)
	Snapshot(playID string) (round.Snapshot, error)
}

// Connection is one websocket client watching a play.
type Connection struct {
	ID       string
	PlayID   string
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte
	manager  *ConnectionManager

	// mu orders snapshot frames; lastVersion is the newest one queued.
	mu          sync.Mutex
	hasSnapshot bool
	lastVersion uint64
}

type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	ReadBuffer     int
	WriteBuffer    int
	CheckOrigin    bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
		ReadBuffer:     1024,
		WriteBuffer:    1024,
		CheckOrigin:    true,
	}
}

type broadcast struct {
	playID string
	msg    ServerMessage
	close  bool
}

// ConnectionManager fans play snapshots out to websocket clients. It is
// the presenter for every play the session manager owns: PresentPlay and
// ClosePlay only enqueue, and the Start loop does the delivery.
type ConnectionManager struct {
	playConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	commander   Commander
	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan broadcast
}

func NewConnectionManager(commander Commander, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		playConnections: make(map[string]map[*Connection]bool),
		commander:       commander,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBuffer,
			WriteBufferSize: config.WriteBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return config.CheckOrigin
			},
		},
		config:      config,
		broadcastCh: make(chan broadcast, 1000),
	}
}

// SetCommander attaches the command target after construction, for when the
// commander itself needs this manager as its presenter.
func (cm *ConnectionManager) SetCommander(commander Commander) {
	cm.mu.Lock()
	cm.commander = commander
	cm.mu.Unlock()
}

func (cm *ConnectionManager) getCommander() Commander {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.commander
}

// Start delivers queued broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("Starting connection manager")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Connection manager shutting down")
			cm.closeAll()
			return
		case b := <-cm.broadcastCh:
			cm.handleBroadcast(b)
		}
	}
}

// PresentPlay queues a snapshot for the play's clients. It never blocks; a
// full queue drops the snapshot.
func (cm *ConnectionManager) PresentPlay(playID string, snapshot round.Snapshot) {
	cm.enqueue(broadcast{playID: playID, msg: snapshotMessage(playID, snapshot)})
}

// ClosePlay tells the play's clients it is gone and disconnects them.
func (cm *ConnectionManager) ClosePlay(playID string) {
	cm.enqueue(broadcast{
		playID: playID,
		msg:    ServerMessage{Type: MessageTypeClosed, PlayID: playID},
		close:  true,
	})
}

func (cm *ConnectionManager) enqueue(b broadcast) {
	select {
	case cm.broadcastCh <- b:
	default:
		log.Warn().
			Str("play_id", b.playID).
			Str("type", string(b.msg.Type)).
			Msg("Broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades r and starts the connection's pumps. The
// connection is registered before the current snapshot is read, so no
// transition falls between the first frame and the broadcasts that follow.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playID, playerID string) error {
	commander := cm.getCommander()
	if commander == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return errors.New("no commander attached")
	}
	if _, err := commander.Snapshot(playID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return fmt.Errorf("failed to load play %s: %w", playID, err)
	}

	wsConn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:       fmt.Sprintf("%s-%s-%d", playID, playerID, time.Now().UnixNano()),
		PlayID:   playID,
		PlayerID: playerID,
		Conn:     wsConn,
		Send:     make(chan []byte, cm.config.SendBuffer),
		manager:  cm,
	}
	cm.registerConnection(conn)

	go conn.writePump()
	go conn.readPump()

	snap, err := commander.Snapshot(playID)
	if err != nil {
		// Closed between the check and registration.
		cm.reply(conn, ServerMessage{Type: MessageTypeClosed, PlayID: playID})
		cm.unregisterConnection(conn)
		return nil
	}
	cm.reply(conn, snapshotMessage(playID, snap))

	log.Info().
		Str("connection_id", conn.ID).
		Str("play_id", playID).
		Str("player_id", playerID).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.playConnections[conn.PlayID] == nil {
		cm.playConnections[conn.PlayID] = make(map[*Connection]bool)
	}
	cm.playConnections[conn.PlayID][conn] = true
}

// unregisterConnection closes conn.Send exactly once. Sends happen under
// the read lock, so they never race the close.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	conns, ok := cm.playConnections[conn.PlayID]
	if !ok || !conns[conn] {
		return
	}
	delete(conns, conn)
	close(conn.Send)
	if len(conns) == 0 {
		delete(cm.playConnections, conn.PlayID)
	}
	log.Debug().
		Str("connection_id", conn.ID).
		Str("play_id", conn.PlayID).
		Msg("WebSocket connection unregistered")
}

func (cm *ConnectionManager) handleBroadcast(b broadcast) {
	data, err := json.Marshal(b.msg)
	if err != nil {
		log.Error().Err(err).Str("play_id", b.playID).Msg("Failed to marshal broadcast message")
		return
	}

	var drop []*Connection
	cm.mu.RLock()
	for conn := range cm.playConnections[b.playID] {
		if !conn.offer(b.msg, data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("play_id", b.playID).
				Msg("Connection send buffer full, closing connection")
			drop = append(drop, conn)
			continue
		}
		if b.close {
			drop = append(drop, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range drop {
		cm.unregisterConnection(conn)
	}
}

// reply sends msg to one connection, dropping it if the connection is
// gone or backed up.
func (cm *ConnectionManager) reply(conn *Connection, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("Failed to marshal reply")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.playConnections[conn.PlayID][conn] {
		return
	}
	if !conn.offer(msg, data) {
		log.Warn().Str("connection_id", conn.ID).Msg("Dropping reply, send buffer full")
	}
}

// offer queues data without blocking and reports false when the send
// buffer is full. Snapshot frames no newer than the last one queued are
// skipped. Callers hold cm.mu for reading so Send stays open.
func (c *Connection) offer(msg ServerMessage, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	versioned := msg.Type == MessageTypeSnapshot && msg.Snapshot != nil
	if versioned && c.hasSnapshot && msg.Snapshot.Version <= c.lastVersion {
		return true
	}
	select {
	case c.Send <- data:
	default:
		return false
	}
	if versioned {
		c.hasSnapshot = true
		c.lastVersion = msg.Snapshot.Version
	}
	return true
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, conns := range cm.playConnections {
		for conn := range conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()
	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// GetConnectionStats reports how many clients watch each play.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perPlay := make(map[string]int, len(cm.playConnections))
	for playID, conns := range cm.playConnections {
		perPlay[playID] = len(conns)
		total += len(conns)
	}
	return map[string]interface{}{
		"total_connections": total,
		"active_plays":      len(cm.playConnections),
		"play_connections":  perPlay,
		"queued_broadcasts": len(cm.broadcastCh),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("Failed to write message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("Failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("WebSocket read error")
			}
			return
		}
		c.handleClientMessage(message)
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.manager.reply(c, ServerMessage{Type: MessageTypeError, PlayID: c.PlayID, Error: "malformed message"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("play_id", c.PlayID).
		Str("type", string(msg.Type)).
		Msg("Received client message")

	commander := c.manager.getCommander()
	var (
		ok   bool
		snap round.Snapshot
		err  error
	)
	switch msg.Type {
	case MessageTypeStart:
		ok, snap, err = commander.Start(c.PlayID)
	case MessageTypeSubmit:
		var action any
		if len(msg.Action) > 0 {
			if err := json.Unmarshal(msg.Action, &action); err != nil {
				c.manager.reply(c, ServerMessage{Type: MessageTypeError, PlayID: c.PlayID, Command: msg.Type, Error: "malformed action"})
				return
			}
		}
		ok, snap, err = commander.Submit(c.PlayID, round.Input{Round: msg.Round, Value: action})
	case MessageTypePause:
		ok, snap, err = commander.Pause(c.PlayID)
	case MessageTypeResume:
		ok, snap, err = commander.Resume(c.PlayID)
	case MessageTypeReset:
		ok, snap, err = commander.Reset(c.PlayID)
	case MessageTypeSync:
		snap, err = commander.Snapshot(c.PlayID)
		ok = err == nil
	default:
		c.manager.reply(c, ServerMessage{Type: MessageTypeError, PlayID: c.PlayID, Command: msg.Type, Error: "unknown command"})
		return
	}

	if err != nil {
		c.manager.reply(c, ServerMessage{Type: MessageTypeError, PlayID: c.PlayID, Command: msg.Type, Error: err.Error()})
		return
	}
	c.manager.reply(c, ServerMessage{
		Type:     MessageTypeAck,
		PlayID:   c.PlayID,
		Command:  msg.Type,
		Accepted: ok,
		Snapshot: &snap,
	})
}
