// Package conn owns the single broker connection: its lifecycle, STOMP
// handshake, heartbeats, automatic reconnection, and low-level send/receive
// framing. Everything else sends through the Manager but never manages the
// transport directly.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/stomp"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateErrored      State = "errored"
)

// ErrNotConnected is returned by outward-facing sends attempted while the
// connection is down. Nothing is queued; the caller decides whether to
// surface it.
var ErrNotConnected = errors.New("not connected")

// EventHandler receives decoded inbound traffic. The Manager holds exactly
// one handler at a time; replacing it is an explicit, typed operation.
type EventHandler interface {
	// HandleConnected runs after the handshake and the fixed queue
	// subscriptions, on every connect and reconnect.
	HandleConnected()
	HandleMessage(destination string, msg models.Message)
	HandleTyping(destination string, ev models.TypingEvent)
}

// SubscriptionSource supplies the channel subscriptions to replay after a
// reconnect; the server keeps no subscription state across connections.
type SubscriptionSource interface {
	ActiveDestinations() []string
}

// Config controls the Manager. Username doubles as login and passcode: trust
// is pre-established by the request/response login, the broker only needs
// the identity to bind the per-user queues.
type Config struct {
	URL               string
	Username          string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	Dialer            *websocket.Dialer
}

const (
	defaultHeartbeatInterval = 4 * time.Second
	defaultReconnectDelay    = 5 * time.Second

	// Missing this many heartbeat intervals from the server counts as a
	// dead connection.
	heartbeatTolerance = 2.5
)

// Manager owns the websocket connection exclusively.
type Manager struct {
	cfg     Config
	handler EventHandler
	source  SubscriptionSource

	mu          sync.Mutex
	conn        *websocket.Conn
	state       State
	closing     bool
	connID      string
	connectedAt time.Time
	subSeq      int
	done        chan struct{}

	writeMu sync.Mutex
}

// NewManager builds a Manager; Connect must still be called.
func NewManager(cfg Config) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	m := &Manager{cfg: cfg, state: StateDisconnected}
	observability.SetConnectionState(string(StateDisconnected))
	return m
}

// SetHandler installs the event handler. Must be called before Connect.
func (m *Manager) SetHandler(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// SetSubscriptionSource installs the reconnect replay source.
func (m *Manager) SetSubscriptionSource(s SubscriptionSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = s
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnID identifies the current transport connection, empty when down.
func (m *Manager) ConnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Connect establishes the transport and performs the broker handshake.
// A second call while connected or connecting is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		log.Printf("connect ignored: already %s", m.state)
		return nil
	}
	m.closing = false
	err := m.dialLocked(ctx)
	handler := m.handler
	m.mu.Unlock()

	if err != nil {
		return err
	}
	observability.EmitConnEvent(ctx, m.ConnID(), m.cfg.Username, "ws_connect", "", time.Time{})
	if handler != nil {
		handler.HandleConnected()
	}
	return nil
}

// dialLocked performs transport dial, CONNECT handshake, fixed queue
// subscriptions, and subscription replay. Caller holds mu.
func (m *Manager) dialLocked(ctx context.Context) error {
	m.setStateLocked(StateConnecting)

	ws, _, err := m.cfg.Dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.setStateLocked(StateDisconnected)
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	heartbeatMS := strconv.FormatInt(m.cfg.HeartbeatInterval.Milliseconds(), 10)
	connectFrame := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, "1.2",
		stomp.HdrHeartBeat, heartbeatMS+","+heartbeatMS,
		stomp.HdrLogin, m.cfg.Username,
		stomp.HdrPasscode, m.cfg.Username,
	)
	if err := ws.WriteMessage(websocket.TextMessage, connectFrame.Marshal()); err != nil {
		ws.Close()
		m.setStateLocked(StateDisconnected)
		return fmt.Errorf("send CONNECT: %w", err)
	}

	reply, err := m.awaitFrame(ws)
	if err != nil {
		ws.Close()
		m.setStateLocked(StateDisconnected)
		return fmt.Errorf("handshake: %w", err)
	}
	if reply.Command != stomp.CmdConnected {
		ws.Close()
		m.setStateLocked(StateErrored)
		return fmt.Errorf("handshake rejected: %s %s", reply.Command, reply.Header(stomp.HdrMessage))
	}

	m.conn = ws
	m.connID = newConnID()
	m.connectedAt = time.Now()
	m.done = make(chan struct{})
	m.setStateLocked(StateConnected)

	m.subscribeLocked(ws, QueuePrivateMessages)
	m.subscribeLocked(ws, QueuePrivateTyping)
	if m.source != nil {
		for _, dest := range m.source.ActiveDestinations() {
			m.subscribeLocked(ws, dest)
		}
	}

	go m.readLoop(ws, m.done)
	go m.heartbeatLoop(ws, m.done)

	log.Printf("connected conn_id=%s user=%s", m.connID, m.cfg.Username)
	return nil
}

// awaitFrame reads command frames during the handshake, skipping heartbeats.
func (m *Manager) awaitFrame(ws *websocket.Conn) (*stomp.Frame, error) {
	deadline := time.Now().Add(m.readTimeout())
	for {
		if err := ws.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if stomp.IsHeartBeat(data) {
			continue
		}
		return stomp.Unmarshal(data)
	}
}

// Disconnect tears down the transport. Idempotent; suppresses reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	if m.conn == nil {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return
	}
	connID, connectedAt := m.connID, m.connectedAt
	ws := m.conn
	m.teardownLocked()
	m.mu.Unlock()

	m.writeMu.Lock()
	_ = ws.WriteMessage(websocket.TextMessage, stomp.NewFrame(stomp.CmdDisconnect).Marshal())
	m.writeMu.Unlock()
	_ = ws.Close()

	observability.EmitConnEvent(context.Background(), connID, m.cfg.Username, "ws_disconnect", "client disconnect", connectedAt)
	log.Printf("disconnected conn_id=%s", connID)
}

// teardownLocked releases the current connection. Caller holds mu.
func (m *Manager) teardownLocked() {
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.conn = nil
	m.connID = ""
	m.setStateLocked(StateDisconnected)
}

// Subscribe opens one broker subscription on the live connection.
func (m *Manager) Subscribe(destination string) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	ws := m.conn
	m.subSeq++
	id := "sub-" + strconv.Itoa(m.subSeq)
	m.mu.Unlock()

	frame := stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, id,
		stomp.HdrDestination, destination,
	)
	return m.write(ws, frame)
}

// subscribeLocked issues a SUBSCRIBE during the handshake. Caller holds mu
// and the write path is not yet contended.
func (m *Manager) subscribeLocked(ws *websocket.Conn, destination string) {
	m.subSeq++
	frame := stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, "sub-"+strconv.Itoa(m.subSeq),
		stomp.HdrDestination, destination,
	)
	if err := ws.WriteMessage(websocket.TextMessage, frame.Marshal()); err != nil {
		log.Printf("subscribe %s failed: %v", destination, err)
	}
}

func (m *Manager) readLoop(ws *websocket.Conn, done chan struct{}) {
	for {
		if err := ws.SetReadDeadline(time.Now().Add(m.readTimeout())); err != nil {
			m.handleReadFailure(ws, err)
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			m.handleReadFailure(ws, err)
			return
		}
		if stomp.IsHeartBeat(data) {
			continue
		}
		frame, err := stomp.Unmarshal(data)
		if err != nil {
			log.Printf("drop undecodable frame: %v", err)
			continue
		}
		switch frame.Command {
		case stomp.CmdMessage:
			m.route(frame)
		case stomp.CmdError:
			log.Printf("broker error: %s: %s", frame.Header(stomp.HdrMessage), frame.Body)
			m.mu.Lock()
			m.setStateLocked(StateErrored)
			m.mu.Unlock()
			observability.IncWSEvent("ws_error")
		default:
			log.Printf("unexpected frame %s ignored", frame.Command)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// route decodes a MESSAGE frame and hands it to the handler. The
// destination decides whether the body is a chat message or a typing event.
func (m *Manager) route(frame *stomp.Frame) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return
	}

	dest := frame.Header(stomp.HdrDestination)
	if IsTypingDestination(dest) {
		var ev models.TypingEvent
		if err := unmarshalBody(frame.Body, &ev); err != nil {
			log.Printf("drop typing event on %s: %v", dest, err)
			return
		}
		handler.HandleTyping(dest, ev)
		return
	}

	var msg models.Message
	if err := unmarshalBody(frame.Body, &msg); err != nil {
		log.Printf("drop message on %s: %v", dest, err)
		return
	}
	handler.HandleMessage(dest, msg)
}

// handleReadFailure tears the connection down and, unless the closure was
// requested, schedules reconnection.
func (m *Manager) handleReadFailure(ws *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != ws {
		// A newer connection replaced this one; nothing to clean up.
		m.mu.Unlock()
		return
	}
	connID, connectedAt := m.connID, m.connectedAt
	wasClosing := m.closing
	m.teardownLocked()
	m.mu.Unlock()
	_ = ws.Close()

	if wasClosing {
		return
	}
	log.Printf("connection lost conn_id=%s: %v", connID, err)
	observability.EmitConnEvent(context.Background(), connID, m.cfg.Username, "ws_error", err.Error(), connectedAt)
	go m.reconnectLoop()
}

// reconnectLoop retries with a flat backoff until connected or explicitly
// closed. The same identity and the registry's remembered subscriptions are
// re-established on success.
func (m *Manager) reconnectLoop() {
	for {
		time.Sleep(m.cfg.ReconnectDelay)

		m.mu.Lock()
		if m.closing || m.state == StateConnected {
			m.mu.Unlock()
			return
		}
		observability.IncReconnect()
		err := m.dialLocked(context.Background())
		handler := m.handler
		m.mu.Unlock()

		if err == nil {
			observability.EmitConnEvent(context.Background(), m.ConnID(), m.cfg.Username, "ws_reconnect", "", time.Time{})
			if handler != nil {
				handler.HandleConnected()
			}
			return
		}
		log.Printf("reconnect failed, retrying in %s: %v", m.cfg.ReconnectDelay, err)
	}
}

func (m *Manager) heartbeatLoop(ws *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := ws.WriteMessage(websocket.TextMessage, stomp.HeartBeat)
			m.writeMu.Unlock()
			if err != nil {
				log.Printf("heartbeat write failed: %v", err)
				return
			}
		}
	}
}

func (m *Manager) readTimeout() time.Duration {
	return time.Duration(float64(m.cfg.HeartbeatInterval) * heartbeatTolerance)
}

// liveConn returns the connection when sends are allowed.
func (m *Manager) liveConn() (*websocket.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

func (m *Manager) write(ws *websocket.Conn, frame *stomp.Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, frame.Marshal())
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	observability.SetConnectionState(string(s))
}
