// Package session assembles the synchronization core: one connection, the
// subscription registry, the conversation store, the typing coordinator, the
// unread engine, and the presence heartbeat. A Session is an explicitly
// constructed instance whose lifetime is the authenticated session; nothing
// here is a package-level singleton.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/conn"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/presence"
	"chat-client/internal/rest"
	"chat-client/internal/store"
	"chat-client/internal/subs"
	"chat-client/internal/telemetry"
	"chat-client/internal/typing"
	"chat-client/internal/unread"
)

// Connection is the slice of the connection manager the session drives.
// *conn.Manager satisfies it; tests substitute a mock.
type Connection interface {
	SetHandler(conn.EventHandler)
	SetSubscriptionSource(conn.SubscriptionSource)
	Connect(ctx context.Context) error
	Disconnect()
	State() conn.State
	ConnID() string
	Subscribe(destination string) error
	SendPrivateMessage(msg conn.PrivateMessage) error
	SendGroupMessage(msg conn.GroupMessage) error
	SendTyping(sig conn.TypingSignal) error
}

// Config identifies the local user and tunes the timers.
type Config struct {
	UserID           int64
	Username         string
	TypingDebounce   time.Duration
	TypingExpiry     time.Duration
	PresenceInterval time.Duration
}

// Session is the facade presentation talks to.
type Session struct {
	cfg      Config
	conn     Connection
	rest     rest.Client
	registry *subs.Registry
	store    *store.Store
	typing   *typing.Coordinator
	unread   *unread.Engine
	emitter  *telemetry.AuditEmitter
	tracer   trace.Tracer

	mu       sync.Mutex
	presence *presence.Heartbeat
	idByName map[string]int64
	closed   bool
}

// New wires a Session around an existing connection. The session installs
// itself as the connection's event handler and the registry as its
// subscription replay source.
func New(cfg Config, connection Connection, restClient rest.Client, notifier unread.Notifier, emitter *telemetry.AuditEmitter) *Session {
	s := &Session{
		cfg:      cfg,
		conn:     connection,
		rest:     restClient,
		registry: subs.NewRegistry(connection),
		store:    store.New(cfg.UserID),
		unread:   unread.NewEngine(cfg.UserID, notifier),
		emitter:  emitter,
		tracer:   otel.Tracer("chat-client/session"),
		idByName: make(map[string]int64),
	}
	s.typing = typing.NewCoordinator(cfg.Username, typingSender{s}, cfg.TypingDebounce, cfg.TypingExpiry)
	connection.SetHandler(s)
	connection.SetSubscriptionSource(s.registry)
	return s
}

// typingSender adapts the connection's typing publish to the coordinator.
type typingSender struct {
	s *Session
}

func (t typingSender) SendTyping(receiver string, groupID int64, isTyping bool) error {
	return t.s.conn.SendTyping(conn.TypingSignal{
		Sender:   t.s.cfg.Username,
		Receiver: receiver,
		GroupID:  groupID,
		Typing:   isTyping,
	})
}

// Start connects and begins the presence heartbeat.
func (s *Session) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.presence == nil {
		s.presence = presence.Start(s.rest, s.cfg.UserID, s.cfg.PresenceInterval)
	}
	s.mu.Unlock()
	return nil
}

// Close tears the session down: timers first so none fire against freed
// state, then the connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	hb := s.presence
	s.mu.Unlock()

	s.typing.Close()
	if hb != nil {
		hb.Stop()
	}
	// Disconnect clears the conn id, so read it first.
	connID := s.conn.ConnID()
	s.conn.Disconnect()
	s.emitter.Emit(context.Background(), "INFO", "session closed", connID, &s.cfg.Username)
}

// HandleConnected runs on every connect and reconnect, after the fixed
// queues and registry subscriptions have been re-established.
func (s *Session) HandleConnected() {
	log.Printf("session bound as %s", s.cfg.Username)
	s.emitter.Emit(context.Background(), "INFO", "connection established", s.conn.ConnID(), &s.cfg.Username)
}

// HandleMessage reconciles an inbound message into the store and derives
// unread/notification state from it.
func (s *Session) HandleMessage(destination string, msg models.Message) {
	s.rememberUser(msg.Sender)
	if msg.Receiver != nil {
		s.rememberUser(*msg.Receiver)
	}

	key, result, err := s.store.Append(msg)
	if err != nil {
		log.Printf("drop unroutable message on %s: %v", destination, err)
		return
	}

	kind := "private"
	if msg.GroupID != 0 {
		kind = "group"
	}
	observability.IncMessageRouted(kind)

	if result != store.Appended {
		return
	}

	s.unread.OnMessage(key, msg)
	// A delivered message ends the sender's typing burst even when the
	// explicit typing=false event is lost.
	s.typing.HandleRemote(key, msg.Sender.Username, false)

	if msg.GroupID == 0 && msg.Sender.ID != s.cfg.UserID && msg.ID != 0 {
		s.acknowledgePrivate(key, msg.ID)
	}
}

// acknowledgePrivate sends the delivery/read receipt for an inbound private
// message. Fire-and-forget: failures are logged, never retried.
func (s *Session) acknowledgePrivate(key models.ConversationKey, messageID int64) {
	markRead := s.unread.Active() == key
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if markRead {
			err = s.rest.MarkRead(ctx, messageID)
		} else {
			err = s.rest.MarkDelivered(ctx, messageID)
		}
		if err != nil {
			log.Printf("receipt for message %d failed: %v", messageID, err)
		}
	}()
}

// HandleTyping routes a typing event to the conversation implied by the
// channel it arrived on.
func (s *Session) HandleTyping(destination string, ev models.TypingEvent) {
	if groupID, ok := conn.ParseGroupTypingTopic(destination); ok {
		s.typing.HandleRemote(models.GroupKey(groupID), ev.Sender, ev.Typing)
		return
	}
	if destination != conn.QueuePrivateTyping {
		log.Printf("typing event on unexpected destination %s ignored", destination)
		return
	}
	peerID, ok := s.lookupUser(ev.Sender)
	if !ok {
		log.Printf("typing event from unknown user %s ignored", ev.Sender)
		return
	}
	s.typing.HandleRemote(models.PrivateKey(peerID), ev.Sender, ev.Typing)
}

// OpenConversation activates a conversation: resets its unread counter,
// subscribes its group channels if needed, loads history on first open, and
// acknowledges outstanding reads. It returns the conversation snapshot.
func (s *Session) OpenConversation(ctx context.Context, key models.ConversationKey) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "session.open_conversation")
	defer span.End()

	s.unread.Activate(key)

	if groupID, ok := key.GroupID(); ok {
		if err := s.registry.SubscribeGroup(groupID); err != nil {
			// Recorded in the registry regardless; the reconnect replay
			// will establish the broker side.
			log.Printf("group %d subscription deferred: %v", groupID, err)
		}
	}

	if !s.store.HasMessages(key) {
		if err := s.loadHistory(ctx, key); err != nil {
			log.Printf("history for %s unavailable: %v", key, err)
		}
	}

	if peerID, ok := key.PeerID(); ok {
		go func() {
			ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.rest.MarkAllRead(ackCtx, s.cfg.UserID, peerID); err != nil {
				log.Printf("mark-all-read for %s failed: %v", key, err)
			}
		}()
	}

	return s.store.Messages(key), nil
}

// loadHistory fetches and seeds history. The store re-checks emptiness: a
// message may have arrived while the fetch was in flight, in which case the
// stale fetch result is discarded.
func (s *Session) loadHistory(ctx context.Context, key models.ConversationKey) error {
	var (
		msgs []models.Message
		err  error
	)
	if groupID, ok := key.GroupID(); ok {
		msgs, err = s.rest.GroupHistory(ctx, groupID)
	} else if peerID, ok := key.PeerID(); ok {
		msgs, err = s.rest.PrivateHistory(ctx, s.cfg.UserID, peerID)
	}
	if err != nil {
		return err
	}
	for _, m := range msgs {
		s.rememberUser(m.Sender)
		if m.Receiver != nil {
			s.rememberUser(*m.Receiver)
		}
	}
	if err := s.store.LoadHistory(key, msgs); err != nil {
		if errors.Is(err, store.ErrHistoryLoaded) {
			log.Printf("history for %s discarded: live messages arrived first", key)
			return nil
		}
		return err
	}
	return nil
}

// CloseConversation clears the active conversation.
func (s *Session) CloseConversation() {
	s.unread.Deactivate()
}

// SendPrivate publishes a private message and appends its optimistic echo.
// Fails fast while disconnected; nothing is queued.
func (s *Session) SendPrivate(peer models.UserRef, content string, reply *models.ReplyRef) error {
	correlationID := uuid.NewString()
	err := s.conn.SendPrivateMessage(conn.PrivateMessage{
		Sender:        s.cfg.Username,
		Receiver:      peer.Username,
		Content:       content,
		CorrelationID: correlationID,
		Reply:         reply,
	})
	if err != nil {
		return err
	}

	s.rememberUser(peer)
	s.appendEcho(models.Message{
		CorrelationID: correlationID,
		Sender:        models.UserRef{ID: s.cfg.UserID, Username: s.cfg.Username},
		Receiver:      &peer,
		Content:       content,
		Timestamp:     models.Now(),
	}, reply)
	s.typing.MessageSent(typing.PrivateScope(peer.Username))
	return nil
}

// SendGroup publishes a group message and appends its optimistic echo.
func (s *Session) SendGroup(groupID int64, content string, reply *models.ReplyRef) error {
	correlationID := uuid.NewString()
	err := s.conn.SendGroupMessage(conn.GroupMessage{
		Sender:        s.cfg.Username,
		GroupID:       groupID,
		Content:       content,
		CorrelationID: correlationID,
		Reply:         reply,
	})
	if err != nil {
		return err
	}

	s.appendEcho(models.Message{
		CorrelationID: correlationID,
		Sender:        models.UserRef{ID: s.cfg.UserID, Username: s.cfg.Username},
		GroupID:       groupID,
		Content:       content,
		Timestamp:     models.Now(),
	}, reply)
	s.typing.MessageSent(typing.GroupScope(groupID))
	return nil
}

func (s *Session) appendEcho(msg models.Message, reply *models.ReplyRef) {
	if reply != nil {
		msg.ReplyToID = reply.ID
		msg.ReplyPreview = reply.Preview
		msg.ReplySenderName = reply.SenderName
	}
	if _, _, err := s.store.Append(msg); err != nil {
		log.Printf("optimistic echo dropped: %v", err)
	}
}

// InputChanged reports a local keystroke in the scoped conversation.
func (s *Session) InputChanged(scope typing.Scope) {
	s.typing.InputChanged(scope)
}

// EditMessage applies the edit locally and acknowledges it with the backend.
// The local state is not rolled back on failure; divergence self-corrects on
// the next full history load.
func (s *Session) EditMessage(messageID int64, newContent string) {
	s.store.ApplyEdit(messageID, newContent)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rest.EditMessage(ctx, messageID, newContent); err != nil {
			log.Printf("edit ack for message %d failed: %v", messageID, err)
		}
	}()
}

// DeleteMessage removes the message locally and acknowledges the deletion.
func (s *Session) DeleteMessage(messageID int64) {
	s.store.ApplyDelete(messageID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rest.DeleteMessage(ctx, messageID); err != nil {
			log.Printf("delete ack for message %d failed: %v", messageID, err)
		}
	}()
}

// SetFocused tracks window input focus for notification gating.
func (s *Session) SetFocused(focused bool) {
	s.unread.SetFocused(focused)
}

// Messages returns the conversation snapshot in arrival order.
func (s *Session) Messages(key models.ConversationKey) []models.Message {
	return s.store.Messages(key)
}

// Unread returns the unread counter for a conversation.
func (s *Session) Unread(key models.ConversationKey) int {
	return s.unread.Count(key)
}

// TypingUsers returns who is typing in a conversation.
func (s *Session) TypingUsers(key models.ConversationKey) []string {
	return s.typing.TypingUsers(key)
}

// Friends returns the latest presence snapshot.
func (s *Session) Friends() []models.Friend {
	s.mu.Lock()
	hb := s.presence
	s.mu.Unlock()
	if hb == nil {
		return nil
	}
	friends := hb.Friends()
	for _, f := range friends {
		s.rememberUser(models.UserRef{ID: f.ID, Username: f.Username})
	}
	return friends
}

// Groups fetches the groups the user belongs to; consumed read-only,
// membership changes go through another surface.
func (s *Session) Groups(ctx context.Context) ([]models.Group, error) {
	return s.rest.Groups(ctx, s.cfg.UserID)
}

// State reports the connection state.
func (s *Session) State() conn.State {
	return s.conn.State()
}

// DebugState snapshots the core for the debug endpoint.
func (s *Session) DebugState() map[string]any {
	return map[string]any{
		"state":         string(s.conn.State()),
		"conn_id":       s.conn.ConnID(),
		"username":      s.cfg.Username,
		"subscriptions": s.registry.ActiveDestinations(),
		"unread":        s.unread.Snapshot(),
		"conversations": s.store.Sizes(),
	}
}

func (s *Session) rememberUser(u models.UserRef) {
	if u.Username == "" || u.ID == 0 {
		return
	}
	s.mu.Lock()
	s.idByName[u.Username] = u.ID
	s.mu.Unlock()
}

func (s *Session) lookupUser(username string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idByName[username]
	return id, ok
}
