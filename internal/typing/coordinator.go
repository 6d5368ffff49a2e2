// Package typing debounces local typing signals and expires remote ones.
// Lost typing=false events self-heal through per-sender expiry timers.
package typing

import (
	"log"
	"sort"
	"sync"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Sender publishes typing signals to the broker; wired to the connection
// manager by the session.
type Sender interface {
	SendTyping(receiver string, groupID int64, typing bool) error
}

// Scope addresses a typing signal: a private peer by username or a group by
// id, never both.
type Scope struct {
	Peer    string
	GroupID int64
}

// PrivateScope addresses the peer of a private conversation.
func PrivateScope(peer string) Scope {
	return Scope{Peer: peer}
}

// GroupScope addresses a group conversation.
func GroupScope(groupID int64) Scope {
	return Scope{GroupID: groupID}
}

const (
	// DefaultDebounce is the quiet period after the last keystroke before
	// typing=false goes out.
	DefaultDebounce = 1500 * time.Millisecond
	// DefaultExpiry removes a remote typer who never sent typing=false.
	// Longer than the debounce so a live typer is not flickered off.
	DefaultExpiry = 3 * time.Second
)

// Coordinator owns both typing directions. All timers it arms are disposed
// on Close so none fire against a torn-down session.
type Coordinator struct {
	localUsername string
	sender        Sender
	debounce      time.Duration
	expiry        time.Duration

	mu             sync.Mutex
	closed         bool
	inFlight       map[Scope]bool
	debounceTimers map[Scope]*time.Timer
	remote         map[models.ConversationKey]map[string]*time.Timer
}

// NewCoordinator builds a Coordinator. Zero durations take the defaults.
func NewCoordinator(localUsername string, sender Sender, debounce, expiry time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Coordinator{
		localUsername:  localUsername,
		sender:         sender,
		debounce:       debounce,
		expiry:         expiry,
		inFlight:       make(map[Scope]bool),
		debounceTimers: make(map[Scope]*time.Timer),
		remote:         make(map[models.ConversationKey]map[string]*time.Timer),
	}
}

// InputChanged records a local keystroke for the scoped conversation. The
// first keystroke of a burst sends typing=true; every keystroke rearms the
// debounce timer whose firing sends typing=false.
func (c *Coordinator) InputChanged(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if !c.inFlight[scope] {
		c.inFlight[scope] = true
		c.send(scope, true)
	}

	if t, ok := c.debounceTimers[scope]; ok {
		t.Stop()
	}
	c.debounceTimers[scope] = time.AfterFunc(c.debounce, func() {
		c.flush(scope)
	})
}

// MessageSent flushes the typing state for the scope immediately: the send
// itself tells the peer the burst is over.
func (c *Coordinator) MessageSent(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(scope)
}

func (c *Coordinator) flush(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(scope)
}

func (c *Coordinator) flushLocked(scope Scope) {
	if t, ok := c.debounceTimers[scope]; ok {
		t.Stop()
		delete(c.debounceTimers, scope)
	}
	if !c.inFlight[scope] || c.closed {
		return
	}
	delete(c.inFlight, scope)
	c.send(scope, false)
}

// send publishes with the lock held; failures are logged only, a typing
// signal is advisory.
func (c *Coordinator) send(scope Scope, typing bool) {
	observability.IncTypingEvent("outbound")
	if err := c.sender.SendTyping(scope.Peer, scope.GroupID, typing); err != nil {
		log.Printf("typing signal dropped (%v): scope=%+v typing=%t", err, scope, typing)
	}
}

// HandleRemote applies a remote typing event to the conversation's typing
// set. typing=true (re)arms the sender's expiry timer with set semantics;
// typing=false removes immediately. Events echoing the local user's own
// username are ignored.
func (c *Coordinator) HandleRemote(key models.ConversationKey, sender string, typing bool) {
	if sender == c.localUsername {
		return
	}
	observability.IncTypingEvent("inbound")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	entries := c.remote[key]
	if !typing {
		c.removeRemoteLocked(key, sender)
		return
	}

	if entries == nil {
		entries = make(map[string]*time.Timer)
		c.remote[key] = entries
	}
	if t, ok := entries[sender]; ok {
		t.Stop()
	}
	entries[sender] = time.AfterFunc(c.expiry, func() {
		c.expireRemote(key, sender)
	})
}

func (c *Coordinator) expireRemote(key models.ConversationKey, sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeRemoteLocked(key, sender)
}

func (c *Coordinator) removeRemoteLocked(key models.ConversationKey, sender string) {
	entries := c.remote[key]
	if t, ok := entries[sender]; ok {
		t.Stop()
		delete(entries, sender)
	}
	if len(entries) == 0 {
		delete(c.remote, key)
	}
}

// TypingUsers returns who is currently typing in the conversation, sorted.
func (c *Coordinator) TypingUsers(key models.ConversationKey) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.remote[key]
	out := make([]string, 0, len(entries))
	for name := range entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close stops every armed timer. Subsequent events are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for scope, t := range c.debounceTimers {
		t.Stop()
		delete(c.debounceTimers, scope)
	}
	for key, entries := range c.remote {
		for sender, t := range entries {
			t.Stop()
			delete(entries, sender)
		}
		delete(c.remote, key)
	}
}
