// Package unread derives per-conversation unread counters and fires
// user-facing alerts, gated by window focus and the active conversation.
package unread

import (
	"log"
	"sync"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// BodyLimit caps the notification body before the ellipsis marker.
const BodyLimit = 120

// Notifier raises user-facing alerts. Implementations own presentation
// details such as self-dismissal. RequestPermission is invoked lazily at
// most once per session.
type Notifier interface {
	RequestPermission() bool
	Notify(title, body string)
}

// LogNotifier is the default Notifier; it writes alerts to the log and
// always grants permission.
type LogNotifier struct{}

func (LogNotifier) RequestPermission() bool { return true }

func (LogNotifier) Notify(title, body string) {
	log.Printf("notification: %s: %s", title, body)
}

// Engine tracks unread counters, the active conversation, and window focus.
type Engine struct {
	localUserID int64
	notifier    Notifier

	mu               sync.Mutex
	counters         map[models.ConversationKey]int
	active           models.ConversationKey
	focused          bool
	permissionAsked  bool
	permissionResult bool
}

// NewEngine builds an Engine. The window starts focused with no active
// conversation.
func NewEngine(localUserID int64, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Engine{
		localUserID: localUserID,
		notifier:    notifier,
		counters:    make(map[models.ConversationKey]int),
		focused:     true,
	}
}

// OnMessage processes an arrival: bumps the unread counter when the
// conversation is not active and the sender is not the local user, and
// raises a notification when the user is plausibly not looking.
func (e *Engine) OnMessage(key models.ConversationKey, msg models.Message) {
	if msg.Sender.ID == e.localUserID {
		return
	}

	e.mu.Lock()
	if key != e.active {
		e.counters[key]++
	}
	notify := !e.focused || key != e.active
	allowed := false
	if notify {
		allowed = e.permissionLocked()
	}
	total := e.totalLocked()
	e.mu.Unlock()

	observability.SetUnreadTotal(total)
	if notify && allowed {
		e.notifier.Notify(msg.Sender.Username, truncate(msg.Content))
	}
}

// Activate marks the conversation active and resets its counter to zero,
// returning the previous count so the caller can acknowledge reads.
func (e *Engine) Activate(key models.ConversationKey) int {
	e.mu.Lock()
	e.active = key
	prev := e.counters[key]
	delete(e.counters, key)
	total := e.totalLocked()
	e.mu.Unlock()

	observability.SetUnreadTotal(total)
	return prev
}

// Deactivate clears the active conversation, e.g. when the user navigates
// back to the conversation list.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.active = ""
	e.mu.Unlock()
}

// Active returns the currently active conversation key, empty when none.
func (e *Engine) Active() models.ConversationKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetFocused tracks window input focus.
func (e *Engine) SetFocused(focused bool) {
	e.mu.Lock()
	e.focused = focused
	e.mu.Unlock()
}

// Count returns the unread counter for one conversation.
func (e *Engine) Count(key models.ConversationKey) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters[key]
}

// Snapshot copies all non-zero counters, for the debug surface.
func (e *Engine) Snapshot() map[models.ConversationKey]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[models.ConversationKey]int, len(e.counters))
	for k, v := range e.counters {
		out[k] = v
	}
	return out
}

// permissionLocked asks the notifier once per session and caches the answer.
func (e *Engine) permissionLocked() bool {
	if !e.permissionAsked {
		e.permissionAsked = true
		e.permissionResult = e.notifier.RequestPermission()
	}
	return e.permissionResult
}

func (e *Engine) totalLocked() int {
	total := 0
	for _, v := range e.counters {
		total += v
	}
	return total
}

func truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= BodyLimit {
		return content
	}
	return string(runes[:BodyLimit]) + "…"
}
