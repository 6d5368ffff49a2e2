// Package subs tracks which broker channels are subscribed, so reselecting
// a conversation never duplicates a subscription and reconnects can replay
// the full set.
package subs

import (
	"fmt"
	"sync"

	"chat-client/internal/conn"
)

// Subscriber issues a broker subscription; satisfied by *conn.Manager.
type Subscriber interface {
	Subscribe(destination string) error
}

// Registry remembers the group channels subscribed during this session. The
// two fixed per-user queues are owned by the connection manager and are not
// recorded here. The registry outlives any single connection; the broker
// subscriptions themselves do not.
type Registry struct {
	sub Subscriber

	mu       sync.Mutex
	channels map[string]struct{}
	order    []string
}

// NewRegistry builds a Registry issuing subscriptions through sub.
func NewRegistry(sub Subscriber) *Registry {
	return &Registry{
		sub:      sub,
		channels: make(map[string]struct{}),
	}
}

// SubscribeGroup opens the group topic and its typing counterpart exactly
// once. Repeated calls for a registered group are no-ops; the backend topic
// model requires one subscription per group per connection.
func (r *Registry) SubscribeGroup(groupID int64) error {
	topic := conn.GroupTopic(groupID)
	typingTopic := conn.GroupTypingTopic(groupID)

	r.mu.Lock()
	if _, ok := r.channels[topic]; ok {
		r.mu.Unlock()
		return nil
	}
	r.channels[topic] = struct{}{}
	r.channels[typingTopic] = struct{}{}
	r.order = append(r.order, topic, typingTopic)
	r.mu.Unlock()

	if err := r.sub.Subscribe(topic); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	if err := r.sub.Subscribe(typingTopic); err != nil {
		return fmt.Errorf("subscribe %s: %w", typingTopic, err)
	}
	return nil
}

// HasGroup reports whether the group's channels are registered.
func (r *Registry) HasGroup(groupID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[conn.GroupTopic(groupID)]
	return ok
}

// ActiveDestinations returns the registered channels in registration order,
// for replay after a reconnect.
func (r *Registry) ActiveDestinations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
