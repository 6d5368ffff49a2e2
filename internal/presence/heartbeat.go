// Package presence keeps the backend aware the client is alive and refreshes
// the peers' online/last-seen snapshot shown next to conversations.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/rest"
)

// DefaultInterval is the heartbeat and refresh period.
const DefaultInterval = 30 * time.Second

// Heartbeat owns the presence ticker. Failures are logged and retried on
// the next tick; presence is advisory.
type Heartbeat struct {
	rest     rest.Client
	userID   int64
	interval time.Duration

	mu      sync.Mutex
	friends []models.Friend

	stopOnce sync.Once
	done     chan struct{}
}

// Start builds a Heartbeat and begins ticking immediately.
func Start(restClient rest.Client, userID int64, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	h := &Heartbeat{
		rest:     restClient,
		userID:   userID,
		interval: interval,
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	h.tick()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Heartbeat) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	if err := h.rest.Heartbeat(ctx, h.userID); err != nil {
		log.Printf("presence heartbeat failed: %v", err)
	}

	friends, err := h.rest.Friends(ctx, h.userID)
	if err != nil {
		log.Printf("presence refresh failed: %v", err)
		return
	}
	h.mu.Lock()
	h.friends = friends
	h.mu.Unlock()
}

// Friends returns the latest presence snapshot.
func (h *Heartbeat) Friends() []models.Friend {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.Friend, len(h.friends))
	copy(out, h.friends)
	return out
}

// Stop halts the ticker. Idempotent.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
