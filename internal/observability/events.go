package observability

import (
	"context"
	"time"
)

// Publisher is the slice of the rabbitmq publisher the event emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

// SetPublisher installs the broker connection used for telemetry events.
// Events are dropped silently until one is set.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// EventEnvelope wraps client telemetry events published to the audit
// exchange.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// ConnEventPayload describes a connection lifecycle event.
type ConnEventPayload struct {
	ConnID     string `json:"conn_id"`
	Username   string `json:"username"`
	Event      string `json:"event"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

// RoutingKeyConnEvents is the topic for connection lifecycle events.
const RoutingKeyConnEvents = "client_events.connection"

// EmitConnEvent publishes a connection lifecycle event and bumps the
// matching metric. Publish failures are counted, never surfaced.
func EmitConnEvent(ctx context.Context, connID, username, event, reason string, connectedAt time.Time) {
	IncWSEvent(event)

	if defaultPublisher == nil {
		return
	}
	var durationMS int64
	if !connectedAt.IsZero() {
		durationMS = time.Since(connectedAt).Milliseconds()
	}
	err := defaultPublisher.Publish(ctx, RoutingKeyConnEvents, EventEnvelope{
		EventType: "client_events",
		EventName: event,
		Payload: ConnEventPayload{
			ConnID:     connID,
			Username:   username,
			Event:      event,
			DurationMS: durationMS,
			Reason:     reason,
		},
	})
	if err != nil {
		IncAMQPPublishError()
	}
}
