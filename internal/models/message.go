package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus tracks how far a private message has travelled.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// UserRef identifies a message participant.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message represents a chat message, private or group.
// ID is server-assigned and zero for an optimistic local echo that has not
// been acknowledged yet; CorrelationID is the client-generated token used to
// match the echo against the server copy.
type Message struct {
	ID              int64    `json:"id,omitempty"`
	CorrelationID   string   `json:"correlationId,omitempty"`
	Sender          UserRef  `json:"sender"`
	Receiver        *UserRef `json:"receiver,omitempty"`
	GroupID         int64    `json:"groupId,omitempty"`
	Content         string   `json:"content"`
	Timestamp       Time     `json:"timestamp"`
	Edited          bool     `json:"edited"`
	DeliveredAt     *Time    `json:"deliveredAt,omitempty"`
	ReadAt          *Time    `json:"readAt,omitempty"`
	ReplyToID       int64    `json:"replyToId,omitempty"`
	ReplyPreview    string   `json:"replyPreview,omitempty"`
	ReplySenderName string   `json:"replySenderName,omitempty"`
}

// Status derives the delivery status for private messages.
func (m Message) Status() DeliveryStatus {
	if m.ReadAt != nil {
		return StatusRead
	}
	if m.DeliveredAt != nil {
		return StatusDelivered
	}
	return StatusSent
}

// ReplyRef carries the metadata attached to a reply.
type ReplyRef struct {
	ID         int64
	Preview    string
	SenderName string
}

// ReplyPreviewLimit caps the quoted text stored alongside a reply.
const ReplyPreviewLimit = 80

// NewReplyRef builds a reply reference from the message being replied to.
func NewReplyRef(m Message) ReplyRef {
	preview := m.Content
	if runes := []rune(preview); len(runes) > ReplyPreviewLimit {
		preview = string(runes[:ReplyPreviewLimit])
	}
	return ReplyRef{ID: m.ID, Preview: preview, SenderName: m.Sender.Username}
}

// TypingEvent is delivered on the typing channels. The conversation it
// belongs to is implied by the channel it arrives on, not by the payload.
// The broker relays typing flags as the strings "true"/"false".
type TypingEvent struct {
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

func (e *TypingEvent) UnmarshalJSON(data []byte) error {
	var wire struct {
		Sender string `json:"sender"`
		Typing any    `json:"typing"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Sender = wire.Sender
	switch v := wire.Typing.(type) {
	case bool:
		e.Typing = v
	case string:
		e.Typing = v == "true"
	case nil:
		e.Typing = false
	default:
		return fmt.Errorf("unsupported typing flag %v", wire.Typing)
	}
	return nil
}

// Friend is a contact entry with presence info.
type Friend struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"isOnline"`
	LastSeen *Time  `json:"lastSeen,omitempty"`
}

// Group is a group conversation the user belongs to.
type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"createdBy"`
}

// Time accepts backend timestamps serialized without a zone designator
// (the server clock is UTC but omits the Z suffix).
type Time struct {
	time.Time
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses RFC3339 timestamps as well as zone-less ones, which
// are taken to be UTC.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", s)
}

// MarshalJSON emits RFC3339 so locally produced messages are unambiguous.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// Now returns the current instant as a wire Time.
func Now() Time {
	return Time{Time: time.Now().UTC()}
}
