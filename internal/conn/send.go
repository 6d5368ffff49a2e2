package conn

import (
	"encoding/json"
	"strconv"

	"chat-client/internal/models"
	"chat-client/internal/stomp"
)

// PrivateMessage is an outbound private send.
type PrivateMessage struct {
	Sender        string
	Receiver      string
	Content       string
	CorrelationID string
	Reply         *models.ReplyRef
}

// GroupMessage is an outbound group send.
type GroupMessage struct {
	Sender        string
	GroupID       int64
	Content       string
	CorrelationID string
	Reply         *models.ReplyRef
}

// TypingSignal is an outbound typing notification, addressed either to a
// private peer or to a group, never both.
type TypingSignal struct {
	Sender   string
	Receiver string
	GroupID  int64
	Typing   bool
}

// Wire bodies follow the broker contract: reply ids travel as strings, and
// the typing payload is fully stringified.
type privateSendBody struct {
	Sender          string `json:"sender"`
	Receiver        string `json:"receiver"`
	Content         string `json:"content"`
	CorrelationID   string `json:"correlationId"`
	ReplyToID       string `json:"replyToId"`
	ReplyPreview    string `json:"replyPreview"`
	ReplySenderName string `json:"replySenderName"`
}

type groupSendBody struct {
	Sender          string `json:"sender"`
	GroupID         int64  `json:"groupId"`
	Content         string `json:"content"`
	CorrelationID   string `json:"correlationId"`
	ReplyToID       string `json:"replyToId"`
	ReplyPreview    string `json:"replyPreview"`
	ReplySenderName string `json:"replySenderName"`
}

type typingBody struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	GroupID  string `json:"groupId"`
	Typing   string `json:"typing"`
}

// SendPrivateMessage publishes a private send. Fails fast with
// ErrNotConnected while the connection is down.
func (m *Manager) SendPrivateMessage(msg PrivateMessage) error {
	body := privateSendBody{
		Sender:        msg.Sender,
		Receiver:      msg.Receiver,
		Content:       msg.Content,
		CorrelationID: msg.CorrelationID,
	}
	if msg.Reply != nil {
		body.ReplyToID = strconv.FormatInt(msg.Reply.ID, 10)
		body.ReplyPreview = msg.Reply.Preview
		body.ReplySenderName = msg.Reply.SenderName
	}
	return m.sendJSON(DestPrivateSend, body)
}

// SendGroupMessage publishes a group send.
func (m *Manager) SendGroupMessage(msg GroupMessage) error {
	body := groupSendBody{
		Sender:        msg.Sender,
		GroupID:       msg.GroupID,
		Content:       msg.Content,
		CorrelationID: msg.CorrelationID,
	}
	if msg.Reply != nil {
		body.ReplyToID = strconv.FormatInt(msg.Reply.ID, 10)
		body.ReplyPreview = msg.Reply.Preview
		body.ReplySenderName = msg.Reply.SenderName
	}
	return m.sendJSON(DestGroupSend, body)
}

// SendTyping publishes a typing signal.
func (m *Manager) SendTyping(sig TypingSignal) error {
	body := typingBody{
		Sender:   sig.Sender,
		Receiver: sig.Receiver,
		Typing:   strconv.FormatBool(sig.Typing),
	}
	if sig.GroupID != 0 {
		body.GroupID = strconv.FormatInt(sig.GroupID, 10)
	}
	return m.sendJSON(DestTyping, body)
}

func (m *Manager) sendJSON(destination string, body any) error {
	ws, err := m.liveConn()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	frame := stomp.NewFrame(stomp.CmdSend,
		stomp.HdrDestination, destination,
		stomp.HdrContentType, "application/json",
	)
	frame.Body = payload
	return m.write(ws, frame)
}

func unmarshalBody(body []byte, v any) error {
	return json.Unmarshal(body, v)
}
