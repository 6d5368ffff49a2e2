package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/conn"
	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/telemetry"
	"chat-client/internal/unread"
)

var _ Connection = (*mocks.ConnectionMock)(nil)

func newTestSession(t *testing.T) (*Session, *mocks.ConnectionMock, *mocks.RestClientMock) {
	t.Helper()
	connection := new(mocks.ConnectionMock)
	connection.On("SetHandler", mock.Anything).Return()
	connection.On("SetSubscriptionSource", mock.Anything).Return()
	restClient := new(mocks.RestClientMock)

	s := New(Config{UserID: 1, Username: "alice"}, connection, restClient, unread.LogNotifier{}, nil)
	return s, connection, restClient
}

func inboundPrivate(id int64, content string) models.Message {
	return models.Message{
		ID:       id,
		Sender:   models.UserRef{ID: 2, Username: "bob"},
		Receiver: &models.UserRef{ID: 1, Username: "alice"},
		Content:  content,
	}
}

func TestHandleMessageAppendsCountsAndAcksDelivered(t *testing.T) {
	s, _, restClient := newTestSession(t)

	delivered := make(chan struct{})
	restClient.On("MarkDelivered", mock.Anything, int64(10)).Return(nil).
		Run(func(mock.Arguments) { close(delivered) }).Once()

	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "hello"))

	key := models.PrivateKey(2)
	msgs := s.Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, 1, s.Unread(key))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected delivered receipt for inactive conversation")
	}
	restClient.AssertExpectations(t)
}

func TestHandleMessageActiveConversationAcksRead(t *testing.T) {
	s, _, restClient := newTestSession(t)

	restClient.On("PrivateHistory", mock.Anything, int64(1), int64(2)).Return(nil, nil).Once()
	restClient.On("MarkAllRead", mock.Anything, int64(1), int64(2)).Return(nil)

	key := models.PrivateKey(2)
	_, err := s.OpenConversation(context.Background(), key)
	require.NoError(t, err)

	read := make(chan struct{})
	restClient.On("MarkRead", mock.Anything, int64(10)).Return(nil).
		Run(func(mock.Arguments) { close(read) }).Once()

	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "hello"))

	// Active conversation: unread stays zero, receipt is read not delivered.
	assert.Equal(t, 0, s.Unread(key))
	select {
	case <-read:
	case <-time.After(time.Second):
		t.Fatal("expected read receipt for active conversation")
	}
}

func TestSendPrivateAppendsOptimisticEchoAdoptedByServerCopy(t *testing.T) {
	s, connection, _ := newTestSession(t)

	var sent conn.PrivateMessage
	connection.On("SendPrivateMessage", mock.Anything).Return(nil).
		Run(func(args mock.Arguments) { sent = args.Get(0).(conn.PrivateMessage) }).Once()

	require.NoError(t, s.SendPrivate(models.UserRef{ID: 2, Username: "bob"}, "hi", nil))
	require.NotEmpty(t, sent.CorrelationID)

	key := models.PrivateKey(2)
	msgs := s.Messages(key)
	require.Len(t, msgs, 1)
	assert.Zero(t, msgs[0].ID)
	assert.Equal(t, sent.CorrelationID, msgs[0].CorrelationID)

	// Server echo adopts the optimistic copy instead of duplicating it.
	echo := models.Message{
		ID:            42,
		CorrelationID: sent.CorrelationID,
		Sender:        models.UserRef{ID: 1, Username: "alice"},
		Receiver:      &models.UserRef{ID: 2, Username: "bob"},
		Content:       "hi",
	}
	s.HandleMessage(conn.QueuePrivateMessages, echo)

	msgs = s.Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ID)
	assert.Equal(t, 0, s.Unread(key))
}

func TestSendPrivateFailsFastWithoutConnection(t *testing.T) {
	s, connection, _ := newTestSession(t)
	connection.On("SendPrivateMessage", mock.Anything).Return(conn.ErrNotConnected).Once()

	err := s.SendPrivate(models.UserRef{ID: 2, Username: "bob"}, "hi", nil)
	assert.ErrorIs(t, err, conn.ErrNotConnected)
	assert.Empty(t, s.Messages(models.PrivateKey(2)))
}

func TestSendGroupCarriesReplyMetadata(t *testing.T) {
	s, connection, _ := newTestSession(t)

	var sent conn.GroupMessage
	connection.On("SendGroupMessage", mock.Anything).Return(nil).
		Run(func(args mock.Arguments) { sent = args.Get(0).(conn.GroupMessage) }).Once()

	reply := models.NewReplyRef(models.Message{ID: 9, Sender: models.UserRef{Username: "bob"}, Content: "earlier"})
	require.NoError(t, s.SendGroup(7, "answer", &reply))

	assert.Equal(t, int64(9), sent.Reply.ID)
	msgs := s.Messages(models.GroupKey(7))
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(9), msgs[0].ReplyToID)
	assert.Equal(t, "earlier", msgs[0].ReplyPreview)
}

func TestHandleTypingPrivateNeedsKnownSender(t *testing.T) {
	s, _, restClient := newTestSession(t)

	// Unknown sender: dropped, no conversation to attach it to.
	s.HandleTyping(conn.QueuePrivateTyping, models.TypingEvent{Sender: "bob", Typing: true})
	assert.Empty(t, s.TypingUsers(models.PrivateKey(2)))

	restClient.On("MarkDelivered", mock.Anything, int64(10)).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "hello"))

	s.HandleTyping(conn.QueuePrivateTyping, models.TypingEvent{Sender: "bob", Typing: true})
	assert.Equal(t, []string{"bob"}, s.TypingUsers(models.PrivateKey(2)))
}

func TestHandleTypingGroupTopic(t *testing.T) {
	s, _, _ := newTestSession(t)

	s.HandleTyping(conn.GroupTypingTopic(7), models.TypingEvent{Sender: "carol", Typing: true})
	assert.Equal(t, []string{"carol"}, s.TypingUsers(models.GroupKey(7)))

	s.HandleTyping(conn.GroupTypingTopic(7), models.TypingEvent{Sender: "carol", Typing: false})
	assert.Empty(t, s.TypingUsers(models.GroupKey(7)))
}

func TestMessageArrivalClearsSenderTyping(t *testing.T) {
	s, _, restClient := newTestSession(t)
	key := models.PrivateKey(2)

	restClient.On("MarkDelivered", mock.Anything, int64(10)).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "registers bob"))

	s.HandleTyping(conn.QueuePrivateTyping, models.TypingEvent{Sender: "bob", Typing: true})
	require.Equal(t, []string{"bob"}, s.TypingUsers(key))

	restClient.On("MarkDelivered", mock.Anything, int64(11)).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(11, "done typing"))
	assert.Empty(t, s.TypingUsers(key))
}

func TestOpenConversationLoadsGroupHistoryOnce(t *testing.T) {
	s, connection, restClient := newTestSession(t)

	connection.On("Subscribe", conn.GroupTopic(7)).Return(nil).Once()
	connection.On("Subscribe", conn.GroupTypingTopic(7)).Return(nil).Once()
	restClient.On("GroupHistory", mock.Anything, int64(7)).Return([]models.Message{
		{ID: 1, GroupID: 7, Sender: models.UserRef{ID: 2, Username: "bob"}, Content: "old"},
		{ID: 2, GroupID: 7, Sender: models.UserRef{ID: 3, Username: "carol"}, Content: "newer"},
	}, nil).Once()

	msgs, err := s.OpenConversation(context.Background(), models.GroupKey(7))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	// Reopening neither refetches history nor resubscribes.
	msgs, err = s.OpenConversation(context.Background(), models.GroupKey(7))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	connection.AssertExpectations(t)
	restClient.AssertExpectations(t)
}

func TestOpenConversationResetsUnread(t *testing.T) {
	s, _, restClient := newTestSession(t)
	key := models.PrivateKey(2)

	restClient.On("MarkDelivered", mock.Anything, mock.Anything).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "a"))
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(11, "b"))
	require.Equal(t, 2, s.Unread(key))

	restClient.On("MarkAllRead", mock.Anything, int64(1), int64(2)).Return(nil)

	_, err := s.OpenConversation(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Unread(key))
}

func TestEditAndDeleteApplyLocallyThenAck(t *testing.T) {
	s, _, restClient := newTestSession(t)
	key := models.PrivateKey(2)

	restClient.On("MarkDelivered", mock.Anything, mock.Anything).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "x"))

	edited := make(chan struct{})
	restClient.On("EditMessage", mock.Anything, int64(10), "y").Return(nil).
		Run(func(mock.Arguments) { close(edited) }).Once()

	s.EditMessage(10, "y")
	msgs := s.Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, "y", msgs[0].Content)
	assert.True(t, msgs[0].Edited)

	select {
	case <-edited:
	case <-time.After(time.Second):
		t.Fatal("expected edit to reach the backend")
	}

	deleted := make(chan struct{})
	restClient.On("DeleteMessage", mock.Anything, int64(10)).Return(nil).
		Run(func(mock.Arguments) { close(deleted) }).Once()

	s.DeleteMessage(10)
	assert.Empty(t, s.Messages(key))

	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("expected delete to reach the backend")
	}
}

func TestGroupsDelegatesToRest(t *testing.T) {
	s, _, restClient := newTestSession(t)
	restClient.On("Groups", mock.Anything, int64(1)).
		Return([]models.Group{{ID: 7, Name: "team"}}, nil).Once()

	groups, err := s.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "team", groups[0].Name)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, connection, _ := newTestSession(t)
	connection.On("Disconnect").Return().Once()
	connection.On("ConnID").Return("").Maybe()

	s.Close()
	s.Close()

	connection.AssertExpectations(t)
}

func TestCloseAuditsConnIDFromBeforeDisconnect(t *testing.T) {
	connection := new(mocks.ConnectionMock)
	connection.On("SetHandler", mock.Anything).Return()
	connection.On("SetSubscriptionSource", mock.Anything).Return()
	// The manager forgets the conn id on disconnect, so the read has to
	// happen first.
	connIDCall := connection.On("ConnID").Return("abc123").Once()
	connection.On("Disconnect").Return().Once().NotBefore(connIDCall)
	connection.On("ConnID").Return("")

	publisher := new(mocks.PublisherMock)
	var audited telemetry.AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.chat_client", mock.Anything).
		Run(func(args mock.Arguments) {
			audited = args.Get(2).(telemetry.AuditEnvelope)
		}).
		Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat_client", "chat-client", "test")

	s := New(Config{UserID: 1, Username: "alice"}, connection, new(mocks.RestClientMock), unread.LogNotifier{}, emitter)
	s.Close()

	publisher.AssertExpectations(t)
	assert.Equal(t, "abc123", audited.ConnID)
	assert.Equal(t, "session closed", audited.Payload.Text)
}

func TestDebugStateSnapshot(t *testing.T) {
	s, connection, restClient := newTestSession(t)
	connection.On("State").Return(conn.StateConnected)
	connection.On("ConnID").Return("abc123")

	restClient.On("MarkDelivered", mock.Anything, mock.Anything).Return(nil)
	s.HandleMessage(conn.QueuePrivateMessages, inboundPrivate(10, "hello"))

	state := s.DebugState()
	assert.Equal(t, "connected", state["state"])
	assert.Equal(t, "abc123", state["conn_id"])
	assert.Equal(t, "alice", state["username"])
	assert.Equal(t,
		map[models.ConversationKey]int{models.PrivateKey(2): 1},
		state["conversations"])
}
