package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/conn"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/rest"
	"chat-client/internal/telemetry"
	"chat-client/internal/unread"
)

type RestClientMock struct {
	mock.Mock
}

func (m *RestClientMock) PrivateHistory(ctx context.Context, userID, friendID int64) ([]models.Message, error) {
	args := m.Called(ctx, userID, friendID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *RestClientMock) GroupHistory(ctx context.Context, groupID int64) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *RestClientMock) EditMessage(ctx context.Context, messageID int64, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *RestClientMock) DeleteMessage(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *RestClientMock) MarkDelivered(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *RestClientMock) MarkRead(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *RestClientMock) MarkAllRead(ctx context.Context, userID, senderID int64) error {
	args := m.Called(ctx, userID, senderID)
	return args.Error(0)
}

func (m *RestClientMock) Friends(ctx context.Context, userID int64) ([]models.Friend, error) {
	args := m.Called(ctx, userID)
	var friends []models.Friend
	if val := args.Get(0); val != nil {
		friends = val.([]models.Friend)
	}
	return friends, args.Error(1)
}

func (m *RestClientMock) Groups(ctx context.Context, userID int64) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *RestClientMock) Heartbeat(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type ConnectionMock struct {
	mock.Mock
}

func (m *ConnectionMock) SetHandler(h conn.EventHandler) {
	m.Called(h)
}

func (m *ConnectionMock) SetSubscriptionSource(s conn.SubscriptionSource) {
	m.Called(s)
}

func (m *ConnectionMock) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *ConnectionMock) Disconnect() {
	m.Called()
}

func (m *ConnectionMock) State() conn.State {
	args := m.Called()
	var state conn.State
	if val := args.Get(0); val != nil {
		state = val.(conn.State)
	}
	return state
}

func (m *ConnectionMock) ConnID() string {
	args := m.Called()
	return args.String(0)
}

func (m *ConnectionMock) Subscribe(destination string) error {
	args := m.Called(destination)
	return args.Error(0)
}

func (m *ConnectionMock) SendPrivateMessage(msg conn.PrivateMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *ConnectionMock) SendGroupMessage(msg conn.GroupMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *ConnectionMock) SendTyping(sig conn.TypingSignal) error {
	args := m.Called(sig)
	return args.Error(0)
}

// PublisherMock stands in for the audit event publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) RequestPermission() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *NotifierMock) Notify(title, body string) {
	m.Called(title, body)
}

var _ rest.Client = (*RestClientMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
var _ observability.Publisher = (*PublisherMock)(nil)
var _ unread.Notifier = (*NotifierMock)(nil)
