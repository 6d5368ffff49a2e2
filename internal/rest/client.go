// Package rest talks to the backend's request/response endpoints: history
// fetches, read receipts, edits, deletions, contact lists, and the presence
// heartbeat.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// ErrNotFound marks a 404 from the collaborator.
var ErrNotFound = errors.New("not found")

// Client defines the collaborator operations the sync core consumes.
type Client interface {
	PrivateHistory(ctx context.Context, userID, friendID int64) ([]models.Message, error)
	GroupHistory(ctx context.Context, groupID int64) ([]models.Message, error)
	EditMessage(ctx context.Context, messageID int64, content string) error
	DeleteMessage(ctx context.Context, messageID int64) error
	MarkDelivered(ctx context.Context, messageID int64) error
	MarkRead(ctx context.Context, messageID int64) error
	MarkAllRead(ctx context.Context, userID, senderID int64) error
	Friends(ctx context.Context, userID int64) ([]models.Friend, error)
	Groups(ctx context.Context, userID int64) ([]models.Group, error)
	Heartbeat(ctx context.Context, userID int64) error
}

// HTTPClient is the http implementation of Client.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// NewHTTPClient builds an HTTPClient against baseURL.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		tracer:  otel.Tracer("chat-client/rest"),
	}
}

// PrivateHistory fetches the ordered message history for a user pair.
func (c *HTTPClient) PrivateHistory(ctx context.Context, userID, friendID int64) ([]models.Message, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("friendId", strconv.FormatInt(friendID, 10))

	var msgs []models.Message
	err := c.do(ctx, "private_history", http.MethodGet, "/messages/history?"+q.Encode(), nil, &msgs)
	return msgs, err
}

// GroupHistory fetches the ordered message history for a group.
func (c *HTTPClient) GroupHistory(ctx context.Context, groupID int64) ([]models.Message, error) {
	var msgs []models.Message
	err := c.do(ctx, "group_history", http.MethodGet, fmt.Sprintf("/messages/group/%d", groupID), nil, &msgs)
	return msgs, err
}

// EditMessage replaces a message's content server-side.
func (c *HTTPClient) EditMessage(ctx context.Context, messageID int64, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, "edit_message", http.MethodPut, fmt.Sprintf("/messages/edit/%d", messageID), body, nil)
}

// DeleteMessage removes a message server-side.
func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, "delete_message", http.MethodDelete, fmt.Sprintf("/messages/%d", messageID), nil, nil)
}

// MarkDelivered stamps a message delivered.
func (c *HTTPClient) MarkDelivered(ctx context.Context, messageID int64) error {
	return c.do(ctx, "mark_delivered", http.MethodPut, fmt.Sprintf("/messages/delivered/%d", messageID), nil, nil)
}

// MarkRead stamps a message read.
func (c *HTTPClient) MarkRead(ctx context.Context, messageID int64) error {
	return c.do(ctx, "mark_read", http.MethodPut, fmt.Sprintf("/messages/read/%d", messageID), nil, nil)
}

// MarkAllRead stamps every message from senderID to userID as read.
func (c *HTTPClient) MarkAllRead(ctx context.Context, userID, senderID int64) error {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("senderId", strconv.FormatInt(senderID, 10))
	return c.do(ctx, "mark_all_read", http.MethodPut, "/messages/read-all?"+q.Encode(), nil, nil)
}

// Friends fetches the user's contact list with presence info.
func (c *HTTPClient) Friends(ctx context.Context, userID int64) ([]models.Friend, error) {
	var friends []models.Friend
	err := c.do(ctx, "friends", http.MethodGet, fmt.Sprintf("/friends/list/%d", userID), nil, &friends)
	return friends, err
}

// Groups fetches the groups the user belongs to.
func (c *HTTPClient) Groups(ctx context.Context, userID int64) ([]models.Group, error) {
	var groups []models.Group
	err := c.do(ctx, "groups", http.MethodGet, fmt.Sprintf("/groups/list/%d", userID), nil, &groups)
	return groups, err
}

// Heartbeat reports liveness for the presence display.
func (c *HTTPClient) Heartbeat(ctx context.Context, userID int64) error {
	return c.do(ctx, "heartbeat", http.MethodPut, fmt.Sprintf("/users/heartbeat/%d", userID), nil, nil)
}

// do runs one collaborator call, decoding a JSON response into out when out
// is non-nil.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "rest."+op)
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncRESTError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.IncRESTError(op)
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= 300:
		observability.IncRESTError(op)
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.IncRESTError(op)
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
