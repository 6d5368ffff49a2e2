package unread

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-client/internal/models"
)

type recordingNotifier struct {
	granted     bool
	permissions int
	titles      []string
	bodies      []string
}

func (r *recordingNotifier) RequestPermission() bool {
	r.permissions++
	return r.granted
}

func (r *recordingNotifier) Notify(title, body string) {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
}

func inbound(content string) models.Message {
	return models.Message{
		ID:       10,
		Sender:   models.UserRef{ID: 2, Username: "bob"},
		Receiver: &models.UserRef{ID: 1, Username: "alice"},
		Content:  content,
	}
}

func TestOnMessageIncrementsInactiveConversation(t *testing.T) {
	e := NewEngine(1, &recordingNotifier{granted: true})
	key := models.PrivateKey(2)

	e.OnMessage(key, inbound("hi"))
	e.OnMessage(key, inbound("there"))

	assert.Equal(t, 2, e.Count(key))
}

func TestOnMessageSkipsActiveConversation(t *testing.T) {
	e := NewEngine(1, &recordingNotifier{granted: true})
	key := models.PrivateKey(2)

	e.Activate(key)
	e.OnMessage(key, inbound("hi"))

	assert.Equal(t, 0, e.Count(key))
}

func TestOnMessageIgnoresLocalSender(t *testing.T) {
	n := &recordingNotifier{granted: true}
	e := NewEngine(1, n)
	key := models.PrivateKey(2)

	own := inbound("mine")
	own.Sender = models.UserRef{ID: 1, Username: "alice"}
	e.OnMessage(key, own)

	assert.Equal(t, 0, e.Count(key))
	assert.Empty(t, n.titles)
}

func TestActivateResetsAndReturnsPreviousCount(t *testing.T) {
	e := NewEngine(1, &recordingNotifier{granted: true})
	key := models.PrivateKey(2)

	e.OnMessage(key, inbound("a"))
	e.OnMessage(key, inbound("b"))

	assert.Equal(t, 2, e.Activate(key))
	assert.Equal(t, 0, e.Count(key))
	assert.Empty(t, e.Snapshot())
}

func TestNotificationGating(t *testing.T) {
	n := &recordingNotifier{granted: true}
	e := NewEngine(1, n)
	active := models.PrivateKey(2)
	other := models.GroupKey(7)

	e.Activate(active)

	// Focused and active: silent.
	e.OnMessage(active, inbound("seen live"))
	assert.Empty(t, n.titles)

	// Focused but inactive conversation: notify.
	e.OnMessage(other, inbound("elsewhere"))
	assert.Equal(t, []string{"bob"}, n.titles)

	// Unfocused, even the active conversation notifies.
	e.SetFocused(false)
	e.OnMessage(active, inbound("while away"))
	assert.Len(t, n.titles, 2)
}

func TestPermissionAskedOnceAndDenialSticks(t *testing.T) {
	n := &recordingNotifier{granted: false}
	e := NewEngine(1, n)
	key := models.PrivateKey(2)

	e.OnMessage(key, inbound("a"))
	e.OnMessage(key, inbound("b"))

	assert.Equal(t, 1, n.permissions)
	assert.Empty(t, n.titles)
	// Counters still track even when alerts are denied.
	assert.Equal(t, 2, e.Count(key))
}

func TestNotificationBodyTruncated(t *testing.T) {
	n := &recordingNotifier{granted: true}
	e := NewEngine(1, n)

	long := strings.Repeat("x", BodyLimit+40)
	e.OnMessage(models.PrivateKey(2), inbound(long))

	assert.Len(t, n.bodies, 1)
	assert.Equal(t, strings.Repeat("x", BodyLimit)+"…", n.bodies[0])
}

func TestDeactivateRestoresCounting(t *testing.T) {
	e := NewEngine(1, &recordingNotifier{granted: true})
	key := models.PrivateKey(2)

	e.Activate(key)
	e.Deactivate()
	assert.Equal(t, models.ConversationKey(""), e.Active())

	e.OnMessage(key, inbound("after close"))
	assert.Equal(t, 1, e.Count(key))
}
