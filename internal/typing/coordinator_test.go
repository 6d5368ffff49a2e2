package typing

import (
	"sync"
	"testing"
	"time"

	"chat-client/internal/models"
)

type sentSignal struct {
	receiver string
	groupID  int64
	typing   bool
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentSignal
}

func (f *fakeSender) SendTyping(receiver string, groupID int64, typing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentSignal{receiver: receiver, groupID: groupID, typing: typing})
	return nil
}

func (f *fakeSender) signals() []sentSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentSignal, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestBurstSendsOneTrueThenOneFalse(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator("alice", sender, 30*time.Millisecond, time.Second)
	defer c.Close()

	scope := PrivateScope("bob")
	for i := 0; i < 5; i++ {
		c.InputChanged(scope)
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)

	got := sender.signals()
	if len(got) != 2 {
		t.Fatalf("expected exactly true+false, got %+v", got)
	}
	if !got[0].typing || got[0].receiver != "bob" {
		t.Fatalf("first signal should be typing=true to bob: %+v", got[0])
	}
	if got[1].typing {
		t.Fatalf("debounce should end the burst with typing=false: %+v", got[1])
	}
}

func TestMessageSentFlushesImmediately(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator("alice", sender, time.Hour, time.Second)
	defer c.Close()

	scope := GroupScope(7)
	c.InputChanged(scope)
	c.MessageSent(scope)

	got := sender.signals()
	if len(got) != 2 || got[0].typing != true || got[1].typing != false {
		t.Fatalf("expected true then false without waiting for debounce, got %+v", got)
	}
	if got[0].groupID != 7 {
		t.Fatalf("group scope lost: %+v", got[0])
	}
}

func TestMessageSentWithoutBurstSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator("alice", sender, time.Hour, time.Second)
	defer c.Close()

	c.MessageSent(PrivateScope("bob"))
	if got := sender.signals(); len(got) != 0 {
		t.Fatalf("no burst in flight, expected silence, got %+v", got)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator("alice", sender, time.Hour, time.Second)
	defer c.Close()

	c.InputChanged(PrivateScope("bob"))
	c.InputChanged(GroupScope(7))
	c.MessageSent(PrivateScope("bob"))

	got := sender.signals()
	if len(got) != 3 {
		t.Fatalf("expected true,true,false, got %+v", got)
	}
	if got[2].typing || got[2].receiver != "bob" {
		t.Fatalf("flush crossed scopes: %+v", got[2])
	}
}

func TestHandleRemoteTracksAndExpires(t *testing.T) {
	c := NewCoordinator("alice", &fakeSender{}, time.Second, 40*time.Millisecond)
	defer c.Close()

	key := models.GroupKey(7)
	c.HandleRemote(key, "bob", true)
	c.HandleRemote(key, "carol", true)
	c.HandleRemote(key, "bob", true) // rearm, still one entry

	users := c.TypingUsers(key)
	if len(users) != 2 || users[0] != "bob" || users[1] != "carol" {
		t.Fatalf("expected sorted [bob carol], got %v", users)
	}

	time.Sleep(100 * time.Millisecond)
	if users := c.TypingUsers(key); len(users) != 0 {
		t.Fatalf("expiry should clear stale typers, got %v", users)
	}
}

func TestHandleRemoteFalseRemovesImmediately(t *testing.T) {
	c := NewCoordinator("alice", &fakeSender{}, time.Second, time.Hour)
	defer c.Close()

	key := models.PrivateKey(2)
	c.HandleRemote(key, "bob", true)
	c.HandleRemote(key, "bob", false)

	if users := c.TypingUsers(key); len(users) != 0 {
		t.Fatalf("typing=false should remove, got %v", users)
	}
}

func TestHandleRemoteIgnoresOwnEcho(t *testing.T) {
	c := NewCoordinator("alice", &fakeSender{}, time.Second, time.Hour)
	defer c.Close()

	key := models.GroupKey(7)
	c.HandleRemote(key, "alice", true)
	if users := c.TypingUsers(key); len(users) != 0 {
		t.Fatalf("own echo must be ignored, got %v", users)
	}
}

func TestCloseDisposesTimers(t *testing.T) {
	sender := &fakeSender{}
	c := NewCoordinator("alice", sender, 20*time.Millisecond, time.Hour)

	c.InputChanged(PrivateScope("bob"))
	c.Close()

	time.Sleep(60 * time.Millisecond)
	got := sender.signals()
	if len(got) != 1 {
		t.Fatalf("debounce timer must not fire after Close, got %+v", got)
	}

	c.InputChanged(PrivateScope("bob"))
	if got := sender.signals(); len(got) != 1 {
		t.Fatalf("events after Close must be ignored, got %+v", got)
	}
}
