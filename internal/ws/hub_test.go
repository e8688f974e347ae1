package ws

import (
	"testing"
)

func newTestClient(userID uint) *Client {
	return &Client{
		UserID: userID,
		send:   make(chan []byte, 8),
	}
}

func drain(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case frame := <-c.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestHubRegisterJoinsUserChannel(t *testing.T) {
	hub := NewHub()
	client := newTestClient(7)
	hub.Register(client)

	hub.Broadcast(UserChannel(7), []byte("hi"))
	if got := drain(client); len(got) != 1 || string(got[0]) != "hi" {
		t.Errorf("expected one frame on user channel, got %v", got)
	}
}

func TestHubUnauthenticatedClientHasNoUserChannel(t *testing.T) {
	hub := NewHub()
	client := newTestClient(0)
	hub.Register(client)

	if hub.SubscriberCount(UserChannel(0)) != 0 {
		t.Error("anonymous client must not join a user channel")
	}
}

func TestHubSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1)
	b := newTestClient(2)
	c := newTestClient(3)
	for _, client := range []*Client{a, b, c} {
		hub.Register(client)
	}

	channel := ConversationChannel(42)
	hub.Subscribe(a, channel)
	hub.Subscribe(b, channel)

	hub.Broadcast(channel, []byte("msg"))

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Error("subscribers should receive the frame")
	}
	if len(drain(c)) != 0 {
		t.Error("non-subscriber should not receive the frame")
	}
}

func TestHubBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1)
	b := newTestClient(2)
	hub.Register(a)
	hub.Register(b)

	channel := ConversationChannel(9)
	hub.Subscribe(a, channel)
	hub.Subscribe(b, channel)

	hub.BroadcastExcept(channel, a, []byte("typing"))

	if len(drain(a)) != 0 {
		t.Error("excluded client should not receive the frame")
	}
	if len(drain(b)) != 1 {
		t.Error("other subscriber should receive the frame")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1)
	hub.Register(a)

	channel := ConversationChannel(5)
	hub.Subscribe(a, channel)
	if !hub.Subscribed(a, channel) {
		t.Fatal("expected subscription")
	}

	hub.Unsubscribe(a, channel)
	if hub.Subscribed(a, channel) {
		t.Error("expected unsubscription")
	}
	hub.Broadcast(channel, []byte("x"))
	if len(drain(a)) != 0 {
		t.Error("unsubscribed client should not receive frames")
	}
}

func TestHubUnregisterCleansUp(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1)
	hub.Register(a)
	channel := ConversationChannel(5)
	hub.Subscribe(a, channel)

	hub.Unregister(a)

	if hub.SubscriberCount(channel) != 0 {
		t.Error("channel should be empty after unregister")
	}
	if hub.SubscriberCount(UserChannel(1)) != 0 {
		t.Error("user channel should be empty after unregister")
	}
	if _, ok := <-a.send; ok {
		t.Error("send channel should be closed")
	}

	// Unregistering twice must not panic.
	hub.Unregister(a)
}

func TestHubSubscribeAfterUnregisterIsNoop(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1)
	hub.Register(a)
	hub.Unregister(a)

	channel := ConversationChannel(5)
	hub.Subscribe(a, channel)
	if hub.SubscriberCount(channel) != 0 {
		t.Error("unregistered client must not be re-added")
	}
}

func TestHubFullQueueDropsFrame(t *testing.T) {
	hub := NewHub()
	a := &Client{UserID: 1, send: make(chan []byte, 1)}
	hub.Register(a)

	channel := ConversationChannel(3)
	hub.Subscribe(a, channel)

	hub.Broadcast(channel, []byte("one"))
	hub.Broadcast(channel, []byte("two")) // dropped, queue full

	frames := drain(a)
	if len(frames) != 1 || string(frames[0]) != "one" {
		t.Errorf("expected only the first frame, got %v", frames)
	}
}
