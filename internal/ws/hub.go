package ws

import (
	"log"
	"sync"
)

// Hub tracks active clients and the channels they are subscribed to. A
// channel is either a conversation room or a per-user notification channel.
// All methods are safe for concurrent use.
type Hub struct {
	mu sync.RWMutex

	// channel name -> subscribed clients
	channels map[string]map[*Client]struct{}
	// client -> channels it is subscribed to, for cleanup on disconnect
	memberships map[*Client]map[string]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		channels:    make(map[string]map[*Client]struct{}),
		memberships: make(map[*Client]map[string]struct{}),
	}
}

// Register adds a client. Authenticated clients are auto-subscribed to their
// user channel so notifications reach them without joining any room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.memberships[client] = make(map[string]struct{})
	h.mu.Unlock()

	if client.UserID != 0 {
		h.Subscribe(client, UserChannel(client.UserID))
	}
}

// Unregister removes a client from every channel and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.memberships[client]
	if !ok {
		return
	}
	for channel := range subs {
		h.removeLocked(client, channel)
	}
	delete(h.memberships, client)
	close(client.send)
}

// Subscribe adds the client to a channel.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.memberships[client]
	if !ok {
		// Client already unregistered; nothing to join.
		return
	}
	subs[channel] = struct{}{}

	clients, ok := h.channels[channel]
	if !ok {
		clients = make(map[*Client]struct{})
		h.channels[channel] = clients
	}
	clients[client] = struct{}{}
}

// Unsubscribe removes the client from a channel.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.memberships[client]; ok {
		delete(subs, channel)
	}
	h.removeLocked(client, channel)
}

func (h *Hub) removeLocked(client *Client, channel string) {
	clients, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, channel)
	}
}

// Broadcast queues the payload for every client subscribed to the channel.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.BroadcastExcept(channel, nil, payload)
}

// BroadcastExcept queues the payload for every subscriber except the given
// client. Slow clients are skipped rather than blocked on.
func (h *Hub) BroadcastExcept(channel string, except *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.channels[channel] {
		if client == except {
			continue
		}
		select {
		case client.send <- payload:
		default:
			log.Printf("Send queue full for user %d on channel %s, dropping frame", client.UserID, channel)
		}
	}
}

// Subscribed reports whether the client is currently subscribed to the
// channel.
func (h *Hub) Subscribed(client *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.memberships[client]
	if !ok {
		return false
	}
	_, ok = subs[channel]
	return ok
}

// SubscriberCount returns how many clients are subscribed to the channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
