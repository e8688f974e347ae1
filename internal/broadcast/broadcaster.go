package broadcast

import (
	"context"

	"github.com/rishabh1721/WanderLust/internal/ws"
)

// Broadcaster publishes realtime events to a named channel. The hub-backed
// implementation reaches clients on this process; the Kafka-backed one also
// relays to every other server instance.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, event ws.Event) error
	// PublishExcept skips one local client, typically the sender of a typing
	// indicator. Remote instances deliver to all their subscribers; the
	// excluded client is by definition connected here.
	PublishExcept(ctx context.Context, channel string, except *ws.Client, event ws.Event) error
}

// HubBroadcaster delivers events to local hub subscribers only. Suitable for
// single-instance deployments and tests.
type HubBroadcaster struct {
	hub *ws.Hub
}

// NewHubBroadcaster creates a Broadcaster that only reaches local clients.
func NewHubBroadcaster(hub *ws.Hub) *HubBroadcaster {
	return &HubBroadcaster{hub: hub}
}

func (b *HubBroadcaster) Publish(ctx context.Context, channel string, event ws.Event) error {
	return b.PublishExcept(ctx, channel, nil, event)
}

func (b *HubBroadcaster) PublishExcept(ctx context.Context, channel string, except *ws.Client, event ws.Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}
	b.hub.BroadcastExcept(channel, except, payload)
	return nil
}
