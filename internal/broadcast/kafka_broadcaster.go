package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	confluent "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/rishabh1721/WanderLust/internal/config"
	"github.com/rishabh1721/WanderLust/internal/kafka"
	"github.com/rishabh1721/WanderLust/internal/ws"
)

// Envelope is the wire form of an event on the events topic. Origin
// identifies the publishing instance so it can skip its own messages; local
// clients already received the event directly.
type Envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KafkaBroadcaster fans events out to local hub subscribers and relays them
// through Kafka to every other server instance. Each instance consumes the
// events topic under its own consumer group, so every instance sees every
// event.
type KafkaBroadcaster struct {
	hub      *ws.Hub
	producer kafka.MessageProducer
	consumer kafka.MessageConsumer
	topic    string
	groupID  string
	origin   string
}

// NewKafkaBroadcaster creates a Broadcaster backed by the given Kafka
// producer and consumer.
func NewKafkaBroadcaster(hub *ws.Hub, producer kafka.MessageProducer, consumer kafka.MessageConsumer, cfg config.KafkaConfig) *KafkaBroadcaster {
	origin := uuid.New().String()
	return &KafkaBroadcaster{
		hub:      hub,
		producer: producer,
		consumer: consumer,
		topic:    cfg.EventsTopic,
		groupID:  cfg.GroupPrefix + "-" + origin,
		origin:   origin,
	}
}

func (b *KafkaBroadcaster) Publish(ctx context.Context, channel string, event ws.Event) error {
	return b.PublishExcept(ctx, channel, nil, event)
}

func (b *KafkaBroadcaster) PublishExcept(ctx context.Context, channel string, except *ws.Client, event ws.Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}

	// Local delivery first; a Kafka outage degrades to single-instance
	// realtime instead of silence.
	b.hub.BroadcastExcept(channel, except, payload)

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data for channel %s: %w", channel, err)
	}
	envelope := Envelope{
		Origin:  b.origin,
		Channel: channel,
		Event:   event.Name,
		Data:    data,
	}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope for channel %s: %w", channel, err)
	}

	// Keyed by channel so events for one conversation stay ordered.
	if err := b.producer.SendMessage(ctx, b.topic, []byte(channel), envelopeBytes); err != nil {
		log.Printf("Failed to relay event %q on channel %s: %v", event.Name, channel, err)
	}
	return nil
}

// Run consumes the events topic and delivers relayed events to local
// subscribers. Blocks until the context is canceled.
func (b *KafkaBroadcaster) Run(ctx context.Context) error {
	return b.consumer.Consume(ctx, []string{b.topic}, b.groupID, func(ctx context.Context, msg *confluent.Message) error {
		var envelope Envelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			log.Printf("Dropping malformed envelope: %v", err)
			return nil
		}
		if envelope.Origin == b.origin {
			return nil
		}

		event := ws.Event{Name: envelope.Event, Data: envelope.Data}
		payload, err := event.Encode()
		if err != nil {
			log.Printf("Failed to re-encode relayed event %q: %v", envelope.Event, err)
			return nil
		}
		b.hub.Broadcast(envelope.Channel, payload)
		return nil
	})
}
