package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", e.Type(), err)
	}
	return json.Marshal(envelope{Type: e.Type(), Data: data})
}

func decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling event envelope: %w", err)
	}

	switch env.Type {
	case TypeMessageReceived:
		var e MessageReceived
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshaling %s event: %w", env.Type, err)
		}
		return e, nil
	case TypeRoomJoined:
		var e RoomJoined
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshaling %s event: %w", env.Type, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// RedisBus relays events through a Redis pub/sub channel so every server
// instance, this one included, dispatches them to its local Bus.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *Bus
}

func NewRedisBus(client *redis.Client, channel string, local *Bus) *RedisBus {
	return &RedisBus{client: client, channel: channel, local: local}
}

// Publish falls back to local dispatch when Redis is unreachable, so
// connections on this instance still receive the event.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		slog.Warn("redis publish failed, dispatching locally", "component", "events", "type", e.Type(), "error", err)
		return b.local.Publish(ctx, e)
	}
	return nil
}

// Run forwards events from the Redis channel to the local bus until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	slog.Info("subscribed to event channel", "component", "events", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("event channel closed")
			}
			e, err := decode([]byte(msg.Payload))
			if err != nil {
				slog.Error("error decoding event", "component", "events", "error", err)
				continue
			}
			_ = b.local.Publish(ctx, e)
		}
	}
}
