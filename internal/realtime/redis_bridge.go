package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge publishes events on a shared Redis channel and relays every
// received event into the local Hub, so clients connected to any instance
// see events raised on all of them.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zerolog.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zerolog.Logger) *RedisBridge {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBridge) Notify(ctx context.Context, channel string, ev Event) error {
	ev.Channel = channel
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run relays published events to the hub until ctx is done. ready, if not
// nil, is closed once the subscription is active.
func (b *RedisBridge) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn().Err(err).Msg("dropping malformed realtime event")
				continue
			}
			if ev.Channel == "" {
				continue
			}
			b.hub.deliver(ev.Channel, []byte(msg.Payload))
		}
	}
}
