package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const (
	// RoomPattern matches every gateway-originated room event channel.
	RoomPattern = "room:*"

	// ExecutionResultPattern matches every execution result channel. Workers
	// publish here without knowing anything about the gateway's topics.
	ExecutionResultPattern = "execution:result:*"
)

// RoomChannel is the channel carrying a room's gateway-originated events.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// ExecutionResultChannel is the channel carrying a room's execution results.
func ExecutionResultChannel(roomID string) string {
	return "execution:result:" + roomID
}

// Delivery is one envelope received on a subscription.
type Delivery struct {
	Channel  string
	Envelope Envelope
}

// Bus broadcasts room-scoped envelopes to every subscribed gateway instance.
// Delivery is fire-and-forget: at most once per subscriber, no replay.
type Bus interface {
	// Publish sends env on the named channel.
	Publish(ctx context.Context, channel string, env Envelope) error

	// Subscribe returns a channel receiving every envelope published on a
	// channel matching one of the glob patterns. The subscription ends and
	// the channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, patterns ...string) (<-chan Delivery, error)
}

// RedisBus is the production Bus, built on Redis pub/sub so an event
// published by any instance reaches the sessions of every instance.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus creates a Bus backed by the given Redis client.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, channel string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	log.Printf("[events] %s published to %s", env.Message.Event, channel)
	return nil
}

// Subscribe implements Bus using PSUBSCRIBE. Envelopes on the same channel
// are delivered in publish order by a single goroutine per subscription.
func (b *RedisBus) Subscribe(ctx context.Context, patterns ...string) (<-chan Delivery, error) {
	sub := b.rdb.PSubscribe(ctx, patterns...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", patterns, err)
	}

	out := make(chan Delivery, 64)
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[events] dropping malformed payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- Delivery{Channel: msg.Channel, Envelope: env}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
