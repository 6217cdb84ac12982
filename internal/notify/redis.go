package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notify:"

// RedisPublisher sends events through Redis so that the instance holding
// the receiver's connection can deliver them.
type RedisPublisher struct {
	client redis.UniversalClient
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channelPrefix+userID, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay forwards events received from Redis into the local Hub.
type Relay struct {
	client redis.UniversalClient
	hub    *Hub
}

func NewRelay(client redis.UniversalClient, hub *Hub) *Relay {
	return &Relay{client: client, hub: hub}
}

// Start subscribes and returns once the subscription is confirmed. Events
// are relayed until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("notify relay: bad payload", "channel", msg.Channel, "err", err)
					continue
				}
				_ = r.hub.Publish(ctx, strings.TrimPrefix(msg.Channel, channelPrefix), ev)
			}
		}
	}()
	return nil
}
