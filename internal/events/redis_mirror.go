package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMirror republishes committed events on a Redis channel so that
// reporting consumers outside this process can follow ticket history.
type RedisMirror struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisMirror builds a mirror for the given channel.
func NewRedisMirror(client redis.UniversalClient, channel string) *RedisMirror {
	return &RedisMirror{client: client, channel: channel}
}

// Attach subscribes the mirror to every event type.
func (m *RedisMirror) Attach(dispatcher Dispatcher) {
	if m == nil || m.client == nil || dispatcher == nil {
		return
	}
	for _, eventType := range AllEventTypes {
		dispatcher.Subscribe(eventType, m.Handle)
	}
}

// Handle encodes the event as JSON and publishes it.
func (m *RedisMirror) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := m.client.Publish(ctx, m.channel, body).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}
