package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
)

// EventForwarder publishes every domain event it receives to a Redis
// channel as a JSON envelope, so other processes can follow learner
// activity.
type EventForwarder struct {
	client  *Client
	channel string
	timeout time.Duration
}

// NewEventForwarder publishes to {prefix}{channel}.
func NewEventForwarder(client *Client, channel string) (*EventForwarder, error) {
	full, err := client.Key(channel)
	if err != nil {
		return nil, err
	}
	return &EventForwarder{client: client, channel: full, timeout: 2 * time.Second}, nil
}

// Channel returns the full channel name.
func (f *EventForwarder) Channel() string { return f.channel }

// Handle implements shared.EventHandler.
func (f *EventForwarder) Handle(event shared.Event) error {
	env, err := shared.NewEnvelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.client.rdb.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", event.EventType(), err)
	}
	return nil
}
