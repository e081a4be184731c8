// internal/storage/redis/notifier.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notifier broadcasts payloads over Redis pub/sub.
type Notifier struct {
	client *redis.Client
}

// NewNotifier wraps an existing Redis client.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

// Broadcast publishes the payload as JSON on the given channel.
func (n *Notifier) Broadcast(ctx context.Context, channel string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
