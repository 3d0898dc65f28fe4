package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier pages waiting volunteers by publishing to a Redis channel the
// matching service subscribes to. Delivery is best effort; the coordinator
// treats failures as log-only.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// waitingSession is the published payload.
type waitingSession struct {
	Type     string    `json:"type"`
	SubTopic string    `json:"subTopic,omitempty"`
	At       time.Time `json:"at"`
}

// NewRedisNotifier connects to Redis and verifies it responds.
func NewRedisNotifier(addr, password, channel string) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisNotifier{client: client, channel: channel}, nil
}

// SessionWaiting publishes a waiting-session announcement.
func (n *RedisNotifier) SessionWaiting(ctx context.Context, sessionType, subTopic string) error {
	payload, err := json.Marshal(waitingSession{
		Type:     sessionType,
		SubTopic: subTopic,
		At:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Noop discards notifications. Used when no Redis address is configured and
// in tests.
type Noop struct{}

func (Noop) SessionWaiting(ctx context.Context, sessionType, subTopic string) error {
	return nil
}
