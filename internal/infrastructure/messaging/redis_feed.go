package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// DefaultFeedChannel is the Redis channel other services subscribe to.
const DefaultFeedChannel = "commandcentre:events"

// Publisher is the part of the Redis client the feed needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisFeed forwards every event as a JSON envelope on a Redis channel so
// notification and reporting services can react without polling.
type RedisFeed struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisFeed creates a feed. An empty channel uses DefaultFeedChannel.
func NewRedisFeed(client Publisher, channel string, logger *slog.Logger) *RedisFeed {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, channel: channel, timeout: 2 * time.Second, logger: logger}
}

// Handle is a shared.EventHandler; register it with SubscribeAll.
func (f *RedisFeed) Handle(event shared.Event) error {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("feed: envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("feed: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("feed: publish %s: %w", event.EventType(), err)
	}
	f.logger.Debug("event forwarded", "event_type", event.EventType(), "channel", f.channel)
	return nil
}
