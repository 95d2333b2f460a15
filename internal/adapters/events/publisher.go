package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/identity-core/internal/ports"
)

// RedisNotifier publishes notifications on a Redis channel consumed by the
// mail pipeline. Delivery is fire-and-forget: a missing subscriber is not an error.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewRedisNotifier(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = "identity.notifications"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	n.logger.InfoContext(ctx, "notification published",
		"module", "events",
		"layer", "adapter",
		"operation", "notify",
		"outcome", "success",
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"receivers", receivers,
	)
	return nil
}

// LoggingNotifier records that a notification would be sent. Used when no
// broker is configured. The link is never written to the log.
type LoggingNotifier struct {
	logger *slog.Logger
}

func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	n.logger.InfoContext(ctx, "notification dropped (no broker configured)",
		"module", "events",
		"layer", "adapter",
		"operation", "notify",
		"outcome", "skipped",
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"has_link", msg.Link != "",
	)
	return nil
}
