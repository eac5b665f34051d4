package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViewCache is a JSON-backed Redis cache for one read-model type. A ttl of 0
// stores keys without expiry.
type ViewCache[T any] struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewViewCache[T any](client goredis.Cmdable, prefix string, ttl time.Duration, logger *slog.Logger) *ViewCache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get returns (nil, false) on any miss, including unreadable payloads.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	data, err := c.client.Get(ctx, c.prefix+id).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("view cache read failed", slog.String("key", c.prefix+id), slog.Any("error", err))
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("view cache entry unreadable", slog.String("key", c.prefix+id), slog.Any("error", err))
		return nil, false
	}
	return &v, true
}

// Set stores value under id. Write failures are logged, not returned.
func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("view cache marshal failed", slog.String("key", c.prefix+id), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+id, data, c.ttl).Err(); err != nil {
		c.logger.Warn("view cache write failed", slog.String("key", c.prefix+id), slog.Any("error", err))
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		c.logger.Warn("view cache delete failed", slog.String("key", c.prefix+id), slog.Any("error", err))
	}
}
