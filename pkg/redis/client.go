package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quorumdao/govx/pkg/utils"
)

// Client wraps the redis client used for real-time event notifications
// (pub/sub only). The sink is optional: callers treat a nil *Client as
// "no sink configured".
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient creates a redis client from environment variables:
//   - REDIS_HOST: redis host (default: "localhost")
//   - REDIS_PORT: redis port (default: "6379")
//   - REDIS_PASSWORD: redis password (default: "")
//   - REDIS_DB: redis database number (default: "0")
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", addr), zap.Int("db", db))

	return &Client{client: rdb, logger: logger}, nil
}

// Close closes the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes a message to a pub/sub channel. Best effort: errors are
// logged, never returned, so a missing subscriber side cannot fail the
// operation that emitted the event.
func (c *Client) Publish(ctx context.Context, channel string, message any) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("failed to publish redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe subscribes to one or more channel patterns, e.g. "govx:*".
// The caller is responsible for closing the returned PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return c.client.PSubscribe(ctx, patterns...)
}

// Health checks the redis connection.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
