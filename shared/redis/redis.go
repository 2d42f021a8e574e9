package redis

import (
	"context"
	"time"

	"whatsmoney/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Client is a thin wrapper around go-redis used as a look-aside cache
// for directory lookups
type Client struct {
	client *redis.Client
}

// NewClient creates a Redis client from service configuration
func NewClient() *Client {
	cfg := config.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{client: client}
}

// Set stores a value with the given expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value; returns redis.Nil error when absent
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Del removes a key
func (c *Client) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Ping checks connectivity, used by the health checker
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// IsNotFound reports whether err means the key was absent
func IsNotFound(err error) bool {
	return err == redis.Nil
}
