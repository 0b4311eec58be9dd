package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/config"
)

// Client is a thin wrapper around go-redis scoped to the runtime's needs.
type Client struct {
	client *redis.Client
}

// NewClient builds a client from the runtime configuration.
func NewClient(cfg *config.Config) *Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{client: client}
}

// Ping reports whether the redis server is reachable.
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set stores a value under key with the given expiration.
func (r *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves the string value stored under key. A missing key returns
// redis.Nil in the error position.
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del removes a key.
func (r *Client) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// IsMiss reports whether err means "key not present" rather than a transport
// failure.
func IsMiss(err error) bool {
	return err == redis.Nil
}
