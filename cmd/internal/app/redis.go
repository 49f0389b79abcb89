package app

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects to the revocation registry's Redis and validates
// connectivity up front, mirroring NewDBPool's fail-fast model.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := PingRedis(ctx, client, 3*time.Second); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// PingRedis checks Redis reachability within timeout.
func PingRedis(parent context.Context, client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return client.Ping(ctx).Err()
}
