package session

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// revokedKeyPrefix namespaces denylist entries so the registry can share a
// Redis database with other subsystems.
const revokedKeyPrefix = "revoked:"

// RedisRevocationRegistry is a RevocationRegistry backed by Redis.
//
// Redis is the natural fit here: entries are small, expire on their own via
// key TTLs, and every bazaar instance sees a revocation the moment any one
// of them records it.
type RedisRevocationRegistry struct {
	client *redis.Client
}

// NewRedisRevocationRegistry wraps an already-connected client.
func NewRedisRevocationRegistry(client *redis.Client) *RedisRevocationRegistry {
	return &RedisRevocationRegistry{client: client}
}

func (r *RedisRevocationRegistry) Revoke(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	if ttl <= 0 {
		// Already past natural expiry; nothing to deny.
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+key, "1", ttl).Err()
}

func (r *RedisRevocationRegistry) IsRevoked(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, revokedKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
