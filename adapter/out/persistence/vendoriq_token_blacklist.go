package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vendoriq_server/core/port/out"
)

// tokenBlacklistKey is the Redis key prefix for revoked JWT ids.
const tokenBlacklistKey = "auth:revoked:"

// RedisTokenBlacklist stores revoked jtis until their tokens expire. The
// TTL matches the token's remaining lifetime, so entries clean themselves up.
type RedisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist creates a new Redis token blacklist.
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{client: client}
}

func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("jti cannot be empty")
	}
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, tokenBlacklistKey+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (b *RedisTokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, tokenBlacklistKey+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

var _ out.TokenBlacklist = (*RedisTokenBlacklist)(nil)
