package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vendoriq_server/core/port/out"
)

// oauthStateKey is the Redis key prefix for OAuth CSRF states.
const oauthStateKey = "oauth:state:"

// RedisOAuthStateStore holds one-shot OAuth states in Redis. TTL expiry
// handles abandoned flows; GETDEL makes validation consume the state
// atomically.
type RedisOAuthStateStore struct {
	client *redis.Client
}

// NewRedisOAuthStateStore creates a new Redis OAuth state store.
func NewRedisOAuthStateStore(client *redis.Client) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

// StoreState binds the state to a userID for the given TTL.
func (s *RedisOAuthStateStore) StoreState(ctx context.Context, state, userID string, ttl time.Duration) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if userID == "" {
		return errors.New("userID cannot be empty")
	}

	if err := s.client.Set(ctx, oauthStateKey+state, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return nil
}

// ValidateState returns the bound userID and deletes the state in one
// operation, so a replayed state always fails.
func (s *RedisOAuthStateStore) ValidateState(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", errors.New("state cannot be empty")
	}

	userID, err := s.client.GetDel(ctx, oauthStateKey+state).Result()
	if err == redis.Nil {
		return "", errors.New("state not found or expired")
	}
	if err != nil {
		return "", fmt.Errorf("failed to validate OAuth state: %w", err)
	}
	return userID, nil
}

var _ out.OAuthStateStore = (*RedisOAuthStateStore)(nil)
