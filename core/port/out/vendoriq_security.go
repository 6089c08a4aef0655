package out

import (
	"context"
	"time"
)

// OAuthStateStore holds one-shot CSRF states for the OAuth flow. A state is
// consumed on validation; a second validation of the same state must fail.
type OAuthStateStore interface {
	StoreState(ctx context.Context, state, userID string, ttl time.Duration) error
	// ValidateState returns the userID bound to the state and deletes it
	// atomically.
	ValidateState(ctx context.Context, state string) (string, error)
}

// TokenBlacklist revokes issued JWTs by their jti until they expire on
// their own.
type TokenBlacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
