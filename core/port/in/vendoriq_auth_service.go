package in

import (
	"context"

	"vendoriq_server/core/domain"
)

// AuthResult is a signed session for a user.
type AuthResult struct {
	Token string
	User  *domain.User
}

// AuthService covers account signup/login, JWT issuance and the Google
// OAuth connect/disconnect flow.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, token string) error

	// GoogleAuthURL issues a consent URL carrying a one-shot state bound to
	// the user.
	GoogleAuthURL(ctx context.Context, userID string) (string, error)
	// HandleGoogleCallback validates the state, exchanges the code and
	// stores the tokens on the user row.
	HandleGoogleCallback(ctx context.Context, state, code string) (*domain.User, error)
	DisconnectGoogle(ctx context.Context, userID string) error
}
