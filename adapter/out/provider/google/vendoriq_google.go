// Package google implements the Gmail, Drive and Sheets adapters. Every
// call authenticates from the user's stored refresh token; access tokens
// are minted (and cached) by the oauth2 transport.
package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credentials carries the OAuth client configuration shared by the adapters.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c Credentials) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     google.Endpoint,
	}
}

// clientFor builds an HTTP client that exchanges the refresh token for
// access tokens as needed.
func (c Credentials) clientFor(ctx context.Context, refreshToken string) *http.Client {
	token := &oauth2.Token{RefreshToken: refreshToken}
	return c.config().Client(ctx, token)
}
