// Package auth implements signup/login with signed sessions and the Google
// OAuth connect flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/in"
	"vendoriq_server/core/port/out"
	"vendoriq_server/pkg/logger"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidState       = errors.New("oauth state not found or expired")
	ErrOAuthNotConfigured = errors.New("google oauth not configured")
)

const (
	tokenTTL = 7 * 24 * time.Hour
	stateTTL = 10 * time.Minute

	// dummyHash is a throwaway bcrypt digest compared against when the
	// account does not exist, to keep login timing uniform.
	dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
)

// googleScopes are the exact scopes the ingestion pipeline needs: read-only
// mail, per-file drive access, read-only sheets, plus the userinfo email for
// account matching.
var googleScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

type Service struct {
	users     out.UserRepository
	states    out.OAuthStateStore
	blacklist out.TokenBlacklist

	jwtSecret    []byte
	googleConfig *oauth2.Config

	now func() time.Time
}

var _ in.AuthService = (*Service)(nil)

// NewService creates the auth service. The google config may be nil when no
// client credentials are configured; the OAuth endpoints then fail cleanly.
func NewService(users out.UserRepository, states out.OAuthStateStore, blacklist out.TokenBlacklist, jwtSecret, clientID, clientSecret, redirectURL string) *Service {
	var googleConfig *oauth2.Config
	if clientID != "" && clientSecret != "" {
		googleConfig = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       googleScopes,
			Endpoint:     google.Endpoint,
		}
	}

	return &Service{
		users:        users,
		states:       states,
		blacklist:    blacklist,
		jwtSecret:    []byte(jwtSecret),
		googleConfig: googleConfig,
		now:          time.Now,
	}
}

// ===== Accounts =====

func (s *Service) Register(ctx context.Context, name, email, password string) (*in.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}
	id, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}

	logger.WithField("user_id", user.ID).Info("Registered new user")
	return &in.AuthResult{Token: token, User: user}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*in.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a hash comparison anyway so a missing account costs the same
		// as a wrong password.
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &in.AuthResult{Token: token, User: user}, nil
}

// Logout revokes the token's jti for the remainder of its lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parseToken(token)
	if err != nil {
		return err
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return errors.New("token has no jti")
	}

	remaining := tokenTTL
	if exp, ok := claims["exp"].(float64); ok {
		remaining = time.Until(time.Unix(int64(exp), 0))
		if remaining <= 0 {
			return nil
		}
	}
	return s.blacklist.Revoke(ctx, jti, remaining)
}

// ===== Google OAuth =====

// GoogleAuthURL issues the consent URL. The state is a one-shot random
// value bound to the user, stored with a short TTL.
func (s *Service) GoogleAuthURL(ctx context.Context, userID string) (string, error) {
	if s.googleConfig == nil {
		return "", ErrOAuthNotConfigured
	}

	state := uuid.NewString()
	if err := s.states.StoreState(ctx, state, userID, stateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	// AccessTypeOffline + ApprovalForce so a refresh token is issued even
	// on re-consent.
	return s.googleConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleGoogleCallback validates the state, exchanges the code and stores
// the resulting tokens on the user the state was bound to.
func (s *Service) HandleGoogleCallback(ctx context.Context, state, code string) (*domain.User, error) {
	if s.googleConfig == nil {
		return nil, ErrOAuthNotConfigured
	}

	userID, err := s.states.ValidateState(ctx, state)
	if err != nil {
		return nil, ErrInvalidState
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	token, err := s.googleConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	googleEmail, err := s.getGoogleEmail(ctx, token)
	if err != nil {
		logger.WithError(err).Warn("Could not resolve Google account email")
	} else {
		logger.WithFields(map[string]any{
			"user_id":      user.ID,
			"google_email": googleEmail,
		}).Info("Google account connected")
	}

	// A missing refresh token means Google reused a prior grant; keep the
	// one already stored.
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = user.GoogleRefreshToken
	}
	if err := s.users.UpdateGoogleTokens(ctx, user.ID, token.AccessToken, refresh); err != nil {
		return nil, fmt.Errorf("failed to store google tokens: %w", err)
	}

	user.GoogleAccessToken = token.AccessToken
	user.GoogleRefreshToken = refresh
	return user, nil
}

func (s *Service) DisconnectGoogle(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.users.DisconnectGoogle(ctx, userID); err != nil {
		return err
	}
	logger.WithField("user_id", userID).Info("Google account disconnected")
	return nil
}

// ===== Tokens =====

// issueToken signs an HS256 JWT with a unique jti so individual sessions
// can be revoked.
func (s *Service) issueToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func (s *Service) getGoogleEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := s.googleConfig.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var userInfo struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(resp.Body, &userInfo); err != nil {
		return "", err
	}
	return userInfo.Email, nil
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
