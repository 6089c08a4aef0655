package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vendoriq_server/core/domain"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeUsers struct {
	users  map[string]*domain.User
	nextID int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}}
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	return f.users[id], nil
}
func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
func (f *fakeUsers) Create(_ context.Context, u *domain.User) (string, error) {
	f.nextID++
	id := fmt.Sprintf("user-%03d", f.nextID)
	u.ID = id
	f.users[id] = u
	return id, nil
}
func (f *fakeUsers) UpdateGoogleTokens(_ context.Context, id, at, rt string) error {
	if u, ok := f.users[id]; ok {
		u.GoogleAccessToken = at
		u.GoogleRefreshToken = rt
	}
	return nil
}
func (f *fakeUsers) DisconnectGoogle(_ context.Context, id string) error {
	if u, ok := f.users[id]; ok {
		u.GoogleAccessToken = ""
		u.GoogleRefreshToken = ""
	}
	return nil
}
func (f *fakeUsers) UpdateLastSyncedAt(_ context.Context, _ string, _ time.Time) error { return nil }

type fakeStateStore struct {
	states map[string]string
}

func (f *fakeStateStore) StoreState(_ context.Context, state, userID string, _ time.Duration) error {
	f.states[state] = userID
	return nil
}
func (f *fakeStateStore) ValidateState(_ context.Context, state string) (string, error) {
	userID, ok := f.states[state]
	if !ok {
		return "", errors.New("state not found or expired")
	}
	delete(f.states, state)
	return userID, nil
}

type fakeBlacklist struct {
	revoked map[string]bool
}

func (f *fakeBlacklist) Revoke(_ context.Context, jti string, _ time.Duration) error {
	f.revoked[jti] = true
	return nil
}
func (f *fakeBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func newTestService(users *fakeUsers) (*Service, *fakeStateStore, *fakeBlacklist) {
	states := &fakeStateStore{states: map[string]string{}}
	blacklist := &fakeBlacklist{revoked: map[string]bool{}}
	svc := NewService(users, states, blacklist, "test-secret", "client-id", "client-secret", "http://localhost:4002/api/v1/auth/google/callback")
	return svc, states, blacklist
}

// =============================================================================
// Tests
// =============================================================================

func TestRegisterAndLogin(t *testing.T) {
	users := newFakeUsers()
	svc, _, _ := newTestService(users)
	ctx := context.Background()

	res, err := svc.Register(ctx, "Jane", "Jane@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.Token == "" {
		t.Error("no token issued on register")
	}
	if res.User.Email != "jane@example.com" {
		t.Errorf("email = %q, want lowercased trimmed", res.User.Email)
	}
	if res.User.PasswordHash == "hunter22" || res.User.PasswordHash == "" {
		t.Error("password stored unhashed")
	}

	// Duplicate email is rejected regardless of case.
	if _, err := svc.Register(ctx, "Jane2", "JANE@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate register: err = %v, want ErrEmailTaken", err)
	}

	login, err := svc.Login(ctx, "jane@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.ID != res.User.ID {
		t.Errorf("login user = %q, want %q", login.User.ID, res.User.ID)
	}

	if _, err := svc.Login(ctx, "jane@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown account: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	users := newFakeUsers()
	svc, _, _ := newTestService(users)

	res, err := svc.Register(context.Background(), "Jane", "jane@example.com", "pw")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	claims, err := svc.parseToken(res.Token)
	if err != nil {
		t.Fatalf("parseToken() error = %v", err)
	}
	if claims["sub"] != res.User.ID {
		t.Errorf("sub = %v, want %q", claims["sub"], res.User.ID)
	}
	if jti, _ := claims["jti"].(string); jti == "" {
		t.Error("token missing jti")
	}

	// A token signed with another secret must not parse.
	other := NewService(users, &fakeStateStore{states: map[string]string{}}, &fakeBlacklist{revoked: map[string]bool{}},
		"different-secret", "", "", "")
	if _, err := other.parseToken(res.Token); err == nil {
		t.Error("token accepted under wrong secret")
	}
}

func TestLogout_RevokesJTI(t *testing.T) {
	users := newFakeUsers()
	svc, _, blacklist := newTestService(users)
	ctx := context.Background()

	res, err := svc.Register(ctx, "Jane", "jane@example.com", "pw")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.Logout(ctx, res.Token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	claims, _ := svc.parseToken(res.Token)
	jti := claims["jti"].(string)
	revoked, _ := blacklist.IsRevoked(ctx, jti)
	if !revoked {
		t.Error("jti not blacklisted after logout")
	}

	if err := svc.Logout(ctx, "not-a-token"); err == nil {
		t.Error("garbage token accepted by Logout")
	}
}

func TestGoogleAuthURL_BindsOneShotState(t *testing.T) {
	users := newFakeUsers()
	svc, states, _ := newTestService(users)
	ctx := context.Background()

	url, err := svc.GoogleAuthURL(ctx, "u1")
	if err != nil {
		t.Fatalf("GoogleAuthURL() error = %v", err)
	}
	if !strings.Contains(url, "accounts.google.com") {
		t.Errorf("url = %q, want Google consent endpoint", url)
	}
	if !strings.Contains(url, "access_type=offline") {
		t.Error("consent URL missing offline access, no refresh token would be issued")
	}
	if len(states.states) != 1 {
		t.Fatalf("states stored = %d, want 1", len(states.states))
	}

	var state string
	for s := range states.states {
		state = s
	}
	got, err := states.ValidateState(ctx, state)
	if err != nil || got != "u1" {
		t.Errorf("ValidateState = (%q, %v), want bound user u1", got, err)
	}
	// One-shot: a second validation fails.
	if _, err := states.ValidateState(ctx, state); err == nil {
		t.Error("state validated twice")
	}
}

func TestHandleGoogleCallback_RejectsUnknownState(t *testing.T) {
	svc, _, _ := newTestService(newFakeUsers())

	if _, err := svc.HandleGoogleCallback(context.Background(), "forged-state", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestGoogleOAuth_Unconfigured(t *testing.T) {
	users := newFakeUsers()
	svc := NewService(users, &fakeStateStore{states: map[string]string{}}, &fakeBlacklist{revoked: map[string]bool{}},
		"secret", "", "", "")

	if _, err := svc.GoogleAuthURL(context.Background(), "u1"); !errors.Is(err, ErrOAuthNotConfigured) {
		t.Errorf("err = %v, want ErrOAuthNotConfigured", err)
	}
}

func TestDisconnectGoogle(t *testing.T) {
	users := newFakeUsers()
	svc, _, _ := newTestService(users)
	ctx := context.Background()

	res, _ := svc.Register(ctx, "Jane", "jane@example.com", "pw")
	users.users[res.User.ID].GoogleAccessToken = "at"
	users.users[res.User.ID].GoogleRefreshToken = "rt"

	if err := svc.DisconnectGoogle(ctx, res.User.ID); err != nil {
		t.Fatalf("DisconnectGoogle() error = %v", err)
	}
	if users.users[res.User.ID].IsConnected() {
		t.Error("user still connected after disconnect")
	}

	if err := svc.DisconnectGoogle(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}
