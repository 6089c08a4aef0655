package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"vendoriq_server/core/port/in"
	"vendoriq_server/core/service/auth"
	"vendoriq_server/pkg/apperr"
	"vendoriq_server/pkg/response"
)

// =============================================================================
// Auth Handler
// =============================================================================

// AuthHandler serves account signup/login and the Google connect flow.
type AuthHandler struct {
	svc in.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc in.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register wires the handler routes. The callback route sits outside the
// authenticated group because Google calls it without a session token.
func (h *AuthHandler) Register(public, protected fiber.Router) {
	public.Post("/auth/register", h.SignUp)
	public.Post("/auth/login", h.Login)
	public.Get("/auth/google/callback", h.GoogleCallback)

	protected.Post("/auth/logout", h.Logout)
	protected.Get("/auth/google", h.GoogleAuthURL)
	protected.Delete("/auth/google", h.DisconnectGoogle)
}

// =============================================================================
// Request/Response Models
// =============================================================================

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type userView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Connected bool   `json:"google_connected"`
}

// =============================================================================
// Handlers
// =============================================================================

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	if req.Email == "" {
		return apperr.MissingField("email")
	}
	if req.Password == "" {
		return apperr.MissingField("password")
	}

	res, err := h.svc.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return apperr.AlreadyExists("account")
		}
		return apperr.InternalWithError(err)
	}

	return response.Created(c, toAuthResponse(res))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	res, err := h.svc.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperr.Unauthorized("invalid email or password")
		}
		return apperr.InternalWithError(err)
	}

	return response.OK(c, toAuthResponse(res))
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := BearerToken(c)
	if token == "" {
		return apperr.Unauthorized("")
	}
	if err := h.svc.Logout(c.Context(), token); err != nil {
		return apperr.InvalidToken("could not revoke token")
	}
	return response.OK(c, fiber.Map{"logged_out": true})
}

// GoogleAuthURL returns the consent URL for the logged-in user.
func (h *AuthHandler) GoogleAuthURL(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	url, err := h.svc.GoogleAuthURL(c.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrOAuthNotConfigured) {
			return apperr.Internal("google oauth not configured")
		}
		return apperr.InternalWithError(err)
	}
	return response.OK(c, fiber.Map{"auth_url": url})
}

// GoogleCallback is hit by Google's redirect; the state identifies the user.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		return apperr.BadRequest("missing state or code")
	}

	user, err := h.svc.HandleGoogleCallback(c.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidState):
			return apperr.BadRequest("oauth state invalid or expired")
		case errors.Is(err, auth.ErrUserNotFound):
			return apperr.NotFound("user")
		default:
			return apperr.OAuthFailed(err)
		}
	}

	return response.OK(c, fiber.Map{
		"connected": true,
		"user":      toUserView(user.ID, user.Name, user.Email, user.IsConnected()),
	})
}

func (h *AuthHandler) DisconnectGoogle(c *fiber.Ctx) error {
	userID, err := MustGetUserID(c)
	if err != nil {
		return err
	}

	if err := h.svc.DisconnectGoogle(c.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return apperr.NotFound("user")
		}
		return apperr.InternalWithError(err)
	}
	return response.OK(c, fiber.Map{"connected": false})
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toAuthResponse(res *in.AuthResult) authResponse {
	return authResponse{
		Token: res.Token,
		User:  toUserView(res.User.ID, res.User.Name, res.User.Email, res.User.IsConnected()),
	}
}

func toUserView(id, name, email string, connected bool) userView {
	return userView{ID: id, Name: name, Email: email, Connected: connected}
}
