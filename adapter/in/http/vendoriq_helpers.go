// Package http implements the inbound REST handlers.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"vendoriq_server/pkg/apperr"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUserID safely extracts user_id from fiber context.
// Returns error if not authenticated.
func GetUserID(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// MustGetUserID extracts user_id or returns the standard 401 app error.
func MustGetUserID(c *fiber.Ctx) (string, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return "", apperr.Unauthorized("")
	}
	return userID, nil
}

// BearerToken returns the raw token from the Authorization header, or "".
func BearerToken(c *fiber.Ctx) string {
	const prefix = "Bearer "
	header := c.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
