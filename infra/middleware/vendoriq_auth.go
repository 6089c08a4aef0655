package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"vendoriq_server/core/port/out"
	"vendoriq_server/pkg/logger"
)

// JWTAuth validates HS256 session tokens and rejects revoked ones. On
// success the user id lands in c.Locals("user_id").
func JWTAuth(secret string, blacklist out.TokenBlacklist) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == "OPTIONS" {
			return c.Next()
		}

		var tokenString string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization"})
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})

		if err != nil {
			logger.WithError(err).Warn("JWT validation failed")
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		if !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid claims"})
		}

		if exp, ok := claims["exp"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				return c.Status(401).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
		}

		// Allow 1 minute clock skew on the issue time.
		if iat, ok := claims["iat"].(float64); ok {
			issuedAt := time.Unix(int64(iat), 0)
			if issuedAt.After(time.Now().Add(time.Minute)) {
				return c.Status(401).JSON(fiber.Map{
					"error": "token issued in the future",
					"code":  "INVALID_TOKEN_TIME",
				})
			}
		}

		// Check the revocation list (logout).
		if jti, ok := claims["jti"].(string); ok && jti != "" && blacklist != nil {
			revoked, err := blacklist.IsRevoked(c.Context(), jti)
			if err != nil {
				logger.WithError(err).Warn("Token revocation check failed")
			} else if revoked {
				return c.Status(401).JSON(fiber.Map{
					"error": "token has been revoked",
					"code":  "TOKEN_REVOKED",
				})
			}
		}

		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing user id in token"})
		}

		c.Locals("user_id", userID)
		c.Locals("claims", claims)

		return c.Next()
	}
}
