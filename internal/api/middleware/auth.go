package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// LocalClientID is the key to retrieve the authenticated client from context
const LocalClientID = "client_id"

// APIKeyHeader is checked before the Authorization header
const APIKeyHeader = "X-API-Key"

// Auth accepts requests carrying key in X-API-Key or as a Bearer token.
// An empty key disables authentication.
func Auth(key string) fiber.Handler {
	if key == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	expected := hashAPIKey(key)

	return func(c *fiber.Ctx) error {
		apiKey := c.Get(APIKeyHeader)
		if apiKey == "" {
			apiKey = extractBearerToken(c)
		}
		if apiKey == "" {
			return domain.ErrUnauthorized
		}

		// Compare hashes so the comparison time does not depend on the key length
		hash := hashAPIKey(apiKey)
		if subtle.ConstantTimeCompare([]byte(hash), []byte(expected)) != 1 {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalClientID, hash[:12])

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func hashAPIKey(apiKey string) string {
	return domain.HashAPIKey(apiKey)
}

// GetClientID returns the authenticated client, or "" when auth is disabled
func GetClientID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalClientID).(string)
	return id
}
