package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware validates the shared key the WhatsApp gateway sends
// on delivery-status callbacks.
func GatewayAuthMiddleware(sharedKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sharedKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "gateway callbacks not configured")
		}

		provided := c.Get("X-Gateway-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(sharedKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid gateway key")
		}

		return c.Next()
	}
}
