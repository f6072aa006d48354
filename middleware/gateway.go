// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

const viaGatewayKey = "via_gateway"

// GatewayAuthMiddleware checks X-Service-Token on requests forwarded by the Gateway.
// Requests without the header pass through unmarked and must authenticate with a JWT.
func GatewayAuthMiddleware(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" || expectedToken == "" {
			c.Locals(viaGatewayKey, false)
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [GATEWAY_AUTH] Invalid service token for %s (got prefix: %.6s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		c.Locals(viaGatewayKey, true)
		return c.Next()
	}
}

func viaGateway(c *fiber.Ctx) bool {
	v, _ := c.Locals(viaGatewayKey).(bool)
	return v
}
