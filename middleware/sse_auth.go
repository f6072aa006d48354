// middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-registration/auth"
)

// SSEAuthMiddleware authenticates EventSource requests, which cannot set headers, from
// the `token` query parameter. Callers already identified upstream pass straight through.
func SSEAuthMiddleware(verifier *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentUserID(c) != "" {
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" || verifier == nil {
			log.Printf("[SSEAuth] ❌ Missing token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		claims, err := verifier.Parse(accessToken)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Validation failed for token (prefix: %.10s...): %v", accessToken, err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(userIDKey, claims.Subject)
		c.Locals(userRolesKey, splitRoles(claims.Role))
		log.Printf("[SSEAuth] ✅ Authenticated user %s", claims.Subject)
		return c.Next()
	}
}
