// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tournament-registration/auth"
)

const (
	userIDKey    = "user_id"
	userRolesKey = "user_roles"
)

// UserContextMiddleware resolves the caller. Gateway-forwarded requests carry X-User-ID and
// X-User-Roles; direct requests must send "Authorization: Bearer <jwt>". Routes under /s/
// reject anonymous callers.
func UserContextMiddleware(verifier *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var userID string
		var roles []string

		switch {
		case viaGateway(c):
			userID = strings.TrimSpace(c.Get("X-User-ID"))
			roles = splitRoles(c.Get("X-User-Roles"))
		case verifier != nil && strings.HasPrefix(c.Get("Authorization"), "Bearer "):
			claims, err := verifier.Parse(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
			if err != nil {
				log.Printf("❌ [USER_CTX] rejected bearer token on %s: %v", c.Path(), err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
			}
			userID = claims.Subject
			roles = splitRoles(claims.Role)
		}

		if strings.HasPrefix(c.Path(), "/s/") && userID == "" {
			log.Printf("❌ [USER_CTX] user identity required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}

		c.Locals(userIDKey, userID)
		c.Locals(userRolesKey, roles)
		return c.Next()
	}
}

// RequireRole lets the request through when the caller holds any of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		for _, r := range CurrentRoles(c) {
			if _, ok := allowed[r]; ok {
				return c.Next()
			}
		}
		log.Printf("🚫 [USER_CTX] user %q lacks role %v for %s", CurrentUserID(c), roles, c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
}

func CurrentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func CurrentRoles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(userRolesKey).([]string)
	return roles
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
