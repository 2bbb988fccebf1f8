package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teachlyze/tamanduai-api/internal/utils"
)

// Roles carried in the token "role" claim.
const (
	AuthRoleAdmin   = "admin"
	AuthRoleTeacher = "teacher"
	AuthRoleStudent = "student"
)

// AuthOptions configures WithAuth. An empty Roles list admits any authenticated user.
type AuthOptions struct {
	Roles          []string
	AllowAnonymous bool
}

// WithAuth guards a single handler with the same user and role checks RequireRole applies to groups.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	allowed, names := roleSet(opts.Roles)

	return func(c *fiber.Ctx) error {
		if authenticatedUser(c) == "" {
			if opts.AllowAnonymous && len(allowed) == 0 {
				return handler(c)
			}
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if len(allowed) > 0 {
			if _, ok := allowed[normalizeRoleValue(c.Locals("user_role"))]; !ok {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_roles": names})
			}
		}

		return handler(c)
	}
}

func authenticatedUser(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return strings.TrimSpace(userID)
}
