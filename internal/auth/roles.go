package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pwd-registry/support-desk/internal/domain"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

// RequireRoles ensures the caller holds one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		caller, ok := CallerFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[caller.Role]; !exists {
			return apperrors.NewForbidden("Unauthorized")
		}
		return c.Next()
	}
}
