package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pwd-registry/support-desk/internal/domain"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

const callerKey = "auth_caller"

// AuthMiddleware validates bearer tokens and stores the resulting caller.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(callerKey, claims.Caller())
	return c.Next()
}

// CallerFromContext retrieves the authenticated caller.
func CallerFromContext(c *fiber.Ctx) (domain.Caller, bool) {
	caller, ok := c.Locals(callerKey).(domain.Caller)
	return caller, ok
}
