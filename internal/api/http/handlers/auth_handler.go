package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pwd-registry/support-desk/internal/api/dto"
	"github.com/pwd-registry/support-desk/internal/service"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	account, token, exp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": fiber.Map{
				"id":    account.ID,
				"email": account.Email,
			},
			"auth": dto.AuthResponse{Token: token, TokenType: "Bearer", ExpiresAt: exp, Role: string(account.Role)},
		},
	})
}
