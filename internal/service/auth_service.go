package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pwd-registry/support-desk/internal/auth"
	"github.com/pwd-registry/support-desk/internal/config"
	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

// AuthService issues bearer tokens for registry accounts. Accounts themselves are managed by the
// identity provider.
type AuthService struct {
	accounts   repository.AccountRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, accounts repository.AccountRepository) *AuthService {
	return &AuthService{
		accounts:   accounts,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// Login authenticates an account and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Account, string, time.Time, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("The given data was invalid.", map[string][]string{
			"credentials": {"Email and password are required."},
		})
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if !account.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account inactive")
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(account.ID, account.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return account, token, exp, nil
}

// HashPassword hashes a password with the configured cost, for seeding accounts.
func (s *AuthService) HashPassword(password string) (string, error) {
	return auth.HashPassword(password, s.bcryptCost)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
