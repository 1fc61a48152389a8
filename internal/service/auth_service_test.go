package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pwd-registry/support-desk/internal/auth"
	"github.com/pwd-registry/support-desk/internal/config"
	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository/memory"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

func newAuthFixture(t *testing.T) *AuthService {
	t.Helper()
	store := memory.NewStore()
	hash, err := auth.HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	store.SeedAccount(domain.Account{ID: "acct-bob", Email: "bob@registry.example", PasswordHash: hash, Role: domain.RoleAdmin, Active: true})
	store.SeedAccount(domain.Account{ID: "acct-old", Email: "old@registry.example", PasswordHash: hash, Role: domain.RoleAdmin, Active: false})
	return NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}, store.Accounts())
}

func TestLoginIssuesRoleBearingToken(t *testing.T) {
	svc := newAuthFixture(t)

	account, token, _, err := svc.Login(context.Background(), "  BOB@registry.example ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "acct-bob", account.ID)

	claims, err := svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{Role: domain.RoleAdmin, AccountID: "acct-bob"}, claims.Caller())
}

func TestLoginFailures(t *testing.T) {
	svc := newAuthFixture(t)
	ctx := context.Background()

	_, _, _, err := svc.Login(ctx, "bob@registry.example", "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, _, err = svc.Login(ctx, "nobody@registry.example", "correct horse")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, _, err = svc.Login(ctx, "old@registry.example", "correct horse")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, _, err = svc.Login(ctx, "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
