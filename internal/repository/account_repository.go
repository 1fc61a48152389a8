package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// AccountRepository reads login accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
        SELECT id, email, password_hash, role, active, created_at
        FROM accounts WHERE id=$1`
	return scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `
        SELECT id, email, password_hash, role, active, created_at
        FROM accounts WHERE LOWER(email)=LOWER($1)`
	return scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, email))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		role    string
	)
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.Active,
		&account.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	account.Role = domain.ParseRole(role)
	return &account, nil
}
