package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// PWDMemberRepository reads registry member records. Records are owned by the registry.
type PWDMemberRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*domain.PWDMember, error)
}

type pwdMemberRepository struct {
	pool *pgxpool.Pool
}

// NewPWDMemberRepository returns a Postgres-backed implementation.
func NewPWDMemberRepository(pool *pgxpool.Pool) PWDMemberRepository {
	return &pwdMemberRepository{pool: pool}
}

func (r *pwdMemberRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.PWDMember, error) {
	const query = `
        SELECT id, account_id, pwd_number, full_name, created_at
        FROM pwd_members WHERE account_id=$1`

	var member domain.PWDMember
	if err := conn(ctx, r.pool).QueryRow(ctx, query, accountID).Scan(
		&member.ID,
		&member.AccountID,
		&member.PWDNumber,
		&member.FullName,
		&member.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}
