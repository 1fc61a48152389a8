package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// TicketMessageRepository manages ticket thread messages. Messages are insert-only.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	GetByID(ctx context.Context, id string) (*domain.TicketMessage, error)
	// ListByTicket returns messages ordered by creation time, ties in insertion order.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, body, sender_type, sender_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING seq`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.Text,
		msg.SenderType,
		msg.SenderID,
		msg.CreatedAt,
	).Scan(&msg.Seq)
}

func (r *ticketMessageRepository) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, body, sender_type, sender_id, created_at, seq
        FROM ticket_messages WHERE id=$1`
	msg, err := scanMessage(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, body, sender_type, sender_id, created_at, seq
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.TicketMessage, error) {
	var msg domain.TicketMessage
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.Text,
		&msg.SenderType,
		&msg.SenderID,
		&msg.CreatedAt,
		&msg.Seq,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
