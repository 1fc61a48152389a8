package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwd-registry/support-desk/internal/domain"
)

const ticketNumberConstraint = "tickets_ticket_number_key"

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	RequesterID *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByIDForUpdate locks the ticket row for the rest of the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	// NextSequence draws the next ticket number counter. Deleting tickets never lowers it.
	NextSequence(ctx context.Context) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, subject, description, requester_id, status, priority,
               category, created_at, updated_at, resolved_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_number, subject, description, requester_id, status, priority,
                             category, created_at, updated_at, resolved_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Subject,
		ticket.Description,
		ticket.RequesterID,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	)
	if isUniqueViolation(err, ticketNumberConstraint) {
		return ErrDuplicateTicketNumber
	}
	return err
}

// Update writes the mutable columns. ticket_number and requester_id never change.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, category=$3, updated_at=$4, resolved_at=$5, closed_at=$6
        WHERE id=$7`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// DefaultPageSize applies when a listing asks for no limit.
const DefaultPageSize = 20

// MaxPageSize caps listing size.
const MaxPageSize = 100

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Subject,
		&ticket.Description,
		&ticket.RequesterID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next ticket sequence: %w", err)
	}
	return seq, nil
}
