package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// AttachmentRepository persists attachment metadata. A message carries at most one attachment.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	GetByMessage(ctx context.Context, messageID string) (*domain.Attachment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO ticket_message_attachments (message_id, storage_path, original_name, mime_type, size_bytes, checksum, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		attachment.MessageID,
		attachment.Path,
		attachment.OriginalName,
		attachment.MimeType,
		attachment.SizeBytes,
		attachment.Checksum,
		attachment.CreatedAt,
	)
	return err
}

func (r *attachmentRepository) GetByMessage(ctx context.Context, messageID string) (*domain.Attachment, error) {
	const query = `
        SELECT message_id, storage_path, original_name, mime_type, size_bytes, checksum, created_at
        FROM ticket_message_attachments WHERE message_id=$1`
	att, err := scanAttachment(conn(ctx, r.pool).QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, notFound(err)
	}
	return att, nil
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	const query = `
        SELECT a.message_id, a.storage_path, a.original_name, a.mime_type, a.size_bytes, a.checksum, a.created_at
        FROM ticket_message_attachments a
        JOIN ticket_messages m ON m.id = a.message_id
        WHERE m.ticket_id=$1
        ORDER BY m.created_at ASC, m.seq ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Attachment{}
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *att)
	}
	return result, rows.Err()
}

func scanAttachment(row pgx.Row) (*domain.Attachment, error) {
	var att domain.Attachment
	if err := row.Scan(
		&att.MessageID,
		&att.Path,
		&att.OriginalName,
		&att.MimeType,
		&att.SizeBytes,
		&att.Checksum,
		&att.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &att, nil
}
