//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/numbering"
	"github.com/pwd-registry/support-desk/internal/persistence"
	"github.com/pwd-registry/support-desk/internal/repository"
)

type PostgresRepositorySuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool

	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	members     repository.PWDMemberRepository
	accounts    repository.AccountRepository
	tx          repository.Transactor

	memberID  string
	accountID string
}

func TestPostgresRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRepositorySuite))
}

func (s *PostgresRepositorySuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("support_desk"),
		tcpostgres.WithUsername("support"),
		tcpostgres.WithPassword("support"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.pool, err = pgxpool.New(ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(persistence.RunMigrations(ctx, s.pool, "../../migrations", zap.NewNop()))

	s.tickets = repository.NewTicketRepository(s.pool)
	s.messages = repository.NewTicketMessageRepository(s.pool)
	s.attachments = repository.NewAttachmentRepository(s.pool)
	s.history = repository.NewTicketHistoryRepository(s.pool)
	s.members = repository.NewPWDMemberRepository(s.pool)
	s.accounts = repository.NewAccountRepository(s.pool)
	s.tx = repository.NewPgTransactor(s.pool)
}

func (s *PostgresRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresRepositorySuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `TRUNCATE tickets, pwd_members, accounts CASCADE`)
	s.Require().NoError(err)

	s.accountID = uuid.NewString()
	s.memberID = uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (id, email, password_hash, role) VALUES ($1, 'alice@registry.example', 'x', 'pwd_member')`,
		s.accountID)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pwd_members (id, account_id, pwd_number, full_name) VALUES ($1, $2, 'PWD-0001', 'Alice')`,
		s.memberID, s.accountID)
	s.Require().NoError(err)
}

func (s *PostgresRepositorySuite) newTicket(number string, status domain.TicketStatus) *domain.Ticket {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: number,
		Subject:      "Lost card",
		Description:  "Lost at the mall",
		RequesterID:  s.memberID,
		Status:       status,
		Priority:     domain.TicketPriorityMedium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *PostgresRepositorySuite) TestLookupsResolveSeededIdentity() {
	ctx := context.Background()
	member, err := s.members.GetByAccountID(ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(s.memberID, member.ID)

	account, err := s.accounts.GetByEmail(ctx, "alice@registry.example")
	s.Require().NoError(err)
	s.Equal(domain.RolePWDMember, account.Role)

	_, err = s.members.GetByAccountID(ctx, uuid.NewString())
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *PostgresRepositorySuite) TestCreateRejectsDuplicateTicketNumber() {
	ctx := context.Background()
	s.Require().NoError(s.tickets.Create(ctx, s.newTicket("TKT-20261015-000001", domain.TicketStatusOpen)))

	err := s.tickets.Create(ctx, s.newTicket("TKT-20261015-000001", domain.TicketStatusOpen))
	s.ErrorIs(err, repository.ErrDuplicateTicketNumber)
}

func (s *PostgresRepositorySuite) TestListFiltersAndScopes() {
	ctx := context.Background()
	s.Require().NoError(s.tickets.Create(ctx, s.newTicket("TKT-20261015-000001", domain.TicketStatusOpen)))
	s.Require().NoError(s.tickets.Create(ctx, s.newTicket("TKT-20261015-000002", domain.TicketStatusResolved)))

	all, err := s.tickets.List(ctx, repository.TicketFilter{Limit: 10})
	s.Require().NoError(err)
	s.Len(all, 2)

	resolved, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusResolved},
		Limit:    10,
	})
	s.Require().NoError(err)
	s.Require().Len(resolved, 1)
	s.Equal("TKT-20261015-000002", resolved[0].TicketNumber)

	stranger := uuid.NewString()
	none, err := s.tickets.List(ctx, repository.TicketFilter{RequesterID: &stranger, Limit: 10})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresRepositorySuite) TestNextSequenceNeverReissuesDeletedNumbers() {
	ctx := context.Background()
	first, err := s.tickets.NextSequence(ctx)
	s.Require().NoError(err)

	ticket := s.newTicket(numbering.Format("TKT", time.Now(), first), domain.TicketStatusClosed)
	s.Require().NoError(s.tickets.Create(ctx, ticket))
	s.Require().NoError(s.tickets.Delete(ctx, ticket.ID))

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.tickets.NextSequence(txCtx); err != nil {
			return err
		}
		return repository.ErrNotFound
	})
	s.Require().ErrorIs(err, repository.ErrNotFound)

	next, err := s.tickets.NextSequence(ctx)
	s.Require().NoError(err)
	s.Greater(next, first+1)
}

func (s *PostgresRepositorySuite) TestRollbackDiscardsWrites() {
	ctx := context.Background()
	ticket := s.newTicket("TKT-20261015-000001", domain.TicketStatusOpen)

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.tickets.Create(txCtx, ticket); err != nil {
			return err
		}
		return repository.ErrNotFound
	})
	s.ErrorIs(err, repository.ErrNotFound)

	_, err = s.tickets.GetByID(ctx, ticket.ID)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *PostgresRepositorySuite) TestRowLockSerializesUpdates() {
	ctx := context.Background()
	ticket := s.newTicket("TKT-20261015-000001", domain.TicketStatusOpen)
	s.Require().NoError(s.tickets.Create(ctx, ticket))

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
				locked, err := s.tickets.GetByIDForUpdate(txCtx, ticket.ID)
				if err != nil {
					return err
				}
				locked.Category = locked.Category + "x"
				locked.UpdatedAt = time.Now().UTC()
				return s.tickets.Update(txCtx, locked)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	stored, err := s.tickets.GetByID(ctx, ticket.ID)
	s.Require().NoError(err)
	s.Equal("xxxxx", stored.Category)
}

func (s *PostgresRepositorySuite) TestDeleteCascadesToThread() {
	ctx := context.Background()
	ticket := s.newTicket("TKT-20261015-000001", domain.TicketStatusClosed)
	s.Require().NoError(s.tickets.Create(ctx, ticket))

	now := time.Now().UTC()
	msg := &domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		Text:       "Receipt attached",
		SenderType: domain.SenderTypePWDMember,
		SenderID:   s.memberID,
		CreatedAt:  now,
	}
	s.Require().NoError(s.messages.Create(ctx, msg))
	s.Require().NoError(s.attachments.Create(ctx, &domain.Attachment{
		MessageID:    msg.ID,
		Path:         "attachments/20261015_receipt.pdf",
		OriginalName: "receipt.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    12,
		CreatedAt:    now,
	}))
	s.Require().NoError(s.history.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticket.ID,
		ChangedByType: domain.SenderTypeAdmin,
		ChangedByID:   uuid.NewString(),
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      "resolved",
		NewValue:      "closed",
		CreatedAt:     now,
	}))

	listed, err := s.attachments.ListByTicket(ctx, ticket.ID)
	s.Require().NoError(err)
	s.Len(listed, 1)

	s.Require().NoError(s.tickets.Delete(ctx, ticket.ID))

	_, err = s.messages.GetByID(ctx, msg.ID)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.attachments.GetByMessage(ctx, msg.ID)
	s.ErrorIs(err, repository.ErrNotFound)
	entries, err := s.history.ListByTicket(ctx, ticket.ID)
	s.Require().NoError(err)
	s.Empty(entries)

	s.ErrorIs(s.tickets.Delete(ctx, ticket.ID), repository.ErrNotFound)
}
