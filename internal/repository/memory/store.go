// Package memory provides in-process implementations of the repository interfaces.
//
// All repositories of one Store share its data. WithinTransaction serializes units of work and
// restores a snapshot when fn fails, which gives the same per-ticket guarantees as the
// Postgres row locks.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
)

type txKey struct{}

type data struct {
	accounts    map[string]domain.Account
	members     map[string]domain.PWDMember
	tickets     map[string]domain.Ticket
	messages    map[string]domain.TicketMessage
	attachments map[string]domain.Attachment
	history     []domain.TicketHistory
	seq         int64
}

func (d *data) clone() *data {
	c := &data{
		accounts:    make(map[string]domain.Account, len(d.accounts)),
		members:     make(map[string]domain.PWDMember, len(d.members)),
		tickets:     make(map[string]domain.Ticket, len(d.tickets)),
		messages:    make(map[string]domain.TicketMessage, len(d.messages)),
		attachments: make(map[string]domain.Attachment, len(d.attachments)),
		history:     append([]domain.TicketHistory(nil), d.history...),
		seq:         d.seq,
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.tickets {
		c.tickets[k] = v
	}
	for k, v := range d.messages {
		c.messages[k] = v
	}
	for k, v := range d.attachments {
		c.attachments[k] = v
	}
	return c
}

// Store holds the shared in-memory state.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	d    *data
	// ticketSeq lives outside the snapshot so rollbacks and deletes never lower it.
	ticketSeq atomic.Int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{d: &data{
		accounts:    map[string]domain.Account{},
		members:     map[string]domain.PWDMember{},
		tickets:     map[string]domain.Ticket{},
		messages:    map[string]domain.TicketMessage{},
		attachments: map[string]domain.Attachment{},
	}}
}

// WithinTransaction runs fn exclusively and rolls back all writes when it returns an error.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) restore(snapshot *data) {
	s.mu.Lock()
	s.d = snapshot
	s.mu.Unlock()
}

// SeedAccount registers a login account.
func (s *Store) SeedAccount(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.accounts[account.ID] = account
}

// SeedPWDMember registers a registry member record.
func (s *Store) SeedPWDMember(member domain.PWDMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.members[member.ID] = member
}

func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }
func (s *Store) Messages() repository.TicketMessageRepository { return messageRepo{s} }
func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository { return historyRepo{s} }
func (s *Store) PWDMembers() repository.PWDMemberRepository { return memberRepo{s} }
func (s *Store) Accounts() repository.AccountRepository { return accountRepo{s} }

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.d.tickets {
		if existing.TicketNumber == ticket.TicketNumber {
			return repository.ErrDuplicateTicketNumber
		}
	}
	r.s.d.tickets[ticket.ID] = *ticket
	return nil
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.d.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Status = ticket.Status
	existing.Priority = ticket.Priority
	existing.Category = ticket.Category
	existing.UpdatedAt = ticket.UpdatedAt
	existing.ResolvedAt = ticket.ResolvedAt
	existing.ClosedAt = ticket.ClosedAt
	r.s.d.tickets[ticket.ID] = existing
	return nil
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.d.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ticket, nil
}

// GetByIDForUpdate relies on WithinTransaction for exclusivity.
func (r ticketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r ticketRepo) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := []domain.Ticket{}
	for _, ticket := range r.s.d.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

// Delete removes the ticket and cascades to its messages, attachments and history.
func (r ticketRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.d.tickets, id)
	for msgID, msg := range r.s.d.messages {
		if msg.TicketID == id {
			delete(r.s.d.messages, msgID)
			delete(r.s.d.attachments, msgID)
		}
	}
	kept := r.s.d.history[:0]
	for _, entry := range r.s.d.history {
		if entry.TicketID != id {
			kept = append(kept, entry)
		}
	}
	r.s.d.history = kept
	return nil
}

func (r ticketRepo) NextSequence(ctx context.Context) (int64, error) {
	return r.s.ticketSeq.Add(1), nil
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.tickets[msg.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.s.d.seq++
	msg.Seq = r.s.d.seq
	stored := *msg
	stored.Attachment = nil
	r.s.d.messages[msg.ID] = stored
	return nil
}

func (r messageRepo) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msg, ok := r.s.d.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &msg, nil
}

func (r messageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.TicketMessage{}
	for _, msg := range r.s.d.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	sortMessages(result)
	return result, nil
}

func sortMessages(msgs []domain.TicketMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(ctx context.Context, attachment *domain.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.messages[attachment.MessageID]; !ok {
		return repository.ErrNotFound
	}
	r.s.d.attachments[attachment.MessageID] = *attachment
	return nil
}

func (r attachmentRepo) GetByMessage(ctx context.Context, messageID string) (*domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	att, ok := r.s.d.attachments[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &att, nil
}

func (r attachmentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := []domain.TicketMessage{}
	for _, msg := range r.s.d.messages {
		if msg.TicketID == ticketID {
			msgs = append(msgs, msg)
		}
	}
	sortMessages(msgs)
	result := []domain.Attachment{}
	for _, msg := range msgs {
		if att, ok := r.s.d.attachments[msg.ID]; ok {
			result = append(result, att)
		}
	}
	return result, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.d.history = append(r.s.d.history, *history)
	return nil
}

func (r historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.TicketHistory{}
	for _, entry := range r.s.d.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type memberRepo struct{ s *Store }

func (r memberRepo) GetByAccountID(ctx context.Context, accountID string) (*domain.PWDMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, member := range r.s.d.members {
		if member.AccountID == accountID {
			return &member, nil
		}
	}
	return nil, repository.ErrNotFound
}

type accountRepo struct{ s *Store }

func (r accountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	account, ok := r.s.d.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, account := range r.s.d.accounts {
		if strings.EqualFold(account.Email, email) {
			return &account, nil
		}
	}
	return nil, repository.ErrNotFound
}
