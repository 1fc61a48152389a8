package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/events"
	"github.com/pwd-registry/support-desk/internal/numbering"
	"github.com/pwd-registry/support-desk/internal/repository"
	"github.com/pwd-registry/support-desk/internal/storage"
	apperrors "github.com/pwd-registry/support-desk/pkg/util/errorutil"
)

const (
	maxSubjectLength  = 255
	maxCategoryLength = 255

	defaultCreateAttempts = 3
)

// TicketService coordinates ticket workflows and is the authorization gate for every ticket operation.
type TicketService struct {
	tx          repository.Transactor
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	members     repository.PWDMemberRepository
	files       *storage.AttachmentStore
	numbers     numbering.Generator
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
	attempts    int
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Transactor     repository.Transactor
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.TicketMessageRepository
	AttachmentRepo repository.AttachmentRepository
	HistoryRepo    repository.TicketHistoryRepository
	PWDMemberRepo  repository.PWDMemberRepository
	Files          *storage.AttachmentStore
	Numbers        numbering.Generator
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	// Now is the clock used for every persisted timestamp.
	Now func() time.Time
	// CreateAttempts bounds retries when a generated ticket number is already taken.
	CreateAttempts int
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
	Category    string
	Attachment  *storage.Upload
}

// TicketPatch carries the optional fields of a ticket update.
type TicketPatch struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
	Category *string
}

// TicketListFilter narrows a ticket listing inside the caller's visible scope.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// TicketDetail is a ticket with its thread and audit trail.
type TicketDetail struct {
	Ticket   domain.Ticket
	Messages []domain.TicketMessage
	History  []domain.TicketHistory
}

// AttachmentContent is an attachment's recorded metadata and its bytes.
type AttachmentContent struct {
	Attachment domain.Attachment
	Data       []byte
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	attempts := deps.CreateAttempts
	if attempts <= 0 {
		attempts = defaultCreateAttempts
	}
	return &TicketService{
		tx:          deps.Transactor,
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		attachments: deps.AttachmentRepo,
		history:     deps.HistoryRepo,
		members:     deps.PWDMemberRepo,
		files:       deps.Files,
		numbers:     deps.Numbers,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         now,
		attempts:    attempts,
	}
}

// ListTickets returns every ticket to admins and only their own tickets to PWD members.
func (s *TicketService) ListTickets(ctx context.Context, caller domain.Caller, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch caller.Role {
	case domain.RoleAdmin:
	case domain.RolePWDMember:
		member, err := s.members.GetByAccountID(ctx, caller.AccountID)
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.Ticket{}, nil
		}
		if err != nil {
			return nil, err
		}
		repoFilter.RequesterID = &member.ID
	default:
		return nil, apperrors.NewForbidden("Unauthorized")
	}
	return s.tickets.List(ctx, repoFilter)
}

// CreateTicket opens a ticket for the calling PWD member together with its first message.
func (s *TicketService) CreateTicket(ctx context.Context, caller domain.Caller, input CreateTicketInput) (*domain.Ticket, *domain.TicketMessage, error) {
	if caller.Role != domain.RolePWDMember {
		return nil, nil, apperrors.NewForbidden("Unauthorized")
	}
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	if input.Priority == "" {
		input.Priority = domain.DefaultTicketPriority
	}
	if err := validateCreate(input); err != nil {
		return nil, nil, err
	}

	member, err := s.members.GetByAccountID(ctx, caller.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.NewNotFound("PWD Member")
		}
		return nil, nil, err
	}

	att, err := s.storeUpload(ctx, input.Attachment)
	if err != nil {
		return nil, nil, err
	}

	author := sender{kind: domain.SenderTypePWDMember, id: member.ID}
	var (
		ticket *domain.Ticket
		msg    *domain.TicketMessage
	)
	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			s.discardBlob(ctx, att)
			return nil, nil, fmt.Errorf("generate ticket number: %w", err)
		}
		now := s.now()
		ticket = &domain.Ticket{
			ID:           uuid.NewString(),
			TicketNumber: number,
			Subject:      input.Subject,
			Description:  input.Description,
			RequesterID:  member.ID,
			Status:       domain.TicketStatusOpen,
			Priority:     input.Priority,
			Category:     input.Category,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := s.tickets.Create(ctx, ticket); err != nil {
				return err
			}
			// The first message is the description itself and leaves the ticket Open.
			created, _, err := s.appendLocked(ctx, ticket, author, input.Description, att, false)
			msg = created
			return err
		})
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateTicketNumber) && attempt < s.attempts {
			s.logger.Warn("ticket number collision, retrying", zap.String("ticket_number", number), zap.Int("attempt", attempt))
			continue
		}
		s.discardBlob(ctx, att)
		if errors.Is(err, repository.ErrDuplicateTicketNumber) {
			return nil, nil, apperrors.NewConflict("could not allocate a unique ticket number", nil)
		}
		return nil, nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    author.actor(),
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			Priority:     ticket.Priority,
			Subject:      ticket.Subject,
		},
	})
	s.publishMessageAdded(ctx, ticket.ID, author, msg)
	return ticket, msg, nil
}

// GetTicket returns a ticket with its messages and history to an admin or the owning PWD member.
func (s *TicketService) GetTicket(ctx context.Context, caller domain.Caller, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, caller, ticket); err != nil {
		return nil, err
	}
	msgs, err := s.messagesWithAttachments(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: *ticket, Messages: msgs, History: history}, nil
}

// UpdateTicket applies a status and field patch under the role rules of the ticket lifecycle.
func (s *TicketService) UpdateTicket(ctx context.Context, caller domain.Caller, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if caller.Role != domain.RoleAdmin && caller.Role != domain.RolePWDMember {
		return nil, apperrors.NewForbidden("Unauthorized")
	}
	if err := validatePatch(caller.Role, patch); err != nil {
		return nil, err
	}

	var (
		ticket  *domain.Ticket
		actor   sender
		pending []events.Event
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		actor, err = s.authorize(ctx, caller, ticket)
		if err != nil {
			return err
		}
		if patch.Status != nil && !domain.CanRequestStatus(caller.Role, *patch.Status) {
			return apperrors.NewForbidden("Unauthorized")
		}
		if (patch.Priority != nil || patch.Category != nil) && !domain.CanEditFields(caller.Role) {
			return apperrors.NewForbidden("Unauthorized")
		}

		now := s.now()
		changed := false
		if patch.Status != nil {
			oldStatus := ticket.Status
			if ticket.ApplyStatus(*patch.Status, now) {
				changed = true
				if err := s.recordChange(ctx, ticket.ID, actor, domain.ChangeTypeStatus, string(oldStatus), string(ticket.Status), now); err != nil {
					return err
				}
				pending = append(pending, events.Event{
					Type:     events.EventTicketStatusChanged,
					TicketID: ticket.ID,
					Actor:    actor.actor(),
					Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status},
				})
			}
		}
		if patch.Priority != nil && *patch.Priority != ticket.Priority {
			oldPriority := ticket.Priority
			ticket.Priority = *patch.Priority
			changed = true
			if err := s.recordChange(ctx, ticket.ID, actor, domain.ChangeTypePriority, string(oldPriority), string(ticket.Priority), now); err != nil {
				return err
			}
			pending = append(pending, events.Event{
				Type:     events.EventTicketPriorityChanged,
				TicketID: ticket.ID,
				Actor:    actor.actor(),
				Payload:  events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: ticket.Priority},
			})
		}
		if patch.Category != nil {
			category := strings.TrimSpace(*patch.Category)
			if category != ticket.Category {
				oldCategory := ticket.Category
				ticket.Category = category
				changed = true
				if err := s.recordChange(ctx, ticket.ID, actor, domain.ChangeTypeCategory, oldCategory, category, now); err != nil {
					return err
				}
			}
		}
		if !changed {
			return nil
		}
		ticket.UpdatedAt = now
		return s.tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	for _, event := range pending {
		s.publishEvent(ctx, event)
	}
	return ticket, nil
}

// DeleteTicket removes a resolved or closed ticket. Only admins may delete.
func (s *TicketService) DeleteTicket(ctx context.Context, caller domain.Caller, ticketID string) error {
	if caller.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("Unauthorized")
	}
	var (
		ticket *domain.Ticket
		blobs  []domain.Attachment
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Deletable() {
			return apperrors.NewInvalidState("Only resolved or closed tickets can be deleted.",
				map[string]any{"status": ticket.Status})
		}
		blobs, err = s.attachments.ListByTicket(ctx, ticket.ID)
		if err != nil {
			return err
		}
		return s.tickets.Delete(ctx, ticket.ID)
	})
	if err != nil {
		return err
	}

	for i := range blobs {
		s.discardBlob(ctx, &blobs[i])
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    sender{kind: domain.SenderTypeAdmin, id: caller.AccountID}.actor(),
		Payload: events.TicketDeletedPayload{
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
			Attachments:  len(blobs),
		},
	})
	return nil
}

// AppendMessage adds a message, optionally with one attachment, to a ticket's thread.
// A message appended to an Open ticket moves it to InProgress.
func (s *TicketService) AppendMessage(ctx context.Context, caller domain.Caller, ticketID, text string, upload *storage.Upload) (*domain.TicketMessage, error) {
	if caller.Role != domain.RoleAdmin && caller.Role != domain.RolePWDMember {
		return nil, apperrors.NewForbidden("Unauthorized")
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	from, err := s.authorize(ctx, caller, ticket)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewFieldValidation("message", "The message field is required.")
	}

	att, err := s.storeUpload(ctx, upload)
	if err != nil {
		return nil, err
	}

	var (
		msg      *domain.TicketMessage
		oldState domain.TicketStatus
		advanced bool
	)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		oldState = locked.Status
		msg, advanced, err = s.appendLocked(ctx, locked, from, text, att, true)
		if err != nil {
			return err
		}
		ticket = locked
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, att)
		return nil, err
	}

	s.publishMessageAdded(ctx, ticket.ID, from, msg)
	if advanced {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    from.actor(),
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldState, NewStatus: ticket.Status, Implicit: true},
		})
	}
	return msg, nil
}

// OpenAttachment returns the attachment of a message to an admin or the owning PWD member.
func (s *TicketService) OpenAttachment(ctx context.Context, caller domain.Caller, messageID string) (*AttachmentContent, error) {
	if caller.Role != domain.RoleAdmin && caller.Role != domain.RolePWDMember {
		return nil, apperrors.NewForbidden("Unauthorized")
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Message")
		}
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, msg.TicketID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, caller, ticket); err != nil {
		return nil, err
	}
	att, err := s.attachments.GetByMessage(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Attachment")
		}
		return nil, err
	}
	data, err := s.files.Open(ctx, att)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeStorageMissing) || apperrors.HasCode(err, apperrors.CodeStorageFailure) {
			s.logger.Warn("attachment unreadable",
				zap.String("message_id", msg.ID),
				zap.String("path", att.Path),
				zap.Error(err))
		}
		return nil, err
	}
	return &AttachmentContent{Attachment: *att, Data: data}, nil
}

// appendLocked persists a message on a ticket the caller already holds inside a transaction.
func (s *TicketService) appendLocked(ctx context.Context, ticket *domain.Ticket, from sender, text string, att *domain.Attachment, advance bool) (*domain.TicketMessage, bool, error) {
	now := s.now()
	msg := &domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		Text:       text,
		SenderType: from.kind,
		SenderID:   from.id,
		CreatedAt:  now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, false, err
	}
	if att != nil {
		record := *att
		record.MessageID = msg.ID
		if err := s.attachments.Create(ctx, &record); err != nil {
			return nil, false, err
		}
		msg.Attachment = &record
	}
	if !advance {
		return msg, false, nil
	}
	oldStatus := ticket.Status
	if !ticket.AdvanceOnMessage(now) {
		return msg, false, nil
	}
	if err := s.recordChange(ctx, ticket.ID, from, domain.ChangeTypeStatus, string(oldStatus), string(ticket.Status), now); err != nil {
		return nil, false, err
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// sender is the resolved acting identity for a ticket operation.
type sender struct {
	kind domain.SenderType
	id   string
}

func (s sender) actor() events.Actor {
	return events.Actor{Type: s.kind, ID: s.id}
}

// authorize resolves the caller into a sender allowed to act on ticket.
func (s *TicketService) authorize(ctx context.Context, caller domain.Caller, ticket *domain.Ticket) (sender, error) {
	switch caller.Role {
	case domain.RoleAdmin:
		return sender{kind: domain.SenderTypeAdmin, id: caller.AccountID}, nil
	case domain.RolePWDMember:
		member, err := s.members.GetByAccountID(ctx, caller.AccountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return sender{}, apperrors.NewForbidden("Unauthorized")
			}
			return sender{}, err
		}
		if !ticket.OwnedBy(member.ID) {
			return sender{}, apperrors.NewForbidden("Unauthorized")
		}
		return sender{kind: domain.SenderTypePWDMember, id: member.ID}, nil
	default:
		return sender{}, apperrors.NewForbidden("Unauthorized")
	}
}

func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) lockTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Ticket")
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) messagesWithAttachments(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	atts, err := s.attachments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	byMessage := make(map[string]domain.Attachment, len(atts))
	for _, att := range atts {
		byMessage[att.MessageID] = att
	}
	for i := range msgs {
		if att, ok := byMessage[msgs[i].ID]; ok {
			att := att
			msgs[i].Attachment = &att
		}
	}
	return msgs, nil
}

func (s *TicketService) storeUpload(ctx context.Context, upload *storage.Upload) (*domain.Attachment, error) {
	if upload == nil {
		return nil, nil
	}
	return s.files.Store(ctx, *upload)
}

// discardBlob removes a blob whose metadata was never committed or has been deleted.
func (s *TicketService) discardBlob(ctx context.Context, att *domain.Attachment) {
	if att == nil {
		return
	}
	if err := s.files.Remove(context.WithoutCancel(ctx), att); err != nil {
		s.logger.Error("failed to remove attachment blob", zap.String("path", att.Path), zap.Error(err))
	}
}

func (s *TicketService) recordChange(ctx context.Context, ticketID string, actor sender, change domain.TicketChangeType, oldValue, newValue string, at time.Time) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: actor.kind,
		ChangedByID:   actor.id,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     at,
	}
	return s.history.Create(ctx, entry)
}

func (s *TicketService) publishMessageAdded(ctx context.Context, ticketID string, from sender, msg *domain.TicketMessage) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticketID,
		Actor:    from.actor(),
		Payload: events.TicketMessageAddedPayload{
			MessageID:     msg.ID,
			SenderType:    msg.SenderType,
			SenderID:      msg.SenderID,
			HasAttachment: msg.Attachment != nil,
			TextPreview:   stringPreview(msg.Text, 120),
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func validateCreate(input CreateTicketInput) error {
	fields := map[string][]string{}
	if input.Subject == "" {
		fields["subject"] = append(fields["subject"], "The subject field is required.")
	} else if utf8.RuneCountInString(input.Subject) > maxSubjectLength {
		fields["subject"] = append(fields["subject"], fmt.Sprintf("The subject must not be greater than %d characters.", maxSubjectLength))
	}
	if input.Description == "" {
		fields["description"] = append(fields["description"], "The description field is required.")
	}
	if !input.Priority.Valid() {
		fields["priority"] = append(fields["priority"], "The selected priority is invalid.")
	}
	if utf8.RuneCountInString(input.Category) > maxCategoryLength {
		fields["category"] = append(fields["category"], fmt.Sprintf("The category must not be greater than %d characters.", maxCategoryLength))
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("The given data was invalid.", fields)
	}
	return nil
}

func validatePatch(role domain.Role, patch TicketPatch) error {
	fields := map[string][]string{}
	if patch.Status != nil && !patch.Status.Valid() {
		fields["status"] = append(fields["status"], "The selected status is invalid.")
	}
	if role == domain.RolePWDMember && patch.Status == nil {
		fields["status"] = append(fields["status"], "The status field is required.")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		fields["priority"] = append(fields["priority"], "The selected priority is invalid.")
	}
	if patch.Category != nil && utf8.RuneCountInString(strings.TrimSpace(*patch.Category)) > maxCategoryLength {
		fields["category"] = append(fields["category"], fmt.Sprintf("The category must not be greater than %d characters.", maxCategoryLength))
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("The given data was invalid.", fields)
	}
	return nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
