package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/events"
	"github.com/pwd-registry/support-desk/internal/observability"
)

// AuditService records ticket events in the log and in metrics.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handleTicketStatusChanged)
	a.dispatcher.Subscribe(events.EventTicketPriorityChanged, a.handleTicketPriorityChanged)
	a.dispatcher.Subscribe(events.EventTicketMessageAdded, a.handleTicketMessageAdded)
	a.dispatcher.Subscribe(events.EventTicketDeleted, a.handleTicketDeleted)
}

func (a *AuditService) handleTicketCreated(ctx context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TicketCreatedPayload); ok {
		fields = append(fields, zap.String("ticket_number", p.TicketNumber), zap.String("priority", string(p.Priority)))
	}
	a.logger.Info("TicketCreated", fields...)
	a.metrics.RecordTicketEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TicketStatusChangedPayload); ok {
		fields = append(fields,
			zap.String("old_status", string(p.OldStatus)),
			zap.String("new_status", string(p.NewStatus)),
			zap.Bool("implicit", p.Implicit))
	}
	a.logger.Info("TicketStatusChanged", fields...)
	a.metrics.RecordTicketEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleTicketPriorityChanged(ctx context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TicketPriorityChangedPayload); ok {
		fields = append(fields,
			zap.String("old_priority", string(p.OldPriority)),
			zap.String("new_priority", string(p.NewPriority)))
	}
	a.logger.Info("TicketPriorityChanged", fields...)
	a.metrics.RecordTicketEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TicketMessageAddedPayload); ok {
		fields = append(fields, zap.String("message_id", p.MessageID), zap.Bool("has_attachment", p.HasAttachment))
		if p.HasAttachment {
			a.metrics.RecordAttachment()
		}
	}
	a.logger.Info("TicketMessageAdded", fields...)
	a.metrics.RecordTicketEvent(string(event.Type))
	return nil
}

func (a *AuditService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if p, ok := event.Payload.(events.TicketDeletedPayload); ok {
		fields = append(fields, zap.String("ticket_number", p.TicketNumber), zap.Int("attachments", p.Attachments))
	}
	a.logger.Info("TicketDeleted", fields...)
	a.metrics.RecordTicketEvent(string(event.Type))
	return nil
}

func (a *AuditService) baseFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.String("actor_id", event.Actor.ID),
	}
}
