package events

import (
	"time"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventTicketDeleted         EventType = "ticket_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.SenderType `json:"type"`
	ID   string            `json:"id"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Priority     domain.TicketPriority `json:"priority"`
	Subject      string                `json:"subject"`
}

// TicketStatusChangedPayload payload. Implicit marks the Open -> InProgress move a message triggers.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Implicit  bool                `json:"implicit"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID     string            `json:"message_id"`
	SenderType    domain.SenderType `json:"sender_type"`
	SenderID      string            `json:"sender_id"`
	HasAttachment bool              `json:"has_attachment"`
	TextPreview   string            `json:"text_preview"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	Status       domain.TicketStatus `json:"status"`
	Attachments  int                 `json:"attachments"`
}
