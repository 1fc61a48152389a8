package dto

import (
	"strings"
	"time"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// CreateTicketRequest payload. Multipart requests carry the same fields as form values.
type CreateTicketRequest struct {
	Subject     string `json:"subject" form:"subject" validate:"required,max=255"`
	Description string `json:"description" form:"description" validate:"required"`
	Priority    string `json:"priority" form:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Category    string `json:"category" form:"category" validate:"omitempty,max=255"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Status   *string `json:"status" validate:"omitempty,oneof=open in_progress resolved closed"`
	Priority *string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Category *string `json:"category" validate:"omitempty,max=255"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Message string `json:"message" form:"message" validate:"required"`
}

// TicketListQuery captures list filters. Status and priority accept comma separated values.
type TicketListQuery struct {
	Status   string `query:"status" json:"status" validate:"omitempty,enum_list=open in_progress resolved closed"`
	Priority string `query:"priority" json:"priority" validate:"omitempty,enum_list=low medium high urgent"`
	Page     int    `query:"page" json:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" json:"page_size" validate:"omitempty,min=1,max=100"`
}

// Statuses returns the parsed status filter.
func (q TicketListQuery) Statuses() []domain.TicketStatus {
	var out []domain.TicketStatus
	for _, v := range splitList(q.Status) {
		out = append(out, domain.TicketStatus(v))
	}
	return out
}

// Priorities returns the parsed priority filter.
func (q TicketListQuery) Priorities() []domain.TicketPriority {
	var out []domain.TicketPriority
	for _, v := range splitList(q.Priority) {
		out = append(out, domain.TicketPriority(v))
	}
	return out
}

// Limit and Offset translate the 1-based page into repository terms.
func (q TicketListQuery) Limit() int {
	return q.PageSize
}

func (q TicketListQuery) Offset() int {
	if q.Page <= 1 || q.PageSize <= 0 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID           string                `json:"id"`
	TicketNumber string                `json:"ticket_number"`
	Subject      string                `json:"subject"`
	Description  string                `json:"description"`
	RequesterID  string                `json:"requester_id"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	Category     string                `json:"category,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ResolvedAt   *time.Time            `json:"resolved_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Data     []TicketResponse `json:"data"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// CreateTicketResponse returns the new ticket with its first message.
type CreateTicketResponse struct {
	Ticket  TicketResponse  `json:"ticket"`
	Message MessageResponse `json:"message"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	Ticket   TicketResponse    `json:"ticket"`
	Messages []MessageResponse `json:"messages"`
	History  []HistoryResponse `json:"history"`
}

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID         string              `json:"id"`
	TicketID   string              `json:"ticket_id"`
	Message    string              `json:"message"`
	SenderType domain.SenderType   `json:"sender_type"`
	SenderID   string              `json:"sender_id"`
	Attachment *AttachmentResponse `json:"attachment"`
	CreatedAt  time.Time           `json:"created_at"`
}

// AttachmentResponse metadata. The storage path is never exposed.
type AttachmentResponse struct {
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Checksum     string `json:"checksum"`
	PreviewURL   string `json:"preview_url"`
	DownloadURL  string `json:"download_url"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ChangeType    domain.TicketChangeType `json:"change_type"`
	OldValue      string                  `json:"old_value"`
	NewValue      string                  `json:"new_value"`
	ChangedByType domain.SenderType       `json:"changed_by_type"`
	ChangedByID   string                  `json:"changed_by_id"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		TicketNumber: t.TicketNumber,
		Subject:      t.Subject,
		Description:  t.Description,
		RequesterID:  t.RequesterID,
		Status:       t.Status,
		Priority:     t.Priority,
		Category:     t.Category,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		ResolvedAt:   t.ResolvedAt,
		ClosedAt:     t.ClosedAt,
	}
}

// NewTicketResponses maps a list of tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, NewTicketResponse(t))
	}
	return out
}

// NewMessageResponse maps a message and its attachment.
func NewMessageResponse(m domain.TicketMessage) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID,
		TicketID:   m.TicketID,
		Message:    m.Text,
		SenderType: m.SenderType,
		SenderID:   m.SenderID,
		CreatedAt:  m.CreatedAt,
	}
	if m.Attachment != nil {
		resp.Attachment = &AttachmentResponse{
			OriginalName: m.Attachment.OriginalName,
			MimeType:     m.Attachment.MimeType,
			SizeBytes:    m.Attachment.SizeBytes,
			Checksum:     m.Attachment.Checksum,
			PreviewURL:   "/messages/" + m.ID + "/download",
			DownloadURL:  "/messages/" + m.ID + "/force-download",
		}
	}
	return resp
}

// NewTicketDetailResponse maps a ticket with its thread and history.
func NewTicketDetailResponse(t domain.Ticket, messages []domain.TicketMessage, history []domain.TicketHistory) TicketDetailResponse {
	resp := TicketDetailResponse{
		Ticket:   NewTicketResponse(t),
		Messages: make([]MessageResponse, 0, len(messages)),
		History:  make([]HistoryResponse, 0, len(history)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, NewMessageResponse(m))
	}
	for _, h := range history {
		resp.History = append(resp.History, HistoryResponse{
			ChangeType:    h.ChangeType,
			OldValue:      h.OldValue,
			NewValue:      h.NewValue,
			ChangedByType: h.ChangedByType,
			ChangedByID:   h.ChangedByID,
			CreatedAt:     h.CreatedAt,
		})
	}
	return resp
}
