package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists every lifecycle state in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseTicketStatus normalizes a client supplied status.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	status := TicketStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// DefaultTicketPriority is applied when a ticket is created without one.
const DefaultTicketPriority = TicketPriorityMedium

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ParseTicketPriority normalizes a client supplied priority.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	priority := TicketPriority(strings.ToLower(strings.TrimSpace(raw)))
	return priority, priority.Valid()
}

// Ticket is the aggregate for support requests opened by PWD members.
type Ticket struct {
	ID           string
	TicketNumber string
	Subject      string
	Description  string
	RequesterID  string
	Status       TicketStatus
	Priority     TicketPriority
	Category     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
	ClosedAt     *time.Time
}

// OwnedBy reports whether the PWD member is the ticket's requester.
func (t *Ticket) OwnedBy(pwdMemberID string) bool {
	return pwdMemberID != "" && t.RequesterID == pwdMemberID
}
