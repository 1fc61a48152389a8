package domain

import "time"

// CanRequestStatus reports whether a caller with role may explicitly move a ticket into target.
// Admins may set any state. PWD members may only resolve or close their own tickets.
func CanRequestStatus(role Role, target TicketStatus) bool {
	if !target.Valid() {
		return false
	}
	switch role {
	case RoleAdmin:
		return true
	case RolePWDMember:
		return target == TicketStatusResolved || target == TicketStatusClosed
	case RoleOther:
		return false
	default:
		return false
	}
}

// CanEditFields reports whether role may change priority and category.
func CanEditFields(role Role) bool {
	switch role {
	case RoleAdmin:
		return true
	case RolePWDMember, RoleOther:
		return false
	default:
		return false
	}
}

// Deletable reports whether the ticket's state allows deletion.
func (t *Ticket) Deletable() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// ApplyStatus moves the ticket into target and stamps the entry timestamps.
// Every entry into Resolved or Closed restamps resolvedAt or closedAt. Neither is cleared when
// the ticket later leaves that state.
// It returns false when the ticket already was in target.
func (t *Ticket) ApplyStatus(target TicketStatus, now time.Time) bool {
	if t.Status == target {
		return false
	}
	t.Status = target
	switch target {
	case TicketStatusResolved:
		stamp := now
		t.ResolvedAt = &stamp
	case TicketStatusClosed:
		stamp := now
		t.ClosedAt = &stamp
	}
	t.UpdatedAt = now
	return true
}

// AdvanceOnMessage applies the implicit Open -> InProgress transition that a new message triggers.
func (t *Ticket) AdvanceOnMessage(now time.Time) bool {
	if t.Status != TicketStatusOpen {
		return false
	}
	return t.ApplyStatus(TicketStatusInProgress, now)
}
