package domain

import "strings"

// Role is the caller role supplied by the identity context.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePWDMember Role = "pwd_member"
	// RoleOther covers every authenticated role that has no ticket rights.
	RoleOther Role = "other"
)

// ParseRole maps a token role claim onto a known role. Unknown values become RoleOther.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RolePWDMember:
		return RolePWDMember
	default:
		return RoleOther
	}
}

// Caller is the authenticated identity threaded into every service call.
type Caller struct {
	Role      Role
	AccountID string
}
