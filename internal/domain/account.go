package domain

import "time"

// Account is a login identity. Account management lives outside this service; the service
// only reads accounts to issue tokens.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}
