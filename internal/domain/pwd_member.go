package domain

import "time"

// PWDMember is the registry record of a beneficiary linked to a login account.
type PWDMember struct {
	ID        string
	AccountID string
	PWDNumber string
	FullName  string
	CreatedAt time.Time
}
