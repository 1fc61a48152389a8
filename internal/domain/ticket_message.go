package domain

import "time"

// SenderType indicates who authored a message.
type SenderType string

const (
	SenderTypePWDMember SenderType = "pwd_member"
	SenderTypeAdmin     SenderType = "admin"
)

// TicketMessage is one entry in a ticket's append-only conversation log.
type TicketMessage struct {
	ID         string
	TicketID   string
	Text       string
	SenderType SenderType
	SenderID   string
	Attachment *Attachment
	CreatedAt  time.Time
	// Seq breaks createdAt ties in insertion order.
	Seq int64
}

// Attachment is the metadata of a file bound to a message. Path is the storage key; the
// remaining fields are what was recorded at upload time.
type Attachment struct {
	MessageID    string
	Path         string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Checksum     string
	CreatedAt    time.Time
}
