// Package out defines the outbound ports of the ingestion core.
package out

import (
	"context"
	"time"
)

// MailAttachment is one attachment part of a provider message.
type MailAttachment struct {
	ID       string
	FileName string
	MimeType string
	Size     int64
}

// MailMessage is one provider message matched by a search query.
type MailMessage struct {
	ID           string
	From         string
	Subject      string
	InternalDate time.Time
	Attachments  []MailAttachment
}

// MailProvider searches a mailbox and fetches attachment bytes.
// The refresh token identifies the mailbox; the provider builds its own
// authenticated client per call.
type MailProvider interface {
	// Search returns all messages matching the provider query string,
	// following pagination to exhaustion.
	Search(ctx context.Context, refreshToken, query string) ([]*MailMessage, error)

	// GetAttachment fetches and decodes one attachment body.
	GetAttachment(ctx context.Context, refreshToken, messageID, attachmentID string) ([]byte, error)
}
