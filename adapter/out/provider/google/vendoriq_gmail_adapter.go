package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"vendoriq_server/core/port/out"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// searchPageSize caps how many message ids one list call returns; pagination
// continues until the token runs out.
const searchPageSize = 100

// GmailAdapter implements out.MailProvider against the Gmail API.
type GmailAdapter struct {
	creds Credentials
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(creds Credentials) *GmailAdapter {
	return &GmailAdapter{creds: creds}
}

func (a *GmailAdapter) service(ctx context.Context, refreshToken string) (*gmail.Service, error) {
	client := a.creds.clientFor(ctx, refreshToken)
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

// Search lists all messages matching the query and hydrates each one with
// its headers and attachment metadata. Pagination is followed to
// exhaustion; message bodies are not requested.
func (a *GmailAdapter) Search(ctx context.Context, refreshToken, query string) ([]*out.MailMessage, error) {
	svc, err := a.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		req := svc.Users.Messages.List("me").Q(query).MaxResults(searchPageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	messages := make([]*out.MailMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", id, err)
		}
		messages = append(messages, parseMessage(msg))
	}
	return messages, nil
}

// GetAttachment fetches and decodes one attachment body.
func (a *GmailAdapter) GetAttachment(ctx context.Context, refreshToken, messageID, attachmentID string) ([]byte, error) {
	svc, err := a.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	body, err := svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// =============================================================================
// Helper functions
// =============================================================================

func parseMessage(msg *gmail.Message) *out.MailMessage {
	mm := &out.MailMessage{
		ID:           msg.Id,
		InternalDate: time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "From":
				mm.From = header.Value
			case "Subject":
				mm.Subject = header.Value
			}
		}
		mm.Attachments = parseAttachments(msg.Payload)
	}
	return mm
}

// parseAttachments walks the MIME tree collecting every named part that the
// API exposes as a downloadable attachment.
func parseAttachments(payload *gmail.MessagePart) []out.MailAttachment {
	var attachments []out.MailAttachment

	if payload == nil {
		return attachments
	}

	if payload.Filename != "" && payload.Body != nil && payload.Body.AttachmentId != "" {
		attachments = append(attachments, out.MailAttachment{
			ID:       payload.Body.AttachmentId,
			FileName: payload.Filename,
			MimeType: payload.MimeType,
			Size:     payload.Body.Size,
		})
	}

	for _, part := range payload.Parts {
		attachments = append(attachments, parseAttachments(part)...)
	}
	return attachments
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailProvider = (*GmailAdapter)(nil)
