package domain

import "time"

// ProcessedAttachment is one row of the dedup ledger: exactly one logical
// upload per (user, message, attachment) triple. Rows are never mutated or
// deleted; a found row is authoritative and its cached links are reused.
type ProcessedAttachment struct {
	UserID       string
	MessageID    string
	AttachmentID string

	Vendor   string
	FileName string

	DriveFileID     string
	VendorFolderID  string
	InvoiceFolderID string
	WebViewLink     string
	WebContentLink  string

	// ContentHash is a best-effort sha256 of the uploaded bytes.
	ContentHash string

	ProcessedAt time.Time
}
