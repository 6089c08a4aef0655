package domain

// FetchFilters narrow an ingestion run.
type FetchFilters struct {
	// Senders restricts the search to these addresses, OR-combined.
	Senders []string `json:"senders,omitempty"`
	// OnlyPDF limits attachments to PDFs (default true).
	OnlyPDF bool `json:"only_pdf"`
	// ForceSync uses the request fromDate as the search lower bound even
	// when a sync watermark exists.
	ForceSync bool `json:"force_sync"`
}

// UploadedFile is one entry of the per-run upload ledger.
type UploadedFile struct {
	MessageID      string `json:"message_id"`
	AttachmentID   string `json:"attachment_id"`
	Vendor         string `json:"vendor"`
	FileName       string `json:"file_name"`
	DriveFileID    string `json:"drive_file_id"`
	WebViewLink    string `json:"web_view_link,omitempty"`
	WebContentLink string `json:"web_content_link,omitempty"`
	// Skipped marks a dedup-registry hit: no new upload happened and the
	// cached links above are the ones stored on first upload.
	Skipped bool `json:"skipped"`
}

// InvoiceFile describes one stored invoice inside a vendor batch.
type InvoiceFile struct {
	FileID         string `json:"fileId"`
	FileName       string `json:"fileName"`
	MimeType       string `json:"mimeType"`
	WebViewLink    string `json:"webViewLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
}

// VendorBatch is the unit of OCR triggering: the invoices collected for one
// vendor within a single ingestion run.
type VendorBatch struct {
	UserID          string
	VendorName      string
	VendorFolderID  string
	InvoiceFolderID string
	RefreshToken    string
	Invoices        []InvoiceFile
}

// OCROutcome records the result of one vendor-batch trigger. Delivery is
// best-effort: failures are recorded here, never retried.
type OCROutcome struct {
	VendorName string `json:"vendor_name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// IngestResult aggregates one ingestion run. Per-item failures are absorbed
// into this structure; callers must inspect UploadedFiles[].Skipped and
// OCRTriggers[].Status to detect partial failure.
type IngestResult struct {
	TotalProcessed  int            `json:"total_processed"`
	FilesUploaded   int            `json:"files_uploaded"`
	UploadedFiles   []UploadedFile `json:"uploaded_files"`
	VendorsDetected []string       `json:"vendors_detected"`
	OCRTriggers     []OCROutcome   `json:"ocr_triggers"`
}
