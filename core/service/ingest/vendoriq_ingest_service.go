// Package ingest implements the email ingestion pipeline: search, dedup,
// upload, vendor batching and OCR triggering for one user.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/in"
	"vendoriq_server/core/port/out"
	"vendoriq_server/core/service/vendor"
	"vendoriq_server/pkg/logger"
)

var _ in.IngestionService = (*Service)(nil)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotConnected = errors.New("no Google account connected")
)

// Service orchestrates one ingestion run. Attachments are processed
// sequentially, message by message; per-item failures are logged and
// absorbed into the result.
type Service struct {
	users    out.UserRepository
	registry out.AttachmentRegistry
	mail     out.MailProvider
	storage  out.StorageProvider
	ocr      out.OCRNotifier

	now func() time.Time
}

// NewService creates the ingestion pipeline service.
func NewService(
	users out.UserRepository,
	registry out.AttachmentRegistry,
	mail out.MailProvider,
	storage out.StorageProvider,
	ocr out.OCRNotifier,
) *Service {
	return &Service{
		users:    users,
		registry: registry,
		mail:     mail,
		storage:  storage,
		ocr:      ocr,
		now:      time.Now,
	}
}

// Fetch runs the pipeline. Only precondition failures return an error; the
// result is always a best-effort summary otherwise.
func (s *Service) Fetch(ctx context.Context, userID string, fromDate time.Time, filters domain.FetchFilters) (*domain.IngestResult, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsConnected() {
		return nil, ErrNotConnected
	}

	// Incremental-sync policy: once a first sync has completed, a run never
	// re-scans the whole mailbox unless explicitly forced.
	after := fromDate
	if !filters.ForceSync && user.LastSyncedAt != nil {
		after = *user.LastSyncedAt
	}

	query := buildQuery(after, filters)
	log := logger.WithField("user_id", userID)
	log.Info("Starting ingestion run: query=%q forceSync=%v", query, filters.ForceSync)

	messages, err := s.mail.Search(ctx, user.GoogleRefreshToken, query)
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{
		TotalProcessed:  len(messages),
		UploadedFiles:   []domain.UploadedFile{},
		VendorsDetected: []string{},
		OCRTriggers:     []domain.OCROutcome{},
	}

	vendorsSeen := map[string]bool{}
	batches := map[string]*domain.VendorBatch{}

	for _, msg := range messages {
		label := vendor.Detect(msg.From, msg.Subject)
		if !vendorsSeen[label] {
			vendorsSeen[label] = true
			result.VendorsDetected = append(result.VendorsDetected, label)
		}

		for _, att := range msg.Attachments {
			if att.FileName == "" || att.ID == "" || !allowedAttachment(att.FileName, filters.OnlyPDF) {
				continue
			}
			s.processAttachment(ctx, user, label, msg, att, result, batches)
		}
	}

	// The watermark advances unconditionally, even when zero files were
	// uploaded or some uploads failed. This bounds re-scan growth at the
	// cost of potentially missing attachments whose upload failed this run.
	syncedAt := s.now()
	if err := s.users.UpdateLastSyncedAt(ctx, userID, syncedAt); err != nil {
		log.WithError(err).Error("Failed to advance sync watermark")
	}

	for _, batch := range batches {
		if len(batch.Invoices) == 0 {
			continue
		}
		outcome := s.ocr.Notify(ctx, batch)
		result.OCRTriggers = append(result.OCRTriggers, outcome)
	}

	log.Info("Ingestion run complete: processed=%d uploaded=%d vendors=%d ocr=%d",
		result.TotalProcessed, result.FilesUploaded, len(result.VendorsDetected), len(result.OCRTriggers))

	return result, nil
}

// processAttachment handles a single attachment part: registry fast path,
// fetch + upload + record on miss. Failures skip only this attachment.
func (s *Service) processAttachment(
	ctx context.Context,
	user *domain.User,
	label string,
	msg *out.MailMessage,
	att out.MailAttachment,
	result *domain.IngestResult,
	batches map[string]*domain.VendorBatch,
) {
	log := logger.WithFields(map[string]any{
		"user_id":    user.ID,
		"message_id": msg.ID,
		"file":       att.FileName,
	})

	existing, err := s.registry.Lookup(ctx, user.ID, msg.ID, att.ID)
	if err != nil {
		log.WithError(err).Error("Registry lookup failed, skipping attachment")
		return
	}

	if existing != nil {
		result.UploadedFiles = append(result.UploadedFiles, domain.UploadedFile{
			MessageID:      msg.ID,
			AttachmentID:   att.ID,
			Vendor:         existing.Vendor,
			FileName:       existing.FileName,
			DriveFileID:    existing.DriveFileID,
			WebViewLink:    existing.WebViewLink,
			WebContentLink: existing.WebContentLink,
			Skipped:        true,
		})
		s.addToBatch(batches, user, existing.Vendor, existing.VendorFolderID, existing.InvoiceFolderID, domain.InvoiceFile{
			FileID:         existing.DriveFileID,
			FileName:       existing.FileName,
			MimeType:       att.MimeType,
			WebViewLink:    existing.WebViewLink,
			WebContentLink: existing.WebContentLink,
		})
		return
	}

	data, err := s.mail.GetAttachment(ctx, user.GoogleRefreshToken, msg.ID, att.ID)
	if err != nil {
		log.WithError(err).Error("Attachment fetch failed, skipping")
		return
	}

	upload, err := s.storage.Upload(ctx, user.GoogleRefreshToken, label, att.FileName, data)
	if err != nil {
		log.WithError(err).Error("Drive upload failed, skipping attachment")
		return
	}

	digest := sha256.Sum256(data)

	record := &domain.ProcessedAttachment{
		UserID:          user.ID,
		MessageID:       msg.ID,
		AttachmentID:    att.ID,
		Vendor:          label,
		FileName:        att.FileName,
		DriveFileID:     upload.FileID,
		VendorFolderID:  upload.VendorFolderID,
		InvoiceFolderID: upload.InvoiceFolderID,
		WebViewLink:     upload.WebViewLink,
		WebContentLink:  upload.WebContentLink,
		ContentHash:     hex.EncodeToString(digest[:]),
		ProcessedAt:     s.now(),
	}

	if err := s.registry.Record(ctx, record); err != nil {
		if errors.Is(err, out.ErrAlreadyRecorded) {
			// A concurrent run won the insert race. The remote upload
			// already happened, so count it, but flag the duplicate.
			log.Warn("Attachment recorded by a concurrent run, duplicate upload likely")
		} else {
			// The file is on the remote side; the missing ledger row risks
			// a duplicate upload next run.
			log.WithError(err).Error("Failed to persist registry record after upload")
		}
	}

	result.FilesUploaded++
	result.UploadedFiles = append(result.UploadedFiles, domain.UploadedFile{
		MessageID:      msg.ID,
		AttachmentID:   att.ID,
		Vendor:         label,
		FileName:       att.FileName,
		DriveFileID:    upload.FileID,
		WebViewLink:    upload.WebViewLink,
		WebContentLink: upload.WebContentLink,
	})

	s.addToBatch(batches, user, label, upload.VendorFolderID, upload.InvoiceFolderID, domain.InvoiceFile{
		FileID:         upload.FileID,
		FileName:       att.FileName,
		MimeType:       att.MimeType,
		WebViewLink:    upload.WebViewLink,
		WebContentLink: upload.WebContentLink,
	})
}

// addToBatch accumulates an invoice into the per-vendor batch. Batches are
// keyed by vendor folder id, falling back to the vendor label.
func (s *Service) addToBatch(batches map[string]*domain.VendorBatch, user *domain.User, label, vendorFolderID, invoiceFolderID string, inv domain.InvoiceFile) {
	key := vendorFolderID
	if key == "" {
		key = label
	}
	if key == "" {
		key = "others"
	}

	batch, ok := batches[key]
	if !ok {
		batch = &domain.VendorBatch{
			UserID:          user.ID,
			VendorName:      label,
			VendorFolderID:  vendorFolderID,
			InvoiceFolderID: invoiceFolderID,
			RefreshToken:    user.GoogleRefreshToken,
		}
		batches[key] = batch
	}
	batch.Invoices = append(batch.Invoices, inv)
}
