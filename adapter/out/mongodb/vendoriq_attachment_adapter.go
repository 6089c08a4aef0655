package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
)

// =============================================================================
// MongoDB Attachment Registry Adapter
// =============================================================================

const collectionProcessedAttachments = "processed_attachments"

// AttachmentAdapter implements out.AttachmentRegistry using MongoDB. The
// unique compound index on (user_id, message_id, attachment_id) is the dedup
// mechanism itself: a duplicate insert fails atomically instead of racing a
// check-then-write.
type AttachmentAdapter struct {
	collection *mongo.Collection
}

// NewAttachmentAdapter creates a new MongoDB attachment registry adapter.
func NewAttachmentAdapter(db *mongo.Database) *AttachmentAdapter {
	return &AttachmentAdapter{collection: db.Collection(collectionProcessedAttachments)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *AttachmentAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "message_id", Value: 1},
				{Key: "attachment_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "vendor", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type attachmentDocument struct {
	UserID       string `bson:"user_id"`
	MessageID    string `bson:"message_id"`
	AttachmentID string `bson:"attachment_id"`

	Vendor   string `bson:"vendor"`
	FileName string `bson:"file_name"`

	DriveFileID     string `bson:"drive_file_id"`
	VendorFolderID  string `bson:"vendor_folder_id"`
	InvoiceFolderID string `bson:"invoice_folder_id"`
	WebViewLink     string `bson:"web_view_link"`
	WebContentLink  string `bson:"web_content_link"`

	ContentHash string    `bson:"content_hash,omitempty"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// =============================================================================
// Operations
// =============================================================================

// Lookup returns the existing ledger row, or nil when the triple is unseen.
func (a *AttachmentAdapter) Lookup(ctx context.Context, userID, messageID, attachmentID string) (*domain.ProcessedAttachment, error) {
	filter := bson.M{
		"user_id":       userID,
		"message_id":    messageID,
		"attachment_id": attachmentID,
	}

	var doc attachmentDocument
	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up attachment: %w", err)
	}
	return toDomainAttachment(&doc), nil
}

// Record inserts a new ledger row. The unique index rejecting the insert is
// the "already processed" signal, mapped to out.ErrAlreadyRecorded.
func (a *AttachmentAdapter) Record(ctx context.Context, att *domain.ProcessedAttachment) error {
	doc := &attachmentDocument{
		UserID:          att.UserID,
		MessageID:       att.MessageID,
		AttachmentID:    att.AttachmentID,
		Vendor:          att.Vendor,
		FileName:        att.FileName,
		DriveFileID:     att.DriveFileID,
		VendorFolderID:  att.VendorFolderID,
		InvoiceFolderID: att.InvoiceFolderID,
		WebViewLink:     att.WebViewLink,
		WebContentLink:  att.WebContentLink,
		ContentHash:     att.ContentHash,
		ProcessedAt:     att.ProcessedAt,
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now()
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return out.ErrAlreadyRecorded
		}
		return fmt.Errorf("failed to record attachment: %w", err)
	}
	return nil
}

func (a *AttachmentAdapter) CountByUser(ctx context.Context, userID string) (int64, error) {
	count, err := a.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", err)
	}
	return count, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toDomainAttachment(doc *attachmentDocument) *domain.ProcessedAttachment {
	return &domain.ProcessedAttachment{
		UserID:          doc.UserID,
		MessageID:       doc.MessageID,
		AttachmentID:    doc.AttachmentID,
		Vendor:          doc.Vendor,
		FileName:        doc.FileName,
		DriveFileID:     doc.DriveFileID,
		VendorFolderID:  doc.VendorFolderID,
		InvoiceFolderID: doc.InvoiceFolderID,
		WebViewLink:     doc.WebViewLink,
		WebContentLink:  doc.WebContentLink,
		ContentHash:     doc.ContentHash,
		ProcessedAt:     doc.ProcessedAt,
	}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.AttachmentRegistry = (*AttachmentAdapter)(nil)
