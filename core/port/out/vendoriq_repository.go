package out

import (
	"context"
	"errors"
	"time"

	"vendoriq_server/core/domain"
)

// ErrAlreadyRecorded is returned by AttachmentRegistry.Record when the
// (user, message, attachment) triple already has a ledger row. The unique
// constraint violation itself is the "already processed" signal.
var ErrAlreadyRecorded = errors.New("attachment already recorded")

// ErrJobExists is returned by JobRepository.Insert when a row with the same
// derived job id already exists. The original row stands.
var ErrJobExists = errors.New("scheduled job already exists")

// UserRepository persists user accounts and the sync watermark.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (string, error)

	UpdateGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error
	DisconnectGoogle(ctx context.Context, id string) error

	// UpdateLastSyncedAt advances the sync watermark. Last write wins when
	// runs overlap.
	UpdateLastSyncedAt(ctx context.Context, id string, syncedAt time.Time) error
}

// AttachmentRegistry is the dedup ledger preventing duplicate upload of the
// same mail attachment across repeated ingestion runs.
type AttachmentRegistry interface {
	// Lookup returns the existing row, or nil when the triple is unseen.
	Lookup(ctx context.Context, userID, messageID, attachmentID string) (*domain.ProcessedAttachment, error)

	// Record atomically inserts a new ledger row. Returns ErrAlreadyRecorded
	// when the unique constraint rejects the insert.
	Record(ctx context.Context, att *domain.ProcessedAttachment) error

	CountByUser(ctx context.Context, userID string) (int64, error)
}

// JobRepository is the durable table backing the scheduler. One row per job;
// timers are reconstructed from these rows on startup.
type JobRepository interface {
	// Insert persists a new job row. Returns ErrJobExists when the derived
	// id is already taken.
	Insert(ctx context.Context, job *domain.ScheduledJob) error
	Delete(ctx context.Context, userID, jobID string) error
	ListByUser(ctx context.Context, userID string) ([]*domain.ScheduledJob, error)
	ListAll(ctx context.Context) ([]*domain.ScheduledJob, error)
	UpdateNextRun(ctx context.Context, jobID string, nextRunAt time.Time) error
}

// SnapshotRepository persists the analytics snapshot cache.
type SnapshotRepository interface {
	Get(ctx context.Context, userID, period string) (*domain.AnalyticsSnapshot, error)
	Upsert(ctx context.Context, userID, period string, data map[string]any) (*domain.AnalyticsSnapshot, error)
	// Delete removes snapshots for a user; period "" removes all periods.
	Delete(ctx context.Context, userID, period string) (int64, error)
}
