package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
)

// =============================================================================
// MongoDB Scheduled Job Adapter
// =============================================================================

const collectionScheduledJobs = "scheduled_jobs"

// JobAdapter implements out.JobRepository using MongoDB. The derived job id
// doubles as the document _id, so a duplicate create is rejected by Mongo
// itself.
type JobAdapter struct {
	collection *mongo.Collection
}

// NewJobAdapter creates a new MongoDB scheduled job adapter.
func NewJobAdapter(db *mongo.Database) *JobAdapter {
	return &JobAdapter{collection: db.Collection(collectionScheduledJobs)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *JobAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type jobDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	FromDate  time.Time `bson:"from_date"`
	Senders   []string  `bson:"senders,omitempty"`
	OnlyPDF   bool      `bson:"only_pdf"`
	ForceSync bool      `bson:"force_sync"`
	Frequency string    `bson:"frequency"`
	CreatedAt time.Time `bson:"created_at"`
	NextRunAt time.Time `bson:"next_run_at,omitempty"`
}

// =============================================================================
// Operations
// =============================================================================

func (a *JobAdapter) Insert(ctx context.Context, job *domain.ScheduledJob) error {
	if _, err := a.collection.InsertOne(ctx, toJobDocument(job)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Same user, same millisecond, same cadence. The existing row
			// stands; the caller decides what a duplicate create means.
			return fmt.Errorf("%w: %s", out.ErrJobExists, job.ID)
		}
		return fmt.Errorf("failed to insert scheduled job: %w", err)
	}
	return nil
}

// Delete removes the job row. The user filter enforces ownership at the
// storage layer as well.
func (a *JobAdapter) Delete(ctx context.Context, userID, jobID string) error {
	_, err := a.collection.DeleteOne(ctx, bson.M{"_id": jobID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}
	return nil
}

func (a *JobAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.ScheduledJob, error) {
	return a.list(ctx, bson.M{"user_id": userID})
}

func (a *JobAdapter) ListAll(ctx context.Context) ([]*domain.ScheduledJob, error) {
	return a.list(ctx, bson.M{})
}

func (a *JobAdapter) UpdateNextRun(ctx context.Context, jobID string, nextRunAt time.Time) error {
	update := bson.M{"$set": bson.M{"next_run_at": nextRunAt}}
	if _, err := a.collection.UpdateOne(ctx, bson.M{"_id": jobID}, update); err != nil {
		return fmt.Errorf("failed to update next run time: %w", err)
	}
	return nil
}

func (a *JobAdapter) list(ctx context.Context, filter bson.M) ([]*domain.ScheduledJob, error) {
	cursor, err := a.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []*domain.ScheduledJob
	for cursor.Next(ctx) {
		var doc jobDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode scheduled job: %w", err)
		}
		jobs = append(jobs, toDomainJob(&doc))
	}
	return jobs, cursor.Err()
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toJobDocument(job *domain.ScheduledJob) *jobDocument {
	return &jobDocument{
		ID:        job.ID,
		UserID:    job.UserID,
		FromDate:  job.FromDate,
		Senders:   job.Filters.Senders,
		OnlyPDF:   job.Filters.OnlyPDF,
		ForceSync: job.Filters.ForceSync,
		Frequency: string(job.Frequency),
		CreatedAt: job.CreatedAt,
		NextRunAt: job.NextRunAt,
	}
}

func toDomainJob(doc *jobDocument) *domain.ScheduledJob {
	return &domain.ScheduledJob{
		ID:       doc.ID,
		UserID:   doc.UserID,
		FromDate: doc.FromDate,
		Filters: domain.FetchFilters{
			Senders:   doc.Senders,
			OnlyPDF:   doc.OnlyPDF,
			ForceSync: doc.ForceSync,
		},
		Frequency: domain.Frequency(doc.Frequency),
		CreatedAt: doc.CreatedAt,
		NextRunAt: doc.NextRunAt,
	}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.JobRepository = (*JobAdapter)(nil)
