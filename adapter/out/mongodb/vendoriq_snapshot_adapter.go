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
// MongoDB Analytics Snapshot Adapter
// =============================================================================

const collectionAnalyticsSnapshots = "analytics_snapshots"

// SnapshotAdapter implements out.SnapshotRepository using MongoDB. A TTL
// index on computed_at physically removes rows once they exceed the
// configured lifetime; an upsert resets the clock by rewriting computed_at.
type SnapshotAdapter struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewSnapshotAdapter creates a new MongoDB snapshot adapter. ttl controls
// the TTL index created by EnsureIndexes.
func NewSnapshotAdapter(db *mongo.Database, ttl time.Duration) *SnapshotAdapter {
	return &SnapshotAdapter{
		collection: db.Collection(collectionAnalyticsSnapshots),
		ttl:        ttl,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *SnapshotAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "period", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "computed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(a.ttl.Seconds())),
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type snapshotDocument struct {
	UserID     string         `bson:"user_id"`
	Period     string         `bson:"period"`
	Data       map[string]any `bson:"data"`
	ComputedAt time.Time      `bson:"computed_at"`
}

// =============================================================================
// Operations
// =============================================================================

// Get returns the snapshot, or nil on a cache miss.
func (a *SnapshotAdapter) Get(ctx context.Context, userID, period string) (*domain.AnalyticsSnapshot, error) {
	filter := bson.M{"user_id": userID, "period": period}

	var doc snapshotDocument
	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analytics snapshot: %w", err)
	}

	return &domain.AnalyticsSnapshot{
		UserID:     doc.UserID,
		Period:     doc.Period,
		Data:       doc.Data,
		ComputedAt: doc.ComputedAt,
	}, nil
}

// Upsert replaces the snapshot for (user, period), resetting its TTL clock.
func (a *SnapshotAdapter) Upsert(ctx context.Context, userID, period string, data map[string]any) (*domain.AnalyticsSnapshot, error) {
	doc := &snapshotDocument{
		UserID:     userID,
		Period:     period,
		Data:       data,
		ComputedAt: time.Now(),
	}

	filter := bson.M{"user_id": userID, "period": period}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return nil, fmt.Errorf("failed to upsert analytics snapshot: %w", err)
	}

	return &domain.AnalyticsSnapshot{
		UserID:     userID,
		Period:     period,
		Data:       data,
		ComputedAt: doc.ComputedAt,
	}, nil
}

// Delete removes snapshots for a user; period "" removes all periods.
// Returns the number of snapshots removed.
func (a *SnapshotAdapter) Delete(ctx context.Context, userID, period string) (int64, error) {
	filter := bson.M{"user_id": userID}
	if period != "" {
		filter["period"] = period
	}

	res, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analytics snapshots: %w", err)
	}
	return res.DeletedCount, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.SnapshotRepository = (*SnapshotAdapter)(nil)
