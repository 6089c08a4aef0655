package in

import (
	"context"

	"vendoriq_server/core/domain"
)

// SnapshotView is a snapshot plus its read-time freshness flags.
type SnapshotView struct {
	UserID     string         `json:"user_id"`
	Period     string         `json:"period"`
	Data       map[string]any `json:"data"`
	ComputedAt string         `json:"computed_at"`
	Cached     bool           `json:"cached"`
	Stale      bool           `json:"stale"`
}

// AnalyticsService fronts the snapshot cache and the spreadsheet-backed
// spend summary.
type AnalyticsService interface {
	GetSnapshot(ctx context.Context, userID, period string) (*SnapshotView, error)
	UpsertSnapshot(ctx context.Context, userID, period string, data map[string]any) (*domain.AnalyticsSnapshot, error)
	Invalidate(ctx context.Context, userID, period string) (int64, error)
	RefreshSpendSummary(ctx context.Context, userID, period string) (*SnapshotView, error)
}
