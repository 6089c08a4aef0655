// Package analytics serves the snapshot cache and computes the
// spreadsheet-backed spend summary.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/in"
	"vendoriq_server/core/port/out"
	"vendoriq_server/pkg/logger"
)

var (
	ErrSnapshotNotFound = errors.New("analytics snapshot not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotConnected     = errors.New("no Google account connected")
	ErrNoSpendSheet     = errors.New("no spend spreadsheet configured")
)

// validPeriods are the snapshot cache keys a caller may request.
var validPeriods = map[string]bool{
	"month":   true,
	"quarter": true,
	"year":    true,
	"all":     true,
}

// Service caches computed analytics per (user, period). Mongo's TTL index
// deletes expired rows eventually; ttl here lets a read mark a row stale
// before the reaper gets to it.
type Service struct {
	snapshots out.SnapshotRepository
	users     out.UserRepository
	sheets    out.SpendSheetReader

	ttl        time.Duration
	sheetID    string
	sheetRange string

	now func() time.Time
}

var _ in.AnalyticsService = (*Service)(nil)

// NewService creates the analytics service. ttl mirrors the Mongo TTL index
// on the snapshot collection.
func NewService(snapshots out.SnapshotRepository, users out.UserRepository, sheets out.SpendSheetReader, ttl time.Duration, sheetID, sheetRange string) *Service {
	return &Service{
		snapshots:  snapshots,
		users:      users,
		sheets:     sheets,
		ttl:        ttl,
		sheetID:    sheetID,
		sheetRange: sheetRange,
		now:        time.Now,
	}
}

// GetSnapshot returns the cached snapshot for (user, period), flagged stale
// once it has outlived the TTL. Missing snapshots are ErrSnapshotNotFound,
// not an empty view, so callers can distinguish "never computed" from empty
// data.
func (s *Service) GetSnapshot(ctx context.Context, userID, period string) (*in.SnapshotView, error) {
	if !validPeriods[period] {
		return nil, fmt.Errorf("invalid analytics period: %q", period)
	}

	snap, err := s.snapshots.Get(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrSnapshotNotFound
	}

	return s.view(snap, true), nil
}

// UpsertSnapshot stores freshly computed analytics, replacing any previous
// snapshot for the same (user, period) and resetting its TTL clock.
func (s *Service) UpsertSnapshot(ctx context.Context, userID, period string, data map[string]any) (*domain.AnalyticsSnapshot, error) {
	if !validPeriods[period] {
		return nil, fmt.Errorf("invalid analytics period: %q", period)
	}
	return s.snapshots.Upsert(ctx, userID, period, data)
}

// Invalidate drops cached snapshots for a user. An empty period drops every
// period. Returns the number of snapshots removed; zero is not an error.
func (s *Service) Invalidate(ctx context.Context, userID, period string) (int64, error) {
	if period != "" && !validPeriods[period] {
		return 0, fmt.Errorf("invalid analytics period: %q", period)
	}
	removed, err := s.snapshots.Delete(ctx, userID, period)
	if err != nil {
		return 0, err
	}
	logger.WithFields(map[string]any{
		"user_id": userID,
		"period":  period,
		"removed": removed,
	}).Info("Invalidated analytics snapshots")
	return removed, nil
}

// RefreshSpendSummary recomputes per-vendor spend totals from the configured
// spreadsheet and caches the result under the given period. The fresh view
// is returned with Cached=false.
func (s *Service) RefreshSpendSummary(ctx context.Context, userID, period string) (*in.SnapshotView, error) {
	if !validPeriods[period] {
		return nil, fmt.Errorf("invalid analytics period: %q", period)
	}
	if s.sheetID == "" {
		return nil, ErrNoSpendSheet
	}

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

	rows, err := s.sheets.ReadInvoiceRows(ctx, user.GoogleRefreshToken, s.sheetID, s.sheetRange)
	if err != nil {
		return nil, fmt.Errorf("failed to read spend rows: %w", err)
	}

	data := summarize(rows)

	snap, err := s.snapshots.Upsert(ctx, userID, period, data)
	if err != nil {
		// The summary was computed; a cache write failure should not hide it.
		logger.WithError(err).Error("Failed to cache spend summary")
		snap = &domain.AnalyticsSnapshot{
			UserID: userID, Period: period, Data: data, ComputedAt: s.now(),
		}
	}

	return s.view(snap, false), nil
}

// summarize folds spend rows into the snapshot payload: total spend, spend
// per vendor, and the vendors ranked by total descending.
func summarize(rows []out.InvoiceRow) map[string]any {
	byVendor := map[string]float64{}
	var total float64
	for _, r := range rows {
		vendor := r.Vendor
		if vendor == "" {
			vendor = "Unknown"
		}
		byVendor[vendor] += r.Amount
		total += r.Amount
	}

	ranked := make([]string, 0, len(byVendor))
	for v := range byVendor {
		ranked = append(ranked, v)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if byVendor[ranked[i]] != byVendor[ranked[j]] {
			return byVendor[ranked[i]] > byVendor[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	return map[string]any{
		"total_spend":     total,
		"vendor_totals":   byVendor,
		"vendors_by_rank": ranked,
		"invoice_count":   len(rows),
	}
}

func (s *Service) view(snap *domain.AnalyticsSnapshot, cached bool) *in.SnapshotView {
	return &in.SnapshotView{
		UserID:     snap.UserID,
		Period:     snap.Period,
		Data:       snap.Data,
		ComputedAt: snap.ComputedAt.UTC().Format(time.RFC3339),
		Cached:     cached,
		Stale:      s.now().Sub(snap.ComputedAt) > s.ttl,
	}
}
