package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSnapshotRepo struct {
	rows map[string]*domain.AnalyticsSnapshot
	now  func() time.Time
}

func snapKey(userID, period string) string { return userID + "/" + period }

func (f *fakeSnapshotRepo) Get(_ context.Context, userID, period string) (*domain.AnalyticsSnapshot, error) {
	return f.rows[snapKey(userID, period)], nil
}

func (f *fakeSnapshotRepo) Upsert(_ context.Context, userID, period string, data map[string]any) (*domain.AnalyticsSnapshot, error) {
	snap := &domain.AnalyticsSnapshot{UserID: userID, Period: period, Data: data, ComputedAt: f.now()}
	f.rows[snapKey(userID, period)] = snap
	return snap, nil
}

func (f *fakeSnapshotRepo) Delete(_ context.Context, userID, period string) (int64, error) {
	var removed int64
	for key, snap := range f.rows {
		if snap.UserID != userID {
			continue
		}
		if period == "" || snap.Period == period {
			delete(f.rows, key)
			removed++
		}
	}
	return removed, nil
}

type fakeUsers struct {
	user *domain.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}
func (f *fakeUsers) FindByEmail(_ context.Context, _ string) (*domain.User, error) { return nil, nil }
func (f *fakeUsers) Create(_ context.Context, u *domain.User) (string, error)      { return u.ID, nil }
func (f *fakeUsers) UpdateGoogleTokens(_ context.Context, _, _, _ string) error    { return nil }
func (f *fakeUsers) DisconnectGoogle(_ context.Context, _ string) error            { return nil }
func (f *fakeUsers) UpdateLastSyncedAt(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeSheets struct {
	rows []out.InvoiceRow
	err  error
}

func (f *fakeSheets) ReadInvoiceRows(_ context.Context, _, _, _ string) ([]out.InvoiceRow, error) {
	return f.rows, f.err
}

// =============================================================================
// Tests
// =============================================================================

func newFixture(ttl time.Duration) (*Service, *fakeSnapshotRepo, *fakeSheets, func(time.Time)) {
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return current }

	repo := &fakeSnapshotRepo{rows: map[string]*domain.AnalyticsSnapshot{}, now: nowFn}
	users := &fakeUsers{user: &domain.User{ID: "u1", GoogleRefreshToken: "rt"}}
	sheets := &fakeSheets{}

	svc := NewService(repo, users, sheets, ttl, "sheet-1", "Invoices!A2:C")
	svc.now = func() time.Time { return current }
	repo.now = svc.now

	setNow := func(t time.Time) {
		current = t
	}
	return svc, repo, sheets, setNow
}

func TestGetSnapshot_FreshAndStale(t *testing.T) {
	svc, repo, _, setNow := newFixture(60 * time.Minute)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, "u1", "month", map[string]any{"total_spend": 120.5}); err != nil {
		t.Fatalf("seed Upsert() error = %v", err)
	}
	seededAt := repo.rows[snapKey("u1", "month")].ComputedAt

	view, err := svc.GetSnapshot(ctx, "u1", "month")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if !view.Cached || view.Stale {
		t.Errorf("fresh read: cached=%v stale=%v, want cached fresh", view.Cached, view.Stale)
	}
	if view.Data["total_spend"] != 120.5 {
		t.Errorf("Data = %v, want seeded payload", view.Data)
	}

	setNow(seededAt.Add(61 * time.Minute))
	view, err = svc.GetSnapshot(ctx, "u1", "month")
	if err != nil {
		t.Fatalf("GetSnapshot() after TTL error = %v", err)
	}
	if !view.Stale {
		t.Error("snapshot older than TTL not flagged stale")
	}
}

func TestGetSnapshot_MissAndBadPeriod(t *testing.T) {
	svc, _, _, _ := newFixture(time.Hour)

	if _, err := svc.GetSnapshot(context.Background(), "u1", "month"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("cache miss: err = %v, want ErrSnapshotNotFound", err)
	}
	if _, err := svc.GetSnapshot(context.Background(), "u1", "decade"); err == nil {
		t.Error("invalid period accepted")
	}
}

func TestUpsert_ResetsTTLClock(t *testing.T) {
	svc, repo, _, setNow := newFixture(time.Hour)
	ctx := context.Background()

	first, err := svc.UpsertSnapshot(ctx, "u1", "quarter", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("UpsertSnapshot() error = %v", err)
	}

	setNow(first.ComputedAt.Add(30 * time.Minute))
	second, err := svc.UpsertSnapshot(ctx, "u1", "quarter", map[string]any{"v": 2})
	if err != nil {
		t.Fatalf("second UpsertSnapshot() error = %v", err)
	}
	if !second.ComputedAt.After(first.ComputedAt) {
		t.Error("ComputedAt did not advance on overwrite")
	}
	if got := repo.rows[snapKey("u1", "quarter")].Data["v"]; got != 2 {
		t.Errorf("stored payload = %v, want latest write", got)
	}
}

func TestInvalidate(t *testing.T) {
	svc, repo, _, _ := newFixture(time.Hour)
	ctx := context.Background()

	repo.Upsert(ctx, "u1", "month", map[string]any{})
	repo.Upsert(ctx, "u1", "year", map[string]any{})
	repo.Upsert(ctx, "u2", "month", map[string]any{})

	removed, err := svc.Invalidate(ctx, "u1", "month")
	if err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	removed, err = svc.Invalidate(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Invalidate(all) error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want the remaining 1", removed)
	}
	if len(repo.rows) != 1 {
		t.Errorf("rows = %d, want only u2's snapshot left", len(repo.rows))
	}

	// No snapshots is a zero count, not an error.
	removed, err = svc.Invalidate(ctx, "u1", "")
	if err != nil || removed != 0 {
		t.Errorf("Invalidate(empty) = (%d, %v), want (0, nil)", removed, err)
	}
}

func TestRefreshSpendSummary(t *testing.T) {
	svc, repo, sheets, _ := newFixture(time.Hour)
	sheets.rows = []out.InvoiceRow{
		{Vendor: "Acme-corp", Amount: 100},
		{Vendor: "Globex", Amount: 250},
		{Vendor: "Acme-corp", Amount: 50},
		{Vendor: "", Amount: 10},
	}

	view, err := svc.RefreshSpendSummary(context.Background(), "u1", "month")
	if err != nil {
		t.Fatalf("RefreshSpendSummary() error = %v", err)
	}
	if view.Cached {
		t.Error("fresh recompute flagged as cached")
	}

	if got := view.Data["total_spend"]; got != 410.0 {
		t.Errorf("total_spend = %v, want 410", got)
	}
	totals := view.Data["vendor_totals"].(map[string]float64)
	if totals["Acme-corp"] != 150 || totals["Globex"] != 250 || totals["Unknown"] != 10 {
		t.Errorf("vendor_totals = %v", totals)
	}
	ranked := view.Data["vendors_by_rank"].([]string)
	if len(ranked) != 3 || ranked[0] != "Globex" || ranked[1] != "Acme-corp" {
		t.Errorf("vendors_by_rank = %v, want spend-descending order", ranked)
	}

	// The summary lands in the cache for subsequent GetSnapshot reads.
	if _, ok := repo.rows[snapKey("u1", "month")]; !ok {
		t.Error("summary was not cached")
	}
}

func TestRefreshSpendSummary_Preconditions(t *testing.T) {
	svc, _, sheets, _ := newFixture(time.Hour)
	ctx := context.Background()

	if _, err := svc.RefreshSpendSummary(ctx, "missing", "month"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: err = %v, want ErrUserNotFound", err)
	}

	sheets.err = errors.New("sheet range not found")
	if _, err := svc.RefreshSpendSummary(ctx, "u1", "month"); err == nil {
		t.Error("sheet read failure swallowed")
	}

	bare := NewService(&fakeSnapshotRepo{rows: map[string]*domain.AnalyticsSnapshot{}, now: time.Now},
		&fakeUsers{user: &domain.User{ID: "u1", GoogleRefreshToken: "rt"}}, sheets, time.Hour, "", "")
	if _, err := bare.RefreshSpendSummary(ctx, "u1", "month"); !errors.Is(err, ErrNoSpendSheet) {
		t.Errorf("no sheet configured: err = %v, want ErrNoSpendSheet", err)
	}
}
