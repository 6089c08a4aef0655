package domain

import "time"

// AnalyticsSnapshot caches one precomputed analytics payload per
// (user, period). A TTL index physically deletes rows after the configured
// number of minutes; freshness at read time is judged against the same TTL.
type AnalyticsSnapshot struct {
	UserID     string
	Period     string // month | quarter | year | all
	Data       map[string]any
	ComputedAt time.Time
}
