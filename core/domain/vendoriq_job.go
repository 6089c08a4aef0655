package domain

import (
	"fmt"
	"time"
)

// Frequency is the cadence of a scheduled ingestion job.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"

	// FrequencyMinute exists for testing only. Debug builds only.
	FrequencyMinute Frequency = "minute"
)

// CronExpr maps a frequency to its cron expression.
// Hourly runs at the top of every hour, daily at 09:00, weekly 09:00 Monday.
func (f Frequency) CronExpr() (string, error) {
	switch f {
	case FrequencyMinute:
		return "* * * * *", nil
	case FrequencyHourly:
		return "0 * * * *", nil
	case FrequencyDaily:
		return "0 9 * * *", nil
	case FrequencyWeekly:
		return "0 9 * * MON", nil
	default:
		return "", fmt.Errorf("invalid scheduling frequency: %q", f)
	}
}

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	_, err := f.CronExpr()
	return err == nil
}

// ScheduledJob is one recurring ingestion job. The row is persisted so that
// timers can be reconstructed after a restart; NextRunAt lets a missed tick
// during downtime be detected and caught up.
type ScheduledJob struct {
	ID        string
	UserID    string
	FromDate  time.Time
	Filters   FetchFilters
	Frequency Frequency
	CreatedAt time.Time
	NextRunAt time.Time
}
