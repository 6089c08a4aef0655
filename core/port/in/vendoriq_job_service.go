package in

import (
	"context"
	"time"

	"vendoriq_server/core/domain"
)

// JobService manages recurring ingestion jobs.
type JobService interface {
	Create(ctx context.Context, userID string, fromDate time.Time, frequency domain.Frequency, filters domain.FetchFilters) (string, error)
	List(userID string) []*domain.ScheduledJob
	Cancel(ctx context.Context, userID, jobID string) error
}
