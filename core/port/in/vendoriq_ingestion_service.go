// Package in defines the inbound ports consumed by the HTTP layer.
package in

import (
	"context"
	"time"

	"vendoriq_server/core/domain"
)

// IngestionService runs the email ingestion pipeline for one user.
// Only precondition failures (unknown user, no Google credential) return an
// error; per-item failures are absorbed into the result.
type IngestionService interface {
	Fetch(ctx context.Context, userID string, fromDate time.Time, filters domain.FetchFilters) (*domain.IngestResult, error)
}
