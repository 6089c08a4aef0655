package out

import (
	"context"

	"vendoriq_server/core/domain"
)

// OCRNotifier triggers the external OCR extraction service for one vendor
// batch. Delivery is best-effort by contract: transport failures, non-2xx
// responses and open-circuit rejections are all folded into a "failed"
// outcome, never surfaced as an error, and never retried.
type OCRNotifier interface {
	Notify(ctx context.Context, batch *domain.VendorBatch) domain.OCROutcome
}
