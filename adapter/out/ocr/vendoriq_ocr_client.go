// Package ocr implements the fire-and-forget trigger client for the OCR
// extraction service.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
	"vendoriq_server/pkg/httputil"
	"vendoriq_server/pkg/logger"
)

// =============================================================================
// OCR Trigger Client
// =============================================================================

const triggerPath = "/api/v1/processing/vendor"

// Client implements out.OCRNotifier over HTTP. One POST per vendor batch,
// one fixed timeout, no retries; a circuit breaker sheds calls while the
// OCR service is down so ingestion runs don't stack up timeouts.
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
}

// NewClient creates the OCR trigger client. timeout bounds the entire
// trigger call.
func NewClient(baseURL, serviceToken string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:        "ocr-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("OCR circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   httputil.NewClient(httputil.OCRClientConfig(timeout)),
		breaker:      gobreaker.NewCircuitBreaker(settings),
	}
}

// =============================================================================
// Payload
// =============================================================================

// triggerPayload is the request body the OCR service expects.
type triggerPayload struct {
	UserID          string               `json:"userId"`
	VendorName      string               `json:"vendorName"`
	VendorFolderID  string               `json:"vendorFolderId,omitempty"`
	InvoiceFolderID string               `json:"invoiceFolderId,omitempty"`
	RefreshToken    string               `json:"refreshToken"`
	Invoices        []domain.InvoiceFile `json:"invoices"`
}

// =============================================================================
// Operations
// =============================================================================

// Notify POSTs the vendor batch to the OCR service. Every failure mode maps
// to a "failed" outcome; the pipeline never blocks on OCR health.
func (c *Client) Notify(ctx context.Context, batch *domain.VendorBatch) domain.OCROutcome {
	outcome := domain.OCROutcome{VendorName: batch.VendorName}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, batch)
	})
	if err != nil {
		outcome.Status = "failed"
		outcome.Error = err.Error()
		logger.WithFields(map[string]any{
			"user_id": batch.UserID,
			"vendor":  batch.VendorName,
		}).WithError(err).Error("OCR trigger failed")
		return outcome
	}

	// The service's own status body is the outcome status.
	status, _ := res.(string)
	if status == "" {
		status = "accepted"
	}
	outcome.Status = status
	return outcome
}

// post sends the trigger and returns the service's status body on 2xx.
func (c *Client) post(ctx context.Context, batch *domain.VendorBatch) (string, error) {
	payload := triggerPayload{
		UserID:          batch.UserID,
		VendorName:      batch.VendorName,
		VendorFolderID:  batch.VendorFolderID,
		InvoiceFolderID: batch.InvoiceFolderID,
		RefreshToken:    batch.RefreshToken,
		Invoices:        batch.Invoices,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+triggerPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set("X-Service-Token", c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr service unreachable: %w", err)
	}
	defer resp.Body.Close()

	tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("ocr service returned %d: %s", resp.StatusCode, string(tail))
	}
	return strings.TrimSpace(string(tail)), nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.OCRNotifier = (*Client)(nil)
