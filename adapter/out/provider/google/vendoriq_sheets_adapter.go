package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"vendoriq_server/core/port/out"
)

// =============================================================================
// Sheets Adapter
// =============================================================================

// SheetsAdapter implements out.SpendSheetReader against the Sheets API.
type SheetsAdapter struct {
	creds Credentials
}

// NewSheetsAdapter creates a new Sheets adapter.
func NewSheetsAdapter(creds Credentials) *SheetsAdapter {
	return &SheetsAdapter{creds: creds}
}

// ReadInvoiceRows reads the given range and parses each row into a spend
// entry: the first cell is the vendor, the last numeric cell the amount.
// Rows without a parseable amount are skipped.
func (a *SheetsAdapter) ReadInvoiceRows(ctx context.Context, refreshToken, spreadsheetID, readRange string) ([]out.InvoiceRow, error) {
	client := a.creds.clientFor(ctx, refreshToken)
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %q: %w", readRange, err)
	}

	rows := make([]out.InvoiceRow, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row, ok := parseInvoiceRow(raw)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// =============================================================================
// Helper functions
// =============================================================================

func parseInvoiceRow(cells []any) (out.InvoiceRow, bool) {
	if len(cells) == 0 {
		return out.InvoiceRow{}, false
	}

	vendor := strings.TrimSpace(cellString(cells[0]))

	// Scan from the right for the amount so an optional middle column
	// (date, note) does not break parsing.
	for i := len(cells) - 1; i >= 1; i-- {
		if amount, ok := parseAmount(cellString(cells[i])); ok {
			return out.InvoiceRow{Vendor: vendor, Amount: amount}, true
		}
	}
	return out.InvoiceRow{}, false
}

func cellString(v any) string {
	s, _ := v.(string)
	return s
}

// parseAmount strips currency symbols and thousands separators before
// parsing.
func parseAmount(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.SpendSheetReader = (*SheetsAdapter)(nil)
