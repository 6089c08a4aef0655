package out

import "context"

// InvoiceRow is one spend row read from the analytics spreadsheet.
type InvoiceRow struct {
	Vendor string
	Amount float64
}

// SpendSheetReader reads invoice spend rows from a spreadsheet range.
type SpendSheetReader interface {
	ReadInvoiceRows(ctx context.Context, refreshToken, spreadsheetID, readRange string) ([]InvoiceRow, error)
}
