package out

import "context"

// UploadResult describes the stored file and the folder chain it lives in.
type UploadResult struct {
	FileID          string
	VendorFolderID  string
	InvoiceFolderID string
	WebViewLink     string
	WebContentLink  string
}

// VendorFolder is one vendor directory under the ingestion root.
type VendorFolder struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedTime  string `json:"created_time,omitempty"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// StoredInvoice is one file inside a vendor's invoices folder.
type StoredInvoice struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mime_type"`
	Size           int64  `json:"size,omitempty"`
	WebViewLink    string `json:"web_view_link,omitempty"`
	WebContentLink string `json:"web_content_link,omitempty"`
}

// VendorInvoiceList is the listing of one vendor's invoices folder.
type VendorInvoiceList struct {
	VendorFolderID  string          `json:"vendor_folder_id"`
	InvoiceFolderID string          `json:"invoice_folder_id,omitempty"`
	Invoices        []StoredInvoice `json:"invoices"`
}

// StorageProvider ensures the <root>/<vendor>/invoices folder chain and
// creates file objects in it. Upload is NOT idempotent at the file level:
// calling twice with the same filename creates two distinct objects.
// Idempotency is enforced one layer up by the attachment registry.
type StorageProvider interface {
	Upload(ctx context.Context, refreshToken, vendor, filename string, data []byte) (*UploadResult, error)

	ListVendorFolders(ctx context.Context, refreshToken string) ([]VendorFolder, error)
	ListVendorInvoices(ctx context.Context, refreshToken, vendorFolderID string) (*VendorInvoiceList, error)
}
