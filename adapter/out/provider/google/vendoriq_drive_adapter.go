package google

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"vendoriq_server/core/port/out"
)

// =============================================================================
// Drive Adapter
// =============================================================================

const (
	folderMimeType    = "application/vnd.google-apps.folder"
	invoicesSubfolder = "invoices"
)

// DriveAdapter implements out.StorageProvider against the Drive API. Files
// land in <root>/<vendor>/invoices/; missing folders are created on the way
// down.
type DriveAdapter struct {
	creds      Credentials
	rootFolder string
}

// NewDriveAdapter creates a new Drive adapter. rootFolder is the name of
// the top-level ingestion folder in the user's drive.
func NewDriveAdapter(creds Credentials, rootFolder string) *DriveAdapter {
	return &DriveAdapter{creds: creds, rootFolder: rootFolder}
}

func (a *DriveAdapter) service(ctx context.Context, refreshToken string) (*drive.Service, error) {
	client := a.creds.clientFor(ctx, refreshToken)
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return svc, nil
}

// =============================================================================
// Operations
// =============================================================================

// Upload stores the file under <root>/<vendor>/invoices/ and returns the
// created ids and share links.
func (a *DriveAdapter) Upload(ctx context.Context, refreshToken, vendor, filename string, data []byte) (*out.UploadResult, error) {
	svc, err := a.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	rootID, err := a.findOrCreateFolder(ctx, svc, a.rootFolder, "")
	if err != nil {
		return nil, fmt.Errorf("failed to ensure root folder: %w", err)
	}
	vendorID, err := a.findOrCreateFolder(ctx, svc, sanitizeFolderName(vendor), rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure vendor folder: %w", err)
	}
	invoicesID, err := a.findOrCreateFolder(ctx, svc, invoicesSubfolder, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure invoices folder: %w", err)
	}

	meta := &drive.File{
		Name:     filename,
		Parents:  []string{invoicesID},
		MimeType: mimeTypeFor(filename),
	}
	file, err := svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(meta.MimeType)).
		Fields("id, webViewLink, webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &out.UploadResult{
		FileID:          file.Id,
		VendorFolderID:  vendorID,
		InvoiceFolderID: invoicesID,
		WebViewLink:     file.WebViewLink,
		WebContentLink:  file.WebContentLink,
	}, nil
}

// ListVendorFolders lists the vendor directories under the ingestion root.
// A user who never uploaded anything has no root folder; that reads as an
// empty list, not an error.
func (a *DriveAdapter) ListVendorFolders(ctx context.Context, refreshToken string) ([]out.VendorFolder, error) {
	svc, err := a.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	rootID, err := a.findFolder(ctx, svc, a.rootFolder, "")
	if err != nil {
		return nil, err
	}
	if rootID == "" {
		return []out.VendorFolder{}, nil
	}

	query := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", rootID, folderMimeType)
	folders := []out.VendorFolder{}
	pageToken := ""
	for {
		req := svc.Files.List().Q(query).
			Fields("nextPageToken, files(id, name, createdTime, modifiedTime)").
			OrderBy("name")
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list vendor folders: %w", err)
		}
		for _, f := range resp.Files {
			folders = append(folders, out.VendorFolder{
				ID:           f.Id,
				Name:         f.Name,
				CreatedTime:  f.CreatedTime,
				ModifiedTime: f.ModifiedTime,
			})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return folders, nil
}

// ListVendorInvoices lists the files inside a vendor's invoices folder.
func (a *DriveAdapter) ListVendorInvoices(ctx context.Context, refreshToken, vendorFolderID string) (*out.VendorInvoiceList, error) {
	svc, err := a.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	invoicesID, err := a.findFolder(ctx, svc, invoicesSubfolder, vendorFolderID)
	if err != nil {
		return nil, err
	}

	list := &out.VendorInvoiceList{
		VendorFolderID:  vendorFolderID,
		InvoiceFolderID: invoicesID,
		Invoices:        []out.StoredInvoice{},
	}
	if invoicesID == "" {
		return list, nil
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", invoicesID)
	pageToken := ""
	for {
		req := svc.Files.List().Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size, webViewLink, webContentLink)").
			OrderBy("createdTime desc")
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list invoices: %w", err)
		}
		for _, f := range resp.Files {
			list.Invoices = append(list.Invoices, out.StoredInvoice{
				ID:             f.Id,
				Name:           f.Name,
				MimeType:       f.MimeType,
				Size:           f.Size,
				WebViewLink:    f.WebViewLink,
				WebContentLink: f.WebContentLink,
			})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return list, nil
}

// =============================================================================
// Folder Helpers
// =============================================================================

// findFolder returns the id of the named folder under parentID ("" means
// drive root), or "" when it does not exist.
func (a *DriveAdapter) findFolder(ctx context.Context, svc *drive.Service, name, parentID string) (string, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	resp, err := svc.Files.List().Q(query).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to find folder %q: %w", name, err)
	}
	if len(resp.Files) == 0 {
		return "", nil
	}
	return resp.Files[0].Id, nil
}

func (a *DriveAdapter) findOrCreateFolder(ctx context.Context, svc *drive.Service, name, parentID string) (string, error) {
	id, err := a.findFolder(ctx, svc, name, parentID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	folder, err := svc.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return folder.Id, nil
}

// sanitizeFolderName strips characters Drive queries cannot carry safely.
// An empty or fully stripped name falls back to "Others".
func sanitizeFolderName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "Others"
	}
	return cleaned
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// mimeTypeFor maps the filename extension to the upload content type.
func mimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.StorageProvider = (*DriveAdapter)(nil)
