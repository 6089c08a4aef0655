package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vendoriq_server/core/domain"
	"vendoriq_server/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return f.users[id], nil
}
func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) (string, error) { return u.ID, nil }
func (f *fakeUserRepo) UpdateGoogleTokens(_ context.Context, id, at, rt string) error {
	return nil
}
func (f *fakeUserRepo) DisconnectGoogle(_ context.Context, id string) error { return nil }
func (f *fakeUserRepo) UpdateLastSyncedAt(_ context.Context, id string, ts time.Time) error {
	if u, ok := f.users[id]; ok {
		t := ts
		u.LastSyncedAt = &t
	}
	return nil
}

type fakeRegistry struct {
	rows map[string]*domain.ProcessedAttachment
}

func regKey(userID, msgID, attID string) string {
	return userID + "/" + msgID + "/" + attID
}

func (f *fakeRegistry) Lookup(_ context.Context, userID, msgID, attID string) (*domain.ProcessedAttachment, error) {
	return f.rows[regKey(userID, msgID, attID)], nil
}
func (f *fakeRegistry) Record(_ context.Context, att *domain.ProcessedAttachment) error {
	key := regKey(att.UserID, att.MessageID, att.AttachmentID)
	if _, exists := f.rows[key]; exists {
		return out.ErrAlreadyRecorded
	}
	f.rows[key] = att
	return nil
}
func (f *fakeRegistry) CountByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, r := range f.rows {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

type fakeMail struct {
	messages   []*out.MailMessage
	lastQuery  string
	fetchErr   error
	fetchCalls int
}

func (f *fakeMail) Search(_ context.Context, _, query string) ([]*out.MailMessage, error) {
	f.lastQuery = query
	return f.messages, nil
}
func (f *fakeMail) GetAttachment(_ context.Context, _, msgID, attID string) ([]byte, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return []byte("content-of-" + msgID + "-" + attID), nil
}

type fakeStorage struct {
	uploads   int
	uploadErr error
}

func (f *fakeStorage) Upload(_ context.Context, _, vendor, filename string, _ []byte) (*out.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads++
	return &out.UploadResult{
		FileID:          fmt.Sprintf("file-%d", f.uploads),
		VendorFolderID:  "folder-" + vendor,
		InvoiceFolderID: "invoices-" + vendor,
		WebViewLink:     "https://drive.example/view/" + filename,
		WebContentLink:  "https://drive.example/dl/" + filename,
	}, nil
}
func (f *fakeStorage) ListVendorFolders(_ context.Context, _ string) ([]out.VendorFolder, error) {
	return nil, nil
}
func (f *fakeStorage) ListVendorInvoices(_ context.Context, _, _ string) (*out.VendorInvoiceList, error) {
	return nil, nil
}

type fakeOCR struct {
	batches []*domain.VendorBatch
	fail    bool
}

func (f *fakeOCR) Notify(_ context.Context, batch *domain.VendorBatch) domain.OCROutcome {
	f.batches = append(f.batches, batch)
	if f.fail {
		return domain.OCROutcome{VendorName: batch.VendorName, Status: "failed", Error: "upstream 500"}
	}
	return domain.OCROutcome{VendorName: batch.VendorName, Status: "accepted"}
}

// =============================================================================
// Helpers
// =============================================================================

func pdfMessage(id, from string) *out.MailMessage {
	return &out.MailMessage{
		ID:      id,
		From:    from,
		Subject: "Invoice",
		Attachments: []out.MailAttachment{
			{ID: id + "-att1", FileName: "invoice.pdf", MimeType: "application/pdf"},
		},
	}
}

func newTestService(users *fakeUserRepo, reg *fakeRegistry, mail *fakeMail, st *fakeStorage, ocr *fakeOCR) *Service {
	svc := NewService(users, reg, mail, st, ocr)
	return svc
}

func connectedUser(id string) *domain.User {
	return &domain.User{ID: id, Email: id + "@example.com", GoogleRefreshToken: "refresh-" + id}
}

// =============================================================================
// Tests
// =============================================================================

func TestFetch_FirstSync(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	reg := &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}
	mail := &fakeMail{messages: []*out.MailMessage{
		pdfMessage("m1", "billing@acme-corp.com"),
		pdfMessage("m2", "invoices@globex.io"),
	}}
	st := &fakeStorage{}
	ocr := &fakeOCR{}
	svc := newTestService(users, reg, mail, st, ocr)

	runTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return runTime }

	fromDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.Fetch(context.Background(), "u1", fromDate, domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if res.TotalProcessed != 2 {
		t.Errorf("TotalProcessed = %d, want 2", res.TotalProcessed)
	}
	if res.FilesUploaded != 2 {
		t.Errorf("FilesUploaded = %d, want 2", res.FilesUploaded)
	}
	if len(res.VendorsDetected) != 2 {
		t.Errorf("VendorsDetected = %v, want 2 distinct labels", res.VendorsDetected)
	}
	if len(res.OCRTriggers) != 2 {
		t.Errorf("OCRTriggers = %d, want one per vendor", len(res.OCRTriggers))
	}

	// First sync uses fromDate as the lower bound.
	wantPrefix := fmt.Sprintf("after:%d has:attachment filename:pdf", fromDate.Unix())
	if mail.lastQuery != wantPrefix {
		t.Errorf("query = %q, want %q", mail.lastQuery, wantPrefix)
	}

	u := users.users["u1"]
	if u.LastSyncedAt == nil || !u.LastSyncedAt.Equal(runTime) {
		t.Errorf("LastSyncedAt = %v, want %v", u.LastSyncedAt, runTime)
	}
}

func TestFetch_DedupSkipsUpload(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	reg := &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{
		regKey("u1", "m1", "m1-att1"): {
			UserID: "u1", MessageID: "m1", AttachmentID: "m1-att1",
			Vendor: "Acme-corp", FileName: "invoice.pdf",
			DriveFileID: "file-original", VendorFolderID: "folder-Acme-corp",
			WebViewLink: "https://drive.example/view/original",
		},
	}}
	mail := &fakeMail{messages: []*out.MailMessage{pdfMessage("m1", "billing@acme-corp.com")}}
	st := &fakeStorage{}
	ocr := &fakeOCR{}
	svc := newTestService(users, reg, mail, st, ocr)

	res, err := svc.Fetch(context.Background(), "u1", time.Now().Add(-24*time.Hour), domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if st.uploads != 0 {
		t.Errorf("uploads = %d, want 0 (registry hit must not re-upload)", st.uploads)
	}
	if res.FilesUploaded != 0 {
		t.Errorf("FilesUploaded = %d, want 0", res.FilesUploaded)
	}
	if len(res.UploadedFiles) != 1 || !res.UploadedFiles[0].Skipped {
		t.Fatalf("UploadedFiles = %+v, want one skipped entry", res.UploadedFiles)
	}
	if res.UploadedFiles[0].DriveFileID != "file-original" {
		t.Errorf("DriveFileID = %q, want cached id reused", res.UploadedFiles[0].DriveFileID)
	}
	if res.UploadedFiles[0].WebViewLink != "https://drive.example/view/original" {
		t.Errorf("WebViewLink = %q, want original stored link", res.UploadedFiles[0].WebViewLink)
	}

	count, _ := reg.CountByUser(context.Background(), "u1")
	if count != 1 {
		t.Errorf("registry rows = %d, want unchanged 1", count)
	}
}

func TestFetch_Idempotent(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	reg := &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}
	mail := &fakeMail{messages: []*out.MailMessage{
		pdfMessage("m1", "billing@acme-corp.com"),
		pdfMessage("m2", "invoices@globex.io"),
	}}
	st := &fakeStorage{}
	svc := newTestService(users, reg, mail, st, &fakeOCR{})

	ctx := context.Background()
	fromDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Fetch(ctx, "u1", fromDate, domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if first.FilesUploaded != 2 {
		t.Fatalf("first FilesUploaded = %d, want 2", first.FilesUploaded)
	}
	countAfterFirst, _ := reg.CountByUser(ctx, "u1")

	second, err := svc.Fetch(ctx, "u1", fromDate, domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if second.FilesUploaded != 0 {
		t.Errorf("second FilesUploaded = %d, want 0", second.FilesUploaded)
	}
	countAfterSecond, _ := reg.CountByUser(ctx, "u1")
	if countAfterFirst != countAfterSecond {
		t.Errorf("registry rows changed: %d -> %d", countAfterFirst, countAfterSecond)
	}
	if st.uploads != 2 {
		t.Errorf("total uploads = %d, want 2 (no re-upload on second run)", st.uploads)
	}
}

func TestFetch_WatermarkResolution(t *testing.T) {
	lastSynced := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	fromDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		forceSync bool
		synced    *time.Time
		wantAfter time.Time
	}{
		{"never synced uses fromDate", false, nil, fromDate},
		{"synced uses watermark", false, &lastSynced, lastSynced},
		{"forced ignores watermark", true, &lastSynced, fromDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := connectedUser("u1")
			u.LastSyncedAt = tt.synced
			users := &fakeUserRepo{users: map[string]*domain.User{"u1": u}}
			mail := &fakeMail{}
			svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, mail, &fakeStorage{}, &fakeOCR{})

			_, err := svc.Fetch(context.Background(), "u1", fromDate, domain.FetchFilters{OnlyPDF: true, ForceSync: tt.forceSync})
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}

			wantClause := fmt.Sprintf("after:%d", tt.wantAfter.Unix())
			if !strings.HasPrefix(mail.lastQuery, wantClause) {
				t.Errorf("query = %q, want prefix %q", mail.lastQuery, wantClause)
			}
		})
	}
}

func TestFetch_WatermarkAdvancesOnEmptyRun(t *testing.T) {
	u := connectedUser("u1")
	earlier := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	u.LastSyncedAt = &earlier
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": u}}
	svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, &fakeMail{}, &fakeStorage{}, &fakeOCR{})

	runTime := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return runTime }

	res, err := svc.Fetch(context.Background(), "u1", earlier, domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.TotalProcessed != 0 {
		t.Errorf("TotalProcessed = %d, want 0", res.TotalProcessed)
	}
	if u.LastSyncedAt == nil || !u.LastSyncedAt.Equal(runTime) {
		t.Errorf("LastSyncedAt = %v, want advanced to %v even with zero matches", u.LastSyncedAt, runTime)
	}
	if !u.LastSyncedAt.After(earlier) {
		t.Errorf("watermark went backwards: %v -> %v", earlier, u.LastSyncedAt)
	}
}

func TestFetch_OCRFailureDoesNotFailRun(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	mail := &fakeMail{messages: []*out.MailMessage{pdfMessage("m1", "billing@acme-corp.com")}}
	svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, mail, &fakeStorage{}, &fakeOCR{fail: true})

	res, err := svc.Fetch(context.Background(), "u1", time.Now().Add(-time.Hour), domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil despite OCR failure", err)
	}
	if res.FilesUploaded != 1 {
		t.Errorf("FilesUploaded = %d, want 1", res.FilesUploaded)
	}
	if len(res.OCRTriggers) != 1 || res.OCRTriggers[0].Status != "failed" {
		t.Fatalf("OCRTriggers = %+v, want one failed outcome", res.OCRTriggers)
	}
	if res.OCRTriggers[0].Error == "" {
		t.Error("failed outcome is missing its error detail")
	}
}

func TestFetch_UploadFailureSkipsOnlyThatAttachment(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	mail := &fakeMail{messages: []*out.MailMessage{pdfMessage("m1", "billing@acme-corp.com")}}
	st := &fakeStorage{uploadErr: errors.New("drive quota exceeded")}
	svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, mail, st, &fakeOCR{})

	runTime := time.Now()
	svc.now = func() time.Time { return runTime }

	res, err := svc.Fetch(context.Background(), "u1", runTime.Add(-time.Hour), domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want nil (per-attachment failures are absorbed)", err)
	}
	if res.FilesUploaded != 0 {
		t.Errorf("FilesUploaded = %d, want 0", res.FilesUploaded)
	}
	if len(res.UploadedFiles) != 0 {
		t.Errorf("UploadedFiles = %+v, want empty", res.UploadedFiles)
	}
	// Watermark still advances; an acknowledged policy trade-off.
	u := users.users["u1"]
	if u.LastSyncedAt == nil || !u.LastSyncedAt.Equal(runTime) {
		t.Errorf("LastSyncedAt = %v, want %v", u.LastSyncedAt, runTime)
	}
}

func TestFetch_Preconditions(t *testing.T) {
	disconnected := connectedUser("u2")
	disconnected.GoogleRefreshToken = ""
	users := &fakeUserRepo{users: map[string]*domain.User{"u2": disconnected}}
	svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, &fakeMail{}, &fakeStorage{}, &fakeOCR{})

	if _, err := svc.Fetch(context.Background(), "missing", time.Now(), domain.FetchFilters{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: err = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.Fetch(context.Background(), "u2", time.Now(), domain.FetchFilters{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected user: err = %v, want ErrNotConnected", err)
	}
}

func TestFetch_NonPDFFilteredByDefault(t *testing.T) {
	msg := &out.MailMessage{
		ID:   "m1",
		From: "billing@acme-corp.com",
		Attachments: []out.MailAttachment{
			{ID: "a1", FileName: "scan.png", MimeType: "image/png"},
			{ID: "a2", FileName: "invoice.pdf", MimeType: "application/pdf"},
		},
	}
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": connectedUser("u1")}}
	st := &fakeStorage{}
	svc := newTestService(users, &fakeRegistry{rows: map[string]*domain.ProcessedAttachment{}}, &fakeMail{messages: []*out.MailMessage{msg}}, st, &fakeOCR{})

	res, err := svc.Fetch(context.Background(), "u1", time.Now().Add(-time.Hour), domain.FetchFilters{OnlyPDF: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.FilesUploaded != 1 {
		t.Errorf("FilesUploaded = %d, want 1 (png excluded when onlyPdf)", res.FilesUploaded)
	}

	res2, err := svc.Fetch(context.Background(), "u1", time.Now().Add(-time.Hour), domain.FetchFilters{OnlyPDF: false, ForceSync: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res2.FilesUploaded != 1 {
		t.Errorf("FilesUploaded = %d, want 1 (png uploaded once onlyPdf off, pdf deduped)", res2.FilesUploaded)
	}
}

func TestBuildQuery(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch := fmt.Sprintf("%d", after.Unix())

	tests := []struct {
		name    string
		filters domain.FetchFilters
		want    string
	}{
		{
			"pdf only",
			domain.FetchFilters{OnlyPDF: true},
			"after:" + epoch + " has:attachment filename:pdf",
		},
		{
			"all types",
			domain.FetchFilters{OnlyPDF: false},
			"after:" + epoch + " has:attachment (filename:pdf OR filename:jpg OR filename:jpeg OR filename:png)",
		},
		{
			"single sender",
			domain.FetchFilters{OnlyPDF: true, Senders: []string{"a@b.com"}},
			"after:" + epoch + " has:attachment filename:pdf from:a@b.com",
		},
		{
			"multiple senders OR-combined",
			domain.FetchFilters{OnlyPDF: true, Senders: []string{"a@b.com", "c@d.com"}},
			"after:" + epoch + " has:attachment filename:pdf (from:a@b.com OR from:c@d.com)",
		},
		{
			"blank senders dropped",
			domain.FetchFilters{OnlyPDF: true, Senders: []string{" ", "a@b.com"}},
			"after:" + epoch + " has:attachment filename:pdf from:a@b.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(after, tt.filters); got != tt.want {
				t.Errorf("buildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
