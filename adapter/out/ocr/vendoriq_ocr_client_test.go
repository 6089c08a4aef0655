package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"vendoriq_server/core/domain"
)

func testBatch() *domain.VendorBatch {
	return &domain.VendorBatch{
		UserID:          "u1",
		VendorName:      "Acme-corp",
		VendorFolderID:  "folder-1",
		InvoiceFolderID: "invoices-1",
		RefreshToken:    "rt",
		Invoices: []domain.InvoiceFile{
			{FileID: "f1", FileName: "invoice.pdf", MimeType: "application/pdf", WebViewLink: "https://drive/view/f1"},
		},
	}
}

func TestNotify_Accepted(t *testing.T) {
	var gotPath, gotToken string
	var gotPayload triggerPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Service-Token")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", 5*time.Second)
	outcome := client.Notify(context.Background(), testBatch())

	// The service's status body is recorded verbatim as the outcome status.
	if outcome.Status != `{"status":"queued"}` {
		t.Fatalf("status = %q (err %q), want the response body", outcome.Status, outcome.Error)
	}
	if outcome.VendorName != "Acme-corp" {
		t.Errorf("vendor = %q", outcome.VendorName)
	}
	if gotPath != "/api/v1/processing/vendor" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "secret-token" {
		t.Errorf("service token = %q", gotToken)
	}
	if gotPayload.UserID != "u1" || gotPayload.VendorName != "Acme-corp" || len(gotPayload.Invoices) != 1 {
		t.Errorf("payload = %+v", gotPayload)
	}
	if gotPayload.Invoices[0].FileID != "f1" {
		t.Errorf("invoice payload = %+v", gotPayload.Invoices[0])
	}
}

func TestNotify_EmptyBodyDefaultsToAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	outcome := client.Notify(context.Background(), testBatch())

	if outcome.Status != "accepted" {
		t.Fatalf("status = %q, want accepted for an empty 2xx body", outcome.Status)
	}
}

func TestNotify_ServerErrorIsFailedOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "extraction backlog full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	outcome := client.Notify(context.Background(), testBatch())

	if outcome.Status != "failed" {
		t.Fatalf("status = %q, want failed", outcome.Status)
	}
	if !strings.Contains(outcome.Error, "500") {
		t.Errorf("error = %q, want status code surfaced", outcome.Error)
	}
}

func TestNotify_UnreachableServiceIsFailedOutcome(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", 500*time.Millisecond)
	outcome := client.Notify(context.Background(), testBatch())

	if outcome.Status != "failed" {
		t.Fatalf("status = %q, want failed", outcome.Status)
	}
	if outcome.Error == "" {
		t.Error("failed outcome missing error detail")
	}
}

func TestNotify_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)

	for i := 0; i < 7; i++ {
		client.Notify(context.Background(), testBatch())
	}

	// The breaker is open by now: the outcome still reads as failed, but
	// without hitting the server.
	outcome := client.Notify(context.Background(), testBatch())
	if outcome.Status != "failed" {
		t.Fatalf("status = %q, want failed while breaker open", outcome.Status)
	}
	if !strings.Contains(outcome.Error, "circuit breaker is open") {
		t.Errorf("error = %q, want open-circuit rejection", outcome.Error)
	}
}
