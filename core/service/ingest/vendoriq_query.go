package ingest

import (
	"fmt"
	"strings"
	"time"

	"vendoriq_server/core/domain"
)

// pdfOnlyFilter matches PDF attachments; allTypesFilter widens the search to
// the image types the storage layer understands.
const (
	pdfOnlyFilter  = "filename:pdf"
	allTypesFilter = "(filename:pdf OR filename:jpg OR filename:jpeg OR filename:png)"
)

// buildQuery assembles the provider search string:
// `after:<epoch> has:attachment` plus the attachment-type filter plus an
// OR-group of from: clauses when specific senders are requested.
func buildQuery(after time.Time, filters domain.FetchFilters) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "after:%d has:attachment", after.Unix())

	if filters.OnlyPDF {
		sb.WriteString(" " + pdfOnlyFilter)
	} else {
		sb.WriteString(" " + allTypesFilter)
	}

	if len(filters.Senders) > 0 {
		clauses := make([]string, 0, len(filters.Senders))
		for _, s := range filters.Senders {
			s = strings.TrimSpace(s)
			if s != "" {
				clauses = append(clauses, "from:"+s)
			}
		}
		if len(clauses) == 1 {
			sb.WriteString(" " + clauses[0])
		} else if len(clauses) > 1 {
			sb.WriteString(" (" + strings.Join(clauses, " OR ") + ")")
		}
	}

	return sb.String()
}

// allowedAttachment reports whether the filename carries an extension the
// run accepts.
func allowedAttachment(filename string, onlyPDF bool) bool {
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".pdf") {
		return true
	}
	if onlyPDF {
		return false
	}
	return strings.HasSuffix(name, ".jpg") ||
		strings.HasSuffix(name, ".jpeg") ||
		strings.HasSuffix(name, ".png")
}
