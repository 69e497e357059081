package extract

import (
	"regexp"
	"strings"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// vendorExtractor scans the document header for a company name. Invoices put
// the issuer near the top, so only the first lines are considered.
type vendorExtractor struct{}

const vendorScanLines = 30

var (
	reVendorLabeled = regexp.MustCompile(`(?im)^\s*(?:from|vendor|supplier|billed?\s+by|sold\s+by)\s*:\s*(.+?)\s*$`)
	reCompanySuffix = regexp.MustCompile(`^([A-Z][\w&.,' -]+?\s+(?:Pvt\.?\s+Ltd\.?|Ltd\.?|Inc\.?|LLC|LLP|Corp\.?|Corporation|Company|Co\.?|GmbH|Supplies|Services|Solutions))\s*$`)
	reStandalone    = regexp.MustCompile(`^([A-Z][\w&.']*(?:\s+[A-Z][\w&.']*){1,4})$`)

	vendorSkipWords = []string{
		"invoice", "receipt", "bill", "statement", "total", "amount",
		"date", "number", "payment", "thank", "dear", "hello", "hi ",
		"order", "subject", "page",
	}
)

func (e *vendorExtractor) Field() string { return "vendor_name" }

func (e *vendorExtractor) Extract(text string) (model.Field, bool) {
	if m := reVendorLabeled.FindStringSubmatchIndex(text); m != nil {
		name := strings.TrimSpace(text[m[2]:m[3]])
		if name != "" {
			return model.Field{
				Value:      name,
				Confidence: 0.90,
				Provenance: model.Provenance{
					Method:  "regex",
					Pattern: "vendor_labeled",
					Snippet: snippet(text, m[0], m[1]),
				},
			}, true
		}
	}

	lines := strings.Split(text, "\n")
	if len(lines) > vendorScanLines {
		lines = lines[:vendorScanLines]
	}
	offset := 0
	for _, line := range lines {
		start := offset
		offset += len(line) + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || skipVendorLine(trimmed) {
			continue
		}
		for _, re := range []*regexp.Regexp{reCompanySuffix, reStandalone} {
			m := re.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			return model.Field{
				Value:      strings.TrimSpace(m[1]),
				Confidence: 0.90,
				Provenance: model.Provenance{
					Method:  "header_pattern",
					Pattern: "vendor_line",
					Snippet: snippet(text, start, start+len(line)),
				},
			}, true
		}
	}
	return model.Field{}, false
}

func skipVendorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range vendorSkipWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	// Lines like "Name: value" are metadata, not a letterhead.
	if idx := strings.Index(line, ":"); idx >= 0 && idx < 20 {
		return true
	}
	return false
}
