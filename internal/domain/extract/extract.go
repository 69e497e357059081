// Package extract implements the ordered field extractors run over combined
// message text. Extractors are a fixed list defined at build time; when two
// extractors propose a value for the same field the higher confidence wins and
// ties resolve to the earlier extractor in the list, keeping results
// deterministic.
package extract

import (
	"strings"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// Version stamps invoices with the extractor revision that produced them.
const Version = "regex-v1"

// Extractor proposes a value for a single invoice field from raw text.
// Implementations are pure functions of the text.
type Extractor interface {
	// Field names the invoice field this extractor proposes.
	Field() string
	// Extract returns the proposed field and true, or false when the text
	// contains no usable value.
	Extract(text string) (model.Field, bool)
}

// Extractors returns the fixed extraction order. Earlier entries win
// confidence ties for the same field.
func Extractors() []Extractor {
	return []Extractor{
		&invoiceNumberExtractor{},
		&dateExtractor{},
		&vendorExtractor{},
		&totalAmountExtractor{},
		&summaryAmountExtractor{},
		&currencyExtractor{},
		&subtotalExtractor{},
		&taxExtractor{},
		&lineItemsExtractor{},
	}
}

// Run executes the extractors in order and assembles the extracted field map.
func Run(text string, extractors []Extractor) map[string]model.Field {
	out := make(map[string]model.Field)
	for _, ex := range extractors {
		field, ok := ex.Extract(text)
		if !ok {
			continue
		}
		prev, exists := out[ex.Field()]
		if exists && prev.Confidence >= field.Confidence {
			continue
		}
		out[ex.Field()] = field
	}
	return out
}

// snippet returns up to 50 characters of context on each side of [start,end).
func snippet(text string, start, end int) string {
	s := start - 50
	if s < 0 {
		s = 0
	}
	e := end + 50
	if e > len(text) {
		e = len(text)
	}
	return strings.TrimSpace(text[s:e])
}
