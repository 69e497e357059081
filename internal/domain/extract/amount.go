package extract

import (
	"regexp"
	"strings"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// Total-amount keyword priorities. Specific totals outrank generic ones so a
// receipt's "Order Total" beats a mid-document "Subtotal".
const (
	priorityOrderTotal = 100
	priorityGrandTotal = 90
	priorityAmountDue  = 85
	priorityCharged    = 80
	priorityGeneric    = 50
	prioritySubtotal   = 30
)

var reTotalAmount = regexp.MustCompile(`(?im)(order\s+total|grand\s+total|amount\s+due|balance\s+due|charged|invoice\s+total|sub\s*total|total(?:\s+(?:amount|due))?)\s*:?\s*\$?\s*([\d,]+\.?\d*)`)

func totalPriority(keyword string) int {
	k := strings.ToLower(strings.Join(strings.Fields(keyword), " "))
	switch {
	case strings.Contains(k, "order total"):
		return priorityOrderTotal
	case strings.Contains(k, "grand total"):
		return priorityGrandTotal
	case strings.Contains(k, "amount due"), strings.Contains(k, "balance due"):
		return priorityAmountDue
	case strings.Contains(k, "charged"):
		return priorityCharged
	case strings.Contains(k, "subtotal"), strings.Contains(k, "sub total"):
		return prioritySubtotal
	default:
		return priorityGeneric
	}
}

// bestTotal scans all total-amount matches in text and keeps the highest
// priority one. First match wins among equal priorities.
func bestTotal(text string) (model.Field, bool) {
	matches := reTotalAmount.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return model.Field{}, false
	}

	bestPriority := -1
	var best model.Field
	for _, loc := range matches {
		keyword := text[loc[2]:loc[3]]
		value, err := parseAmount(text[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		priority := totalPriority(keyword)
		if priority <= bestPriority {
			continue
		}
		confidence := 0.85
		if priority >= priorityCharged {
			confidence = 0.95
		}
		bestPriority = priority
		best = model.Field{
			Value:      value,
			Confidence: confidence,
			Provenance: model.Provenance{
				Method:  "regex",
				Pattern: "total_" + strings.ToLower(strings.Join(strings.Fields(keyword), "_")),
				Snippet: snippet(text, loc[0], loc[1]),
			},
		}
	}
	if bestPriority < 0 {
		return model.Field{}, false
	}
	return best, true
}

// totalAmountExtractor proposes the highest-priority total in the whole text.
type totalAmountExtractor struct{}

func (e *totalAmountExtractor) Field() string { return "total_amount" }

func (e *totalAmountExtractor) Extract(text string) (model.Field, bool) {
	return bestTotal(text)
}

// summaryAmountExtractor re-reads the tail of the document, where the totals
// block usually sits. A definitive keyword found there is the strongest
// signal available, so it proposes with a confidence just above the labeled
// patterns and overrides an earlier whole-document match.
type summaryAmountExtractor struct{}

const summaryWindow = 2000

func (e *summaryAmountExtractor) Field() string { return "total_amount" }

func (e *summaryAmountExtractor) Extract(text string) (model.Field, bool) {
	offset := 0
	if len(text) > summaryWindow {
		offset = len(text) - summaryWindow
		text = text[offset:]
	}
	f, ok := bestTotal(text)
	if !ok || f.Confidence < 0.95 {
		return model.Field{}, false
	}
	f.Confidence = 0.96
	f.Provenance.Method = "regex_summary"
	return f, true
}
