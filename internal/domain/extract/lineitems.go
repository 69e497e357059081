package extract

import (
	"regexp"
	"strings"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// lineItemsExtractor pulls tabular "qty description amount" rows. Layouts
// vary wildly, so this is best-effort and carries a lower confidence.
type lineItemsExtractor struct{}

var (
	reItemQty    = regexp.MustCompile(`^\s*(\d{1,4})\s+(.{3,80}?)\s+\$?\s*([\d,]+\.\d{2})\s*$`)
	reItemNoQty  = regexp.MustCompile(`^\s*(.{3,80}?)\s{2,}\$?\s*([\d,]+\.\d{2})\s*$`)
	reItemFilter = regexp.MustCompile(`(?i)^(sub\s*total|total|tax|vat|gst|shipping|discount|balance|amount\s+due|grand\s+total)`)
)

func (e *lineItemsExtractor) Field() string { return "line_items" }

func (e *lineItemsExtractor) Extract(text string) (model.Field, bool) {
	var items []model.LineItem
	var firstStart, lastEnd int
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		start := offset
		offset += len(line) + 1

		var item model.LineItem
		if m := reItemQty.FindStringSubmatch(line); m != nil {
			amount, err := parseAmount(m[3])
			if err != nil {
				continue
			}
			qty, err := parseAmount(m[1])
			if err != nil || qty == 0 {
				qty = 1
			}
			item = model.LineItem{
				Description: strings.TrimSpace(m[2]),
				Quantity:    qty,
				UnitPrice:   amount / qty,
				Subtotal:    amount,
			}
		} else if m := reItemNoQty.FindStringSubmatch(line); m != nil {
			amount, err := parseAmount(m[2])
			if err != nil {
				continue
			}
			item = model.LineItem{
				Description: strings.TrimSpace(m[1]),
				Quantity:    1,
				UnitPrice:   amount,
				Subtotal:    amount,
			}
		} else {
			continue
		}
		if reItemFilter.MatchString(item.Description) {
			continue
		}
		if len(items) == 0 {
			firstStart = start
		}
		lastEnd = start + len(line)
		items = append(items, item)
	}
	if len(items) == 0 {
		return model.Field{}, false
	}
	return model.Field{
		Value:      items,
		Confidence: 0.8,
		Provenance: model.Provenance{
			Method:  "line_scan",
			Pattern: "line_items",
			Snippet: snippet(text, firstStart, lastEnd),
		},
	}, true
}
