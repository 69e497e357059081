package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// labeledPattern pairs a compiled regex with the confidence it earns. Patterns
// carrying an explicit field label score higher than generic fallbacks.
type labeledPattern struct {
	name       string
	re         *regexp.Regexp
	confidence float64
}

func (p labeledPattern) field(text string, method string) (model.Field, bool) {
	loc := p.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return model.Field{}, false
	}
	start, end := loc[2], loc[3]
	if start < 0 {
		start, end = loc[0], loc[1]
	}
	return model.Field{
		Value:      text[start:end],
		Confidence: p.confidence,
		Provenance: model.Provenance{
			Method:  method,
			Pattern: p.name,
			Snippet: snippet(text, loc[0], loc[1]),
		},
	}, true
}

// invoiceNumberExtractor matches labeled invoice/bill numbers first, falling
// back to order and receipt references.
type invoiceNumberExtractor struct{}

var invoiceNumberPatterns = []labeledPattern{
	{"invoice_labeled", regexp.MustCompile(`(?im)invoice\s*(?:no|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9\-]{2,})`), 0.95},
	{"bill_labeled", regexp.MustCompile(`(?im)bill\s*(?:no|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9\-]{2,})`), 0.95},
	{"inv_abbrev", regexp.MustCompile(`(?im)\binv\s*(?:no|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9\-]{2,})`), 0.9},
	{"order_labeled", regexp.MustCompile(`(?im)order\s*(?:no|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9\-]{2,})`), 0.85},
	{"receipt_labeled", regexp.MustCompile(`(?im)receipt\s*(?:no|number|#)?\s*:?\s*([A-Z0-9][A-Z0-9\-]{2,})`), 0.85},
}

func (e *invoiceNumberExtractor) Field() string { return "invoice_number" }

func (e *invoiceNumberExtractor) Extract(text string) (model.Field, bool) {
	for _, p := range invoiceNumberPatterns {
		if f, ok := p.field(text, "regex"); ok {
			return f, true
		}
	}
	return model.Field{}, false
}

// dateExtractor prefers dates labeled as invoice dates over bare dates.
type dateExtractor struct{}

var datePatterns = []labeledPattern{
	{"invoice_date_labeled", regexp.MustCompile(`(?im)invoice\s+date\s*:?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`), 0.9},
	{"date_labeled", regexp.MustCompile(`(?im)date\s*:?\s*(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`), 0.85},
	{"bare_date", regexp.MustCompile(`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`), 0.7},
}

func (e *dateExtractor) Field() string { return "date" }

func (e *dateExtractor) Extract(text string) (model.Field, bool) {
	for _, p := range datePatterns {
		if f, ok := p.field(text, "regex"); ok {
			return f, true
		}
	}
	return model.Field{}, false
}

// currencyExtractor finds an ISO code next to an amount or maps a currency
// symbol to its code.
type currencyExtractor struct{}

var (
	reCurrencyCode   = regexp.MustCompile(`\b(USD|EUR|GBP|INR|CAD|AUD|JPY)\b\s*[\d$]`)
	reCurrencySymbol = regexp.MustCompile(`[$€£₹]`)
	symbolCodes      = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "₹": "INR"}
)

func (e *currencyExtractor) Field() string { return "currency" }

func (e *currencyExtractor) Extract(text string) (model.Field, bool) {
	if loc := reCurrencyCode.FindStringSubmatchIndex(text); loc != nil {
		return model.Field{
			Value:      text[loc[2]:loc[3]],
			Confidence: 0.85,
			Provenance: model.Provenance{Method: "regex", Pattern: "iso_code", Snippet: snippet(text, loc[0], loc[1])},
		}, true
	}
	if loc := reCurrencySymbol.FindStringIndex(text); loc != nil {
		return model.Field{
			Value:      symbolCodes[text[loc[0]:loc[1]]],
			Confidence: 0.75,
			Provenance: model.Provenance{Method: "regex", Pattern: "symbol", Snippet: snippet(text, loc[0], loc[1])},
		}, true
	}
	return model.Field{}, false
}

// subtotalExtractor and taxExtractor capture the secondary amount fields.
type subtotalExtractor struct{}

var subtotalPatterns = []labeledPattern{
	{"subtotal", regexp.MustCompile(`(?im)sub\s*total\s*:?\s*\$?\s*([\d,]+\.?\d*)`), 0.85},
}

func (e *subtotalExtractor) Field() string { return "subtotal" }

func (e *subtotalExtractor) Extract(text string) (model.Field, bool) {
	return amountField(text, subtotalPatterns)
}

type taxExtractor struct{}

var taxPatterns = []labeledPattern{
	{"sales_tax", regexp.MustCompile(`(?im)sales\s+tax\s*:?\s*\$?\s*([\d,]+\.?\d*)`), 0.85},
	{"tax", regexp.MustCompile(`(?im)\btax(?:\s+amount)?\s*:?\s*\$?\s*([\d,]+\.?\d*)`), 0.8},
}

func (e *taxExtractor) Field() string { return "tax" }

func (e *taxExtractor) Extract(text string) (model.Field, bool) {
	return amountField(text, taxPatterns)
}

// amountField extracts the first numeric match of the given patterns.
func amountField(text string, patterns []labeledPattern) (model.Field, bool) {
	for _, p := range patterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		v, err := parseAmount(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		return model.Field{
			Value:      v,
			Confidence: p.confidence,
			Provenance: model.Provenance{Method: "regex", Pattern: p.name, Snippet: snippet(text, loc[0], loc[1])},
		}, true
	}
	return model.Field{}, false
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
