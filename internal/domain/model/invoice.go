package model

import (
	"encoding/json"
	"time"
)

// ReconciliationStatus describes how far an invoice has been matched against
// the registry.
type ReconciliationStatus string

const (
	// ReconciliationNeedsReview means no auto-match cleared the high threshold.
	ReconciliationNeedsReview ReconciliationStatus = "needs_review"
	// ReconciliationAutoMatched means the similarity score cleared the high threshold.
	ReconciliationAutoMatched ReconciliationStatus = "auto_matched"
	// ReconciliationManual means a human correction superseded the engine.
	ReconciliationManual ReconciliationStatus = "manual"
)

// Valid returns true if the ReconciliationStatus is valid.
func (s ReconciliationStatus) Valid() bool {
	return s == ReconciliationNeedsReview || s == ReconciliationAutoMatched ||
		s == ReconciliationManual
}

// Provenance records where an extracted value came from.
type Provenance struct {
	Method  string `json:"method"`
	Pattern string `json:"pattern,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Field is one extracted invoice field with its confidence and provenance.
type Field struct {
	Value      any        `json:"value"`
	Confidence float64    `json:"confidence"`
	Provenance Provenance `json:"provenance"`
}

// String returns the field value as a string when it is one, else "".
func (f Field) String() string {
	s, _ := f.Value.(string)
	return s
}

// Float returns the field value as a float64 when it is numeric.
func (f Field) Float() (float64, bool) {
	switch v := f.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// LineItem is one row extracted from an invoice table.
type LineItem struct {
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	Subtotal    float64 `json:"subtotal,omitempty"`
}

// Normalized holds registry-resolved and cleaned-up invoice fields. The
// reconciliation engine owns vendor/project assignment; totals and dates are
// copied from the extracted map.
type Normalized struct {
	VendorID    *int64   `json:"vendor_id,omitempty"`
	VendorName  string   `json:"vendor_name,omitempty"`
	ProjectID   *int64   `json:"project_id,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
	TotalAmount *float64 `json:"total_amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Date        string   `json:"date,omitempty"`
}

// Suggestion is one mid-band registry candidate recorded for review.
type Suggestion struct {
	Kind       RegistryKind `json:"kind"`
	RegistryID int64        `json:"registry_id"`
	Name       string       `json:"name"`
	Score      int          `json:"score"`
}

// AttachmentRef points at an attachment persisted in object storage.
type AttachmentRef struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type,omitempty"`
	Address  string `json:"address"`
}

// Invoice is the persisted record produced by one successful extraction.
type Invoice struct {
	ID                   string               `json:"invoice_id"            db:"id"`
	SourceMessageID      string               `json:"source_message_id"     db:"source_message_id"`
	RawText              string               `json:"raw_text"              db:"raw_text"`
	RawAddress           string               `json:"raw_address,omitempty" db:"raw_address"`
	Attachments          []AttachmentRef      `json:"attachments,omitempty" db:"attachments"`
	Extracted            map[string]Field     `json:"extracted"             db:"extracted"`
	Normalized           Normalized           `json:"normalized"            db:"normalized"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" db:"reconciliation_status"`
	Tags                 []string             `json:"tags,omitempty"        db:"tags"`
	Suggestions          []Suggestion         `json:"suggestions,omitempty" db:"suggestions"`
	ExtractorVersion     string               `json:"extractor_version,omitempty" db:"extractor_version"`
	CreatedAt            time.Time            `json:"created_at"            db:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"            db:"updated_at"`
}

// ExtractedString returns the string value of a field in the extracted map.
func (i *Invoice) ExtractedString(name string) string {
	f, ok := i.Extracted[name]
	if !ok {
		return ""
	}
	return f.String()
}

// MeanConfidence averages the confidence of all extracted fields; 0.5 when
// nothing was extracted, matching the extractor's neutral prior.
func (i *Invoice) MeanConfidence() float64 {
	if len(i.Extracted) == 0 {
		return 0.5
	}
	var sum float64
	for _, f := range i.Extracted {
		sum += f.Confidence
	}
	return sum / float64(len(i.Extracted))
}

// Summary builds the result payload entry for this invoice.
func (i *Invoice) Summary() InvoiceSummary {
	s := InvoiceSummary{
		Vendor:     i.Normalized.VendorName,
		Date:       i.Normalized.Date,
		Currency:   i.Normalized.Currency,
		Confidence: i.MeanConfidence(),
	}
	if s.Vendor == "" {
		s.Vendor = i.ExtractedString("vendor_name")
	}
	if s.Date == "" {
		s.Date = i.ExtractedString("date")
	}
	if s.Currency == "" {
		s.Currency = i.ExtractedString("currency")
	}
	if i.Normalized.TotalAmount != nil {
		s.TotalAmount = *i.Normalized.TotalAmount
	} else if f, ok := i.Extracted["total_amount"]; ok {
		if v, isNum := f.Float(); isNum {
			s.TotalAmount = v
		}
	}
	return s
}

// MarshalExtracted serializes the extracted map for JSONB storage.
func (i *Invoice) MarshalExtracted() (json.RawMessage, error) {
	if i.Extracted == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(i.Extracted)
}
