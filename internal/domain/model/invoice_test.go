package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoice_MeanConfidence(t *testing.T) {
	t.Run("neutral prior when nothing extracted", func(t *testing.T) {
		inv := &Invoice{}
		assert.InDelta(t, 0.5, inv.MeanConfidence(), 1e-9)
	})

	t.Run("averages field confidences", func(t *testing.T) {
		inv := &Invoice{Extracted: map[string]Field{
			"invoice_number": {Value: "INV-1", Confidence: 0.95},
			"total_amount":   {Value: 100.0, Confidence: 0.85},
		}}
		assert.InDelta(t, 0.9, inv.MeanConfidence(), 1e-9)
	})
}

func TestInvoice_Summary(t *testing.T) {
	amount := 11210.0
	inv := &Invoice{
		Extracted: map[string]Field{
			"vendor_name":  {Value: "ACME Supplies", Confidence: 0.9},
			"date":         {Value: "06/15/2025", Confidence: 0.85},
			"total_amount": {Value: 11210.0, Confidence: 0.95},
		},
		Normalized: Normalized{VendorName: "ACME Supplies Pvt Ltd", TotalAmount: &amount, Currency: "USD"},
	}

	s := inv.Summary()
	assert.Equal(t, "ACME Supplies Pvt Ltd", s.Vendor, "normalized vendor wins over extracted")
	assert.Equal(t, "06/15/2025", s.Date, "falls back to extracted date")
	assert.Equal(t, "USD", s.Currency)
	assert.InDelta(t, 11210.0, s.TotalAmount, 1e-9)
	assert.InDelta(t, 0.9, s.Confidence, 1e-9)
}

func TestInvoice_Summary_FallsBackToExtractedAmount(t *testing.T) {
	inv := &Invoice{
		Extracted: map[string]Field{
			"total_amount": {Value: 42.5, Confidence: 0.85},
		},
	}
	s := inv.Summary()
	assert.InDelta(t, 42.5, s.TotalAmount, 1e-9)
}

func TestRegistryEntry_Names(t *testing.T) {
	e := &RegistryEntry{CanonicalName: "ACME Supplies Pvt Ltd", Aliases: []string{"ACME Supplies", "ACME"}}
	assert.Equal(t, []string{"ACME Supplies Pvt Ltd", "ACME Supplies", "ACME"}, e.Names())

	noAlias := &RegistryEntry{CanonicalName: "Globex"}
	assert.Equal(t, []string{"Globex"}, noAlias.Names())
}
