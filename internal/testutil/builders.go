package testutil

import (
	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// NewRegistryEntry builds an unsaved registry entry fixture.
func NewRegistryEntry(kind model.RegistryKind, name string, aliases ...string) *model.RegistryEntry {
	return &model.RegistryEntry{
		Kind:          kind,
		CanonicalName: name,
		Aliases:       aliases,
	}
}

// NewInvoice builds an unsaved invoice fixture with a minimal extracted map.
func NewInvoice(messageID, vendorName string) *model.Invoice {
	inv := &model.Invoice{
		SourceMessageID:      messageID,
		RawText:              "Invoice from " + vendorName,
		ReconciliationStatus: model.ReconciliationNeedsReview,
		Extracted:            map[string]model.Field{},
	}
	if vendorName != "" {
		inv.Extracted["vendor_name"] = model.Field{
			Value:      vendorName,
			Confidence: 0.9,
			Provenance: model.Provenance{Method: "header_pattern"},
		}
	}
	return inv
}
