package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/match"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// ReconcileServiceOptions groups dependencies for ReconcileService.
type ReconcileServiceOptions struct {
	Invoices core.InvoiceRepository
	Registry core.RegistryRepository
	// Corrections applies a manual correction and its audit record as one
	// atomic write. Required for ApplyCorrection.
	Corrections core.CorrectionStore
	Logger      *slog.Logger
}

// ReconcileService matches extracted vendor and project names against the
// registries and applies the threshold bands: >= 90 assigns automatically,
// 60-89 records suggestions for review, below 60 leaves the invoice untouched.
type ReconcileService struct {
	invoices    core.InvoiceRepository
	registry    core.RegistryRepository
	corrections core.CorrectionStore
	logger      *slog.Logger
}

// NewReconcileService constructs a new ReconcileService.
func NewReconcileService(opts ReconcileServiceOptions) *ReconcileService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		invoices:    opts.Invoices,
		registry:    opts.Registry,
		corrections: opts.Corrections,
		logger:      logger,
	}
}

// Reconcile matches inv against the registries, fills normalized fields, and
// persists the outcome. Manually reconciled invoices are never touched.
func (s *ReconcileService) Reconcile(ctx context.Context, inv *model.Invoice) error {
	if inv == nil || inv.ID == "" {
		return apperrors.ValidationField("invoice_id", "invoice id is required")
	}
	if inv.ReconciliationStatus == model.ReconciliationManual {
		return nil
	}

	s.copyExtractedTotals(inv)

	status := model.ReconciliationNeedsReview
	var suggestions []model.Suggestion

	vendorOutcome, err := s.matchKind(ctx, model.RegistryVendor, inv.ExtractedString("vendor_name"))
	if err != nil {
		return err
	}
	if vendorOutcome.matched != nil {
		inv.Normalized.VendorID = &vendorOutcome.matched.ID
		inv.Normalized.VendorName = vendorOutcome.matched.CanonicalName
		status = model.ReconciliationAutoMatched
	}
	suggestions = append(suggestions, vendorOutcome.suggestions...)

	projectOutcome, err := s.matchKind(ctx, model.RegistryProject, inv.ExtractedString("project_name"))
	if err != nil {
		return err
	}
	if projectOutcome.matched != nil {
		inv.Normalized.ProjectID = &projectOutcome.matched.ID
		inv.Normalized.ProjectName = projectOutcome.matched.CanonicalName
	}
	suggestions = append(suggestions, projectOutcome.suggestions...)

	// An open vendor suggestion keeps the invoice in review even when the
	// project side auto-matched.
	if len(vendorOutcome.suggestions) > 0 {
		status = model.ReconciliationNeedsReview
	}
	inv.ReconciliationStatus = status
	inv.Suggestions = suggestions

	if err := s.invoices.UpdateReconciliation(ctx, inv); err != nil {
		return fmt.Errorf("persist reconciliation for invoice %s: %w", inv.ID, err)
	}
	s.logger.InfoContext(ctx, "reconciled invoice",
		"invoice_id", inv.ID,
		"status", inv.ReconciliationStatus,
		"suggestions", len(suggestions))
	return nil
}

// matchOutcome is the result of matching one name against one registry kind.
type matchOutcome struct {
	matched     *model.RegistryEntry
	suggestions []model.Suggestion
}

func (s *ReconcileService) matchKind(ctx context.Context, kind model.RegistryKind, name string) (matchOutcome, error) {
	if strings.TrimSpace(name) == "" {
		return matchOutcome{}, nil
	}

	entries, err := s.registry.ListByKind(ctx, kind)
	if err != nil {
		return matchOutcome{}, fmt.Errorf("list %s registry: %w", kind, err)
	}
	if len(entries) == 0 {
		return matchOutcome{}, nil
	}

	best, band := match.Best(name, entries)
	if best.Entry != nil && best.Score >= match.AutoMatchThreshold {
		return matchOutcome{matched: best.Entry}, nil
	}

	out := matchOutcome{}
	for _, c := range band {
		out.suggestions = append(out.suggestions, model.Suggestion{
			Kind:       kind,
			RegistryID: c.Entry.ID,
			Name:       c.Entry.CanonicalName,
			Score:      c.Score,
		})
	}
	return out, nil
}

// copyExtractedTotals copies total, currency, and date from the extracted map
// into the normalized record when the engine has not filled them yet.
func (s *ReconcileService) copyExtractedTotals(inv *model.Invoice) {
	if inv.Normalized.TotalAmount == nil {
		if f, ok := inv.Extracted["total_amount"]; ok {
			if v, isNum := f.Float(); isNum {
				inv.Normalized.TotalAmount = &v
			}
		}
	}
	if inv.Normalized.Currency == "" {
		inv.Normalized.Currency = inv.ExtractedString("currency")
	}
	if inv.Normalized.Date == "" {
		inv.Normalized.Date = inv.ExtractedString("date")
	}
}

// ReconcilePending reconciles up to batchSize invoices awaiting review and
// returns how many were auto-matched. The periodic reconciler calls this so
// registry additions retroactively resolve old invoices.
func (s *ReconcileService) ReconcilePending(ctx context.Context, batchSize int) (int, error) {
	pending, err := s.invoices.ListNeedsReview(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending invoices: %w", err)
	}

	matched := 0
	for _, inv := range pending {
		if err := s.Reconcile(ctx, inv); err != nil {
			return matched, err
		}
		if inv.ReconciliationStatus == model.ReconciliationAutoMatched {
			matched++
		}
	}
	return matched, nil
}

// Correction is one manual field correction.
type Correction struct {
	InvoiceID string `json:"invoice_id"`
	FieldName string `json:"field_name"`
	NewValue  string `json:"new_value"`
	Actor     string `json:"actor"`
}

// ApplyCorrection overrides a normalized field by hand. The invoice moves to
// manual reconciliation and the change lands in the audit log.
func (s *ReconcileService) ApplyCorrection(ctx context.Context, c Correction) (*model.Invoice, error) {
	if c.InvoiceID == "" {
		return nil, apperrors.ValidationField("invoice_id", "invoice_id is required")
	}

	inv, err := s.invoices.GetByID(ctx, c.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", c.InvoiceID, err)
	}

	oldValue, err := applyNormalizedField(inv, c.FieldName, c.NewValue)
	if err != nil {
		return nil, err
	}

	inv.ReconciliationStatus = model.ReconciliationManual
	inv.Suggestions = nil

	// One transactional write: the corrected invoice must never land without
	// its audit record.
	rec := &model.AuditRecord{
		InvoiceID: inv.ID,
		FieldName: c.FieldName,
		OldValue:  oldValue,
		NewValue:  c.NewValue,
		Actor:     c.Actor,
	}
	if err := s.corrections.SaveCorrection(ctx, inv, rec); err != nil {
		return nil, fmt.Errorf("persist correction for invoice %s: %w", inv.ID, err)
	}
	return inv, nil
}

// applyNormalizedField sets a correctable normalized field and returns the
// previous value.
func applyNormalizedField(inv *model.Invoice, field, value string) (string, error) {
	switch field {
	case "vendor_name":
		old := inv.Normalized.VendorName
		inv.Normalized.VendorName = value
		inv.Normalized.VendorID = nil
		return old, nil
	case "project_name":
		old := inv.Normalized.ProjectName
		inv.Normalized.ProjectName = value
		inv.Normalized.ProjectID = nil
		return old, nil
	case "currency":
		old := inv.Normalized.Currency
		inv.Normalized.Currency = value
		return old, nil
	case "date":
		old := inv.Normalized.Date
		inv.Normalized.Date = value
		return old, nil
	default:
		return "", apperrors.ValidationField("field_name",
			fmt.Sprintf("field %q cannot be corrected", field))
	}
}
