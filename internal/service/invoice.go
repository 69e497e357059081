package service

import (
	"context"
	"fmt"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// InvoiceService exposes read access to extracted invoices and their audit
// history.
type InvoiceService struct {
	invoices core.InvoiceRepository
	audit    core.AuditRepository
}

// NewInvoiceService constructs a new InvoiceService.
func NewInvoiceService(invoices core.InvoiceRepository, audit core.AuditRepository) *InvoiceService {
	return &InvoiceService{invoices: invoices, audit: audit}
}

// Get returns an invoice by id.
func (s *InvoiceService) Get(ctx context.Context, id string) (*model.Invoice, error) {
	if id == "" {
		return nil, apperrors.ValidationField("invoice_id", "invoice_id is required")
	}
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return inv, nil
}

// GetByMessage returns the invoice extracted from a source message.
func (s *InvoiceService) GetByMessage(ctx context.Context, messageID string) (*model.Invoice, error) {
	if messageID == "" {
		return nil, apperrors.ValidationField("message_id", "message_id is required")
	}
	inv, err := s.invoices.GetBySourceMessageID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get invoice for message %s: %w", messageID, err)
	}
	return inv, nil
}

// Search finds invoices by raw text match.
func (s *InvoiceService) Search(ctx context.Context, query string, limit int) ([]*model.Invoice, error) {
	return s.invoices.SearchText(ctx, query, limit)
}

// History returns the manual correction log for an invoice.
func (s *InvoiceService) History(ctx context.Context, invoiceID string) ([]*model.AuditRecord, error) {
	if invoiceID == "" {
		return nil, apperrors.ValidationField("invoice_id", "invoice_id is required")
	}
	recs, err := s.audit.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list audit for invoice %s: %w", invoiceID, err)
	}
	return recs, nil
}
