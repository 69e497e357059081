package data

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/finlens/invoice-inbox/internal/data/pgxutil"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// pgxExec is the statement surface shared by *pgx.Conn and pgx.Tx, so the
// same SQL helpers serve single statements and transactions.
type pgxExec interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// CorrectionStore persists a manual field correction and its audit record in
// one transaction. The invoice update and the audit append commit together or
// not at all.
type CorrectionStore struct {
	invoices *InvoiceRepo
	audit    *AuditRepo
}

// NewCorrectionStore creates a CorrectionStore over the two repositories. Both
// must share the same database pool.
func NewCorrectionStore(invoices *InvoiceRepo, audit *AuditRepo) *CorrectionStore {
	return &CorrectionStore{invoices: invoices, audit: audit}
}

// SaveCorrection writes the corrected invoice and appends the audit record
// within a single transaction.
func (s *CorrectionStore) SaveCorrection(ctx context.Context, inv *model.Invoice, rec *model.AuditRecord) error {
	if err := validateReconciliationUpdate(inv); err != nil {
		return err
	}
	if err := s.audit.prepareRecord(rec); err != nil {
		return err
	}

	now := s.invoices.timeProvider.Now().UTC()
	err := pgxutil.WithPgxTx(ctx, s.invoices.DB, func(tx pgx.Tx) error {
		if err := updateReconciliation(ctx, tx, inv, now); err != nil {
			return err
		}
		return insertAuditRecord(ctx, tx, rec)
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return err
		}
		return apperrors.MapDBError(err)
	}
	inv.UpdatedAt = now
	return nil
}
