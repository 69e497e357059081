package data

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finlens/invoice-inbox/internal/data/pgxutil"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// AuditRepo appends and lists manual correction records. There is no update
// or delete; the table is append only.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

const auditColumns = `
  id,
  invoice_id,
  field_name,
  old_value,
  new_value,
  actor,
  changed_at
`

// Append records one manual field correction, assigning id and changed_at in
// place when unset.
func (r *AuditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	if err := r.prepareRecord(rec); err != nil {
		return err
	}

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return insertAuditRecord(ctx, conn, rec)
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// prepareRecord validates the record and assigns id and changed_at in place
// when unset.
func (r *AuditRepo) prepareRecord(rec *model.AuditRecord) error {
	if rec == nil {
		return apperrors.Validation("audit record is required")
	}
	if strings.TrimSpace(rec.InvoiceID) == "" {
		return apperrors.ValidationField("invoice_id", "invoice_id is required")
	}
	if strings.TrimSpace(rec.FieldName) == "" {
		return apperrors.ValidationField("field_name", "field_name is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ChangedAt.IsZero() {
		rec.ChangedAt = r.timeProvider.Now().UTC()
	}
	return nil
}

// insertAuditRecord runs the insert on a connection or an open transaction.
func insertAuditRecord(ctx context.Context, exec pgxExec, rec *model.AuditRecord) error {
	_, err := exec.Exec(ctx, `
		INSERT INTO invoice_audit (id, invoice_id, field_name, old_value, new_value, actor, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.InvoiceID, rec.FieldName, rec.OldValue, rec.NewValue, rec.Actor, rec.ChangedAt)
	return err
}

// ListByInvoice returns the correction history for an invoice in change order.
func (r *AuditRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*model.AuditRecord, error) {
	var rowsOut []model.AuditRecord
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT `+auditColumns+` FROM invoice_audit WHERE invoice_id = $1 ORDER BY changed_at, id`,
			invoiceID)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AuditRecord])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	res := make([]*model.AuditRecord, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
