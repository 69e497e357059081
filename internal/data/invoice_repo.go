package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finlens/invoice-inbox/internal/data/pgxutil"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// InvoiceRepo provides database operations for extracted invoices. Structured
// fields (extracted, normalized, attachments, suggestions) live in jsonb
// columns and round-trip through the pgx JSON codec.
type InvoiceRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewInvoiceRepo creates a new InvoiceRepo with real time provider.
func NewInvoiceRepo(db *sql.DB) *InvoiceRepo {
	return &InvoiceRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewInvoiceRepoWithTimeProvider creates a new InvoiceRepo with a custom time provider (useful for tests).
func NewInvoiceRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *InvoiceRepo {
	return &InvoiceRepo{DB: db, timeProvider: tp}
}

const invoiceColumns = `
  id,
  source_message_id,
  raw_text,
  raw_address,
  attachments,
  extracted,
  normalized,
  reconciliation_status,
  tags,
  suggestions,
  extractor_version,
  created_at,
  updated_at
`

// Create inserts a new invoice, assigning its id and timestamps in place.
func (r *InvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	if inv == nil {
		return apperrors.Validation("invoice is required")
	}
	if strings.TrimSpace(inv.SourceMessageID) == "" {
		return apperrors.ValidationField("source_message_id", "source_message_id is required")
	}
	if inv.ReconciliationStatus == "" {
		inv.ReconciliationStatus = model.ReconciliationNeedsReview
	}
	if !inv.ReconciliationStatus.Valid() {
		return apperrors.ValidationField("reconciliation_status",
			"unknown reconciliation status "+string(inv.ReconciliationStatus))
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	now := r.timeProvider.Now().UTC()
	var out model.Invoice
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO invoices (
				id, source_message_id, raw_text, raw_address, attachments,
				extracted, normalized, reconciliation_status, tags, suggestions,
				extractor_version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			RETURNING `+invoiceColumns,
			inv.ID, inv.SourceMessageID, inv.RawText, inv.RawAddress, inv.Attachments,
			inv.Extracted, inv.Normalized, inv.ReconciliationStatus, inv.Tags,
			inv.Suggestions, inv.ExtractorVersion, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Invoice])
		return err
	}); err != nil {
		return apperrors.MapDBError(err)
	}
	*inv = out
	return nil
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*model.Invoice, error) {
	return r.getByQuery(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetBySourceMessageID retrieves the invoice extracted from a message.
func (r *InvoiceRepo) GetBySourceMessageID(ctx context.Context, messageID string) (*model.Invoice, error) {
	return r.getByQuery(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE source_message_id = $1`, messageID)
}

func (r *InvoiceRepo) getByQuery(ctx context.Context, query string, args ...any) (*model.Invoice, error) {
	var out model.Invoice
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Invoice])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// ListNeedsReview returns invoices awaiting reconciliation, oldest first, so
// the periodic reconciler drains the backlog in arrival order.
func (r *InvoiceRepo) ListNeedsReview(ctx context.Context, limit int) ([]*model.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listByQuery(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE reconciliation_status = $1
		ORDER BY created_at, id LIMIT $2`,
		model.ReconciliationNeedsReview, limit)
}

// UpdateReconciliation persists the reconciliation outcome: normalized fields,
// status, and suggestions.
func (r *InvoiceRepo) UpdateReconciliation(ctx context.Context, inv *model.Invoice) error {
	if err := validateReconciliationUpdate(inv); err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return updateReconciliation(ctx, conn, inv, now)
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

func validateReconciliationUpdate(inv *model.Invoice) error {
	if inv == nil || inv.ID == "" {
		return apperrors.ValidationField("invoice_id", "invoice id is required")
	}
	if !inv.ReconciliationStatus.Valid() {
		return apperrors.ValidationField("reconciliation_status",
			"unknown reconciliation status "+string(inv.ReconciliationStatus))
	}
	return nil
}

// updateReconciliation runs the reconciliation update on a connection or an
// open transaction.
func updateReconciliation(ctx context.Context, exec pgxExec, inv *model.Invoice, now time.Time) error {
	tag, err := exec.Exec(ctx, `
		UPDATE invoices
		SET normalized = $2, reconciliation_status = $3, suggestions = $4, updated_at = $5
		WHERE id = $1`,
		inv.ID, inv.Normalized, inv.ReconciliationStatus, inv.Suggestions, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("invoice %s not found", inv.ID)
	}
	return nil
}

// SearchText finds invoices whose raw text matches the query, newest first.
func (r *InvoiceRepo) SearchText(ctx context.Context, query string, limit int) ([]*model.Invoice, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.ValidationField("query", "search query is required")
	}
	if limit <= 0 {
		limit = 50
	}
	return r.listByQuery(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE raw_text ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id LIMIT $2`,
		query, limit)
}

func (r *InvoiceRepo) listByQuery(ctx context.Context, query string, args ...any) ([]*model.Invoice, error) {
	var rowsOut []model.Invoice
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Invoice])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	res := make([]*model.Invoice, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
