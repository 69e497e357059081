package data

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/finlens/invoice-inbox/internal/data/pgxutil"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// RegistryRepo provides read access to the vendor and project registries.
// Entries are maintained out of band; the pipeline only lists them for
// matching and creates entries in tests and seeds.
type RegistryRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRegistryRepo creates a new RegistryRepo.
func NewRegistryRepo(db *sql.DB) *RegistryRepo {
	return &RegistryRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

const registryColumns = `
  id,
  kind,
  canonical_name,
  aliases,
  metadata,
  created_at
`

// ListByKind returns all registry entries of a kind ordered by id, so matchers
// see a stable order and ties resolve to the oldest entry.
func (r *RegistryRepo) ListByKind(ctx context.Context, kind model.RegistryKind) ([]*model.RegistryEntry, error) {
	if !kind.Valid() {
		return nil, apperrors.ValidationField("kind", "unknown registry kind "+string(kind))
	}

	var rowsOut []model.RegistryEntry
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT `+registryColumns+` FROM registry_entries WHERE kind = $1 ORDER BY id`,
			kind)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.RegistryEntry])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	res := make([]*model.RegistryEntry, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Create inserts a registry entry and returns it with its assigned id.
func (r *RegistryRepo) Create(ctx context.Context, entry *model.RegistryEntry) (*model.RegistryEntry, error) {
	if entry == nil {
		return nil, apperrors.Validation("registry entry is required")
	}
	if !entry.Kind.Valid() {
		return nil, apperrors.ValidationField("kind", "unknown registry kind "+string(entry.Kind))
	}
	if strings.TrimSpace(entry.CanonicalName) == "" {
		return nil, apperrors.ValidationField("canonical_name", "canonical_name is required")
	}

	metadata := entry.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	now := r.timeProvider.Now().UTC()
	var out model.RegistryEntry
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO registry_entries (kind, canonical_name, aliases, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+registryColumns,
			entry.Kind, strings.TrimSpace(entry.CanonicalName), entry.Aliases, metadata, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.RegistryEntry])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}
