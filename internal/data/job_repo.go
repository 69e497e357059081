package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finlens/invoice-inbox/internal/data/pgxutil"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// JobRepo provides database operations for processing jobs. Status changes go
// through guarded updates so the queued → processing → {success|failed} state
// machine holds even with concurrent workers.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobRepo creates a new JobRepo with real time provider.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobRepoWithTimeProvider creates a new JobRepo with a custom time provider (useful for tests).
func NewJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobRepo {
	return &JobRepo{DB: db, timeProvider: tp}
}

const jobColumns = `
  id,
  message_id,
  status,
  progress,
  queued_at,
  started_at,
  finished_at,
  result,
  error_message,
  created_at,
  updated_at
`

// Create inserts a new queued job for a message id.
func (r *JobRepo) Create(ctx context.Context, messageID string) (*model.Job, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, apperrors.ValidationField("message_id", "message_id is required")
	}

	now := r.timeProvider.Now().UTC()
	var out model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO processing_jobs (id, message_id, status, progress, queued_at, created_at, updated_at)
			VALUES ($1, $2, $3, 0, $4, $4, $4)
			RETURNING `+jobColumns,
			uuid.NewString(), messageID, model.JobStatusQueued, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByID retrieves a job by ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	return r.getByQuery(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id)
}

// FindSuccessByMessageID returns the successful job for a message id. At most
// one exists; a partial unique index enforces it.
func (r *JobRepo) FindSuccessByMessageID(ctx context.Context, messageID string) (*model.Job, error) {
	return r.getByQuery(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE message_id = $1 AND status = $2`,
		messageID, model.JobStatusSuccess)
}

func (r *JobRepo) getByQuery(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var out model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// MarkProcessing transitions a queued job to processing and stamps started_at.
func (r *JobRepo) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, transitionParams{
		id:   id,
		from: []model.JobStatus{model.JobStatusQueued},
		to:   model.JobStatusProcessing,
		set:  `status = $2, started_at = $3, updated_at = $3`,
		args: []any{model.JobStatusProcessing, now},
	})
}

// MarkSucceeded transitions a processing job to success with its result
// payload. The unique index on successful message ids rejects a second
// success for the same message; callers see that as a conflict.
func (r *JobRepo) MarkSucceeded(ctx context.Context, id string, result *model.JobResult) (*model.Job, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode job result")
	}
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, transitionParams{
		id:   id,
		from: []model.JobStatus{model.JobStatusProcessing},
		to:   model.JobStatusSuccess,
		set:  `status = $2, progress = 100, finished_at = $3, updated_at = $3, result = $4`,
		args: []any{model.JobStatusSuccess, now, payload},
	})
}

// MarkFailed transitions a processing job to failed with an error message.
func (r *JobRepo) MarkFailed(ctx context.Context, id string, errMsg string) (*model.Job, error) {
	now := r.timeProvider.Now().UTC()
	return r.transition(ctx, transitionParams{
		id:   id,
		from: []model.JobStatus{model.JobStatusProcessing},
		to:   model.JobStatusFailed,
		set:  `status = $2, finished_at = $3, updated_at = $3, error_message = $4`,
		args: []any{model.JobStatusFailed, now, errMsg},
	})
}

type transitionParams struct {
	id   string
	from []model.JobStatus
	to   model.JobStatus
	set  string
	args []any
}

// transition runs a guarded status update. The WHERE clause pins the expected
// current status, so a lost race surfaces as zero rows and maps to an invalid
// transition against whatever status won.
func (r *JobRepo) transition(ctx context.Context, p transitionParams) (*model.Job, error) {
	fromPlaceholders := make([]string, len(p.from))
	args := append([]any{p.id}, p.args...)
	for i, s := range p.from {
		args = append(args, s)
		fromPlaceholders[i] = "$" + strconv.Itoa(len(args))
	}
	query := `UPDATE processing_jobs SET ` + p.set +
		` WHERE id = $1 AND status IN (` + strings.Join(fromPlaceholders, ", ") + `)
		RETURNING ` + jobColumns

	var out model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		var cerr error
		out, cerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Job])
		if errors.Is(cerr, pgx.ErrNoRows) {
			return r.transitionConflict(ctx, conn, p.id, p.to)
		}
		return cerr
	})
	if err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
			return nil, err
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// transitionConflict reports why a guarded update matched no rows.
func (r *JobRepo) transitionConflict(ctx context.Context, conn *pgx.Conn, id string, to model.JobStatus) error {
	var status model.JobStatus
	if err := conn.QueryRow(ctx, `SELECT status FROM processing_jobs WHERE id = $1`, id).
		Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFoundf("job %s not found", id)
		}
		return err
	}
	return apperrors.Wrapf(model.ErrInvalidTransition, apperrors.ErrCodeConflict,
		"job %s: %s -> %s", id, status, to)
}

// SetProgress advances the progress of a processing job. GREATEST keeps a
// stale report from moving progress backwards.
func (r *JobRepo) SetProgress(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return apperrors.ValidationField("progress", fmt.Sprintf("progress %d out of range [0, 100]", progress))
	}
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE processing_jobs
			SET progress = GREATEST(progress, $2), updated_at = $3
			WHERE id = $1 AND status = $4`,
			id, progress, now, model.JobStatusProcessing)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.transitionConflict(ctx, conn, id, model.JobStatusProcessing)
		}
		return nil
	})
	if err != nil {
		if apperrors.IsNotFound(err) || apperrors.IsConflict(err) {
			return err
		}
		return apperrors.MapDBError(err)
	}
	return nil
}

// List retrieves jobs with optional status and message id filters, newest first.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	opts.Bound()

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if opts.Status != nil {
		if !opts.Status.Valid() {
			return nil, apperrors.ValidationField("status", fmt.Sprintf("unknown status %q", *opts.Status))
		}
		args = append(args, *opts.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if opts.MessageID != "" {
		args = append(args, opts.MessageID)
		where = append(where, "message_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, opts.Limit)
	query += " ORDER BY queued_at DESC, id LIMIT $" + strconv.Itoa(len(args))
	args = append(args, opts.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	var rowsOut []model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Job])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	res := make([]*model.Job, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Delete removes a job that is still queued. Used to roll back a dispatch
// whose queue handoff failed.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`DELETE FROM processing_jobs WHERE id = $1 AND status = $2`,
			id, model.JobStatusQueued)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NotFoundf("queued job %s not found", id)
		}
		return nil
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			return err
		}
		return apperrors.MapDBError(err)
	}
	return nil
}
