package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// In-memory fakes for the core ports. They honor the same transition and
// idempotency rules as the real repositories so service tests exercise real
// failure paths.

type stubJobRepo struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*model.Job

	createErr error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *stubJobRepo) Create(ctx context.Context, messageID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	if strings.TrimSpace(messageID) == "" {
		return nil, apperrors.ValidationField("message_id", "message_id is required")
	}
	r.seq++
	now := time.Now().UTC()
	job := &model.Job{
		ID:        fmt.Sprintf("job-%d", r.seq),
		MessageID: messageID,
		Status:    model.JobStatusQueued,
		QueuedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (r *stubJobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

func (r *stubJobRepo) FindSuccessByMessageID(ctx context.Context, messageID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.MessageID == messageID && job.Status == model.JobStatusSuccess {
			cp := *job
			return &cp, nil
		}
	}
	return nil, apperrors.NotFoundf("no successful job for message %s", messageID)
}

func (r *stubJobRepo) transition(id string, to model.JobStatus, mut func(*model.Job)) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err := model.ValidateTransition(job.Status, to); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConflict, "transition rejected")
	}
	job.Status = to
	mut(job)
	job.UpdatedAt = time.Now().UTC()
	cp := *job
	return &cp, nil
}

func (r *stubJobRepo) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	return r.transition(id, model.JobStatusProcessing, func(j *model.Job) {
		now := time.Now().UTC()
		j.StartedAt = &now
	})
}

func (r *stubJobRepo) SetProgress(ctx context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	return nil
}

func (r *stubJobRepo) MarkSucceeded(ctx context.Context, id string, result *model.JobResult) (*model.Job, error) {
	r.mu.Lock()
	job := r.jobs[id]
	if job != nil {
		for _, other := range r.jobs {
			if other.ID != id && other.MessageID == job.MessageID && other.Status == model.JobStatusSuccess {
				r.mu.Unlock()
				return nil, apperrors.Conflictf("message %s already processed", job.MessageID)
			}
		}
	}
	r.mu.Unlock()
	payload, _ := json.Marshal(result)
	return r.transition(id, model.JobStatusSuccess, func(j *model.Job) {
		now := time.Now().UTC()
		j.FinishedAt = &now
		j.Progress = 100
		j.Result = payload
	})
}

func (r *stubJobRepo) MarkFailed(ctx context.Context, id string, errMsg string) (*model.Job, error) {
	return r.transition(id, model.JobStatusFailed, func(j *model.Job) {
		now := time.Now().UTC()
		j.FinishedAt = &now
		j.ErrorMessage = &errMsg
	})
}

func (r *stubJobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	opts.Bound()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, job := range r.jobs {
		if opts.Status != nil && job.Status != *opts.Status {
			continue
		}
		if opts.MessageID != "" && job.MessageID != opts.MessageID {
			continue
		}
		cp := *job
		out = append(out, &cp)
		if len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (r *stubJobRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.JobStatusQueued {
		return apperrors.NotFoundf("queued job %s not found", id)
	}
	delete(r.jobs, id)
	return nil
}

type stubQueue struct {
	mu    sync.Mutex
	items []*model.WorkItem

	enqueueErr error
}

func (q *stubQueue) Enqueue(ctx context.Context, item *model.WorkItem) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if err := item.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid work item")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *stubQueue) Dequeue(ctx context.Context, timeout time.Duration) (*model.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

type stubInvoiceRepo struct {
	mu       sync.Mutex
	seq      int
	invoices map[string]*model.Invoice

	updateErr error
}

func newStubInvoiceRepo() *stubInvoiceRepo {
	return &stubInvoiceRepo{invoices: make(map[string]*model.Invoice)}
}

func (r *stubInvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.invoices {
		if existing.SourceMessageID == inv.SourceMessageID {
			return apperrors.Conflictf("invoice for message %s already exists", inv.SourceMessageID)
		}
	}
	r.seq++
	if inv.ID == "" {
		inv.ID = fmt.Sprintf("inv-%d", r.seq)
	}
	if inv.ReconciliationStatus == "" {
		inv.ReconciliationStatus = model.ReconciliationNeedsReview
	}
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *stubInvoiceRepo) GetByID(ctx context.Context, id string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, apperrors.NotFoundf("invoice %s not found", id)
	}
	cp := *inv
	return &cp, nil
}

func (r *stubInvoiceRepo) GetBySourceMessageID(ctx context.Context, messageID string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.SourceMessageID == messageID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, apperrors.NotFoundf("invoice for message %s not found", messageID)
}

func (r *stubInvoiceRepo) ListNeedsReview(ctx context.Context, limit int) ([]*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range r.invoices {
		if inv.ReconciliationStatus != model.ReconciliationNeedsReview {
			continue
		}
		cp := *inv
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *stubInvoiceRepo) UpdateReconciliation(ctx context.Context, inv *model.Invoice) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return apperrors.NotFoundf("invoice %s not found", inv.ID)
	}
	stored.Normalized = inv.Normalized
	stored.ReconciliationStatus = inv.ReconciliationStatus
	stored.Suggestions = inv.Suggestions
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *stubInvoiceRepo) SearchText(ctx context.Context, query string, limit int) ([]*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range r.invoices {
		if strings.Contains(strings.ToLower(inv.RawText), strings.ToLower(query)) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubRegistryRepo struct {
	entries []*model.RegistryEntry
	listErr error
}

func (r *stubRegistryRepo) ListByKind(ctx context.Context, kind model.RegistryKind) ([]*model.RegistryEntry, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.RegistryEntry
	for _, e := range r.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubRegistryRepo) Create(ctx context.Context, entry *model.RegistryEntry) (*model.RegistryEntry, error) {
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

type stubAuditRepo struct {
	mu      sync.Mutex
	records []*model.AuditRecord
}

func (r *stubAuditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *stubAuditRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*model.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditRecord
	for _, rec := range r.records {
		if rec.InvoiceID == invoiceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type stubMessageSource struct {
	candidates []*model.CandidateMessage
	searchErr  error

	lastQuery string
	lastMax   int
}

func (s *stubMessageSource) Search(ctx context.Context, query string, max int) ([]*model.CandidateMessage, error) {
	s.lastQuery = query
	s.lastMax = max
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.candidates) > max {
		return s.candidates[:max], nil
	}
	return s.candidates, nil
}

func (s *stubMessageSource) Fetch(ctx context.Context, messageID string) (*core.RawMessage, error) {
	return nil, apperrors.NotFoundf("message %s not found", messageID)
}

func (s *stubMessageSource) Label(ctx context.Context, messageID, label string) error {
	return nil
}

// stubCorrectionStore applies the two correction writes against the in-memory
// repos, all-or-nothing: a configured saveErr leaves both untouched.
type stubCorrectionStore struct {
	invoices *stubInvoiceRepo
	audit    *stubAuditRepo
	saveErr  error
}

func (s *stubCorrectionStore) SaveCorrection(ctx context.Context, inv *model.Invoice, rec *model.AuditRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if err := s.invoices.UpdateReconciliation(ctx, inv); err != nil {
		return err
	}
	return s.audit.Append(ctx, rec)
}
