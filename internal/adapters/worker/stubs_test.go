package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// stubJobs is an in-memory JobRepository that enforces the real status state
// machine so pipeline tests exercise transition failures faithfully.
type stubJobs struct {
	mu       sync.Mutex
	jobs     map[string]*model.Job
	progress map[string][]int

	succeedErr error
}

func newStubJobs() *stubJobs {
	return &stubJobs{
		jobs:     make(map[string]*model.Job),
		progress: make(map[string][]int),
	}
}

func (s *stubJobs) add(id, messageID string, status model.JobStatus) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &model.Job{ID: id, MessageID: messageID, Status: status, QueuedAt: time.Now()}
	s.jobs[id] = job
	return job
}

func (s *stubJobs) get(id string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *stubJobs) progressLog(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progress[id]...)
}

func (s *stubJobs) Create(_ context.Context, messageID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &model.Job{
		ID:        fmt.Sprintf("job-%d", len(s.jobs)+1),
		MessageID: messageID,
		Status:    model.JobStatusQueued,
		QueuedAt:  time.Now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobs) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return job, nil
}

func (s *stubJobs) FindSuccessByMessageID(_ context.Context, messageID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.MessageID == messageID && job.Status == model.JobStatusSuccess {
			return job, nil
		}
	}
	return nil, apperrors.NotFoundf("no successful job for message %s", messageID)
}

func (s *stubJobs) transition(id string, to model.JobStatus) (*model.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err := model.ValidateTransition(job.Status, to); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeConflict,
			"job %s: %s -> %s", id, job.Status, to)
	}
	job.Status = to
	return job, nil
}

func (s *stubJobs) MarkProcessing(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, model.JobStatusProcessing)
}

func (s *stubJobs) SetProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFoundf("job %s not found", id)
	}
	if job.Status != model.JobStatusProcessing {
		return apperrors.Conflictf("job %s is not processing", id)
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	s.progress[id] = append(s.progress[id], progress)
	return nil
}

func (s *stubJobs) MarkSucceeded(_ context.Context, id string, result *model.JobResult) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.succeedErr != nil {
		return nil, s.succeedErr
	}
	claimant := s.jobs[id]
	if claimant != nil {
		for _, other := range s.jobs {
			if other.ID != id && other.MessageID == claimant.MessageID &&
				other.Status == model.JobStatusSuccess {
				return nil, apperrors.Conflictf(
					"message %s already has a successful job", claimant.MessageID)
			}
		}
	}
	job, err := s.transition(id, model.JobStatusSuccess)
	if err != nil {
		return nil, err
	}
	job.Progress = model.ProgressDone
	if result != nil {
		payload, merr := marshalResult(result)
		if merr != nil {
			return nil, merr
		}
		job.Result = payload
	}
	return job, nil
}

func (s *stubJobs) MarkFailed(_ context.Context, id string, errMsg string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.transition(id, model.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	job.ErrorMessage = &errMsg
	return job, nil
}

func (s *stubJobs) List(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts.Bound()
	var out []*model.Job
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (s *stubJobs) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func marshalResult(result *model.JobResult) (json.RawMessage, error) {
	return json.Marshal(result)
}

// stubSource serves one canned message and can fail the first N fetches.
type stubSource struct {
	mu         sync.Mutex
	raw        *core.RawMessage
	fetchErr   error
	failFirst  int
	fetchCalls int
	labels     []string
	labelErr   error
}

func (s *stubSource) Search(context.Context, string, int) ([]*model.CandidateMessage, error) {
	return nil, nil
}

func (s *stubSource) Fetch(_ context.Context, messageID string) (*core.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.fetchCalls <= s.failFirst {
		return nil, apperrors.Transientf("fetch attempt %d failed", s.fetchCalls)
	}
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.raw == nil || s.raw.MessageID != messageID {
		return nil, apperrors.NotFound("message")
	}
	return s.raw, nil
}

func (s *stubSource) Label(_ context.Context, messageID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.labelErr != nil {
		return s.labelErr
	}
	s.labels = append(s.labels, messageID+":"+label)
	return nil
}

// stubStore keeps objects in a map and addresses them under a fake bucket.
type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = data
	return "test-bucket/" + key, nil
}

func (s *stubStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperrors.NotFoundf("object %s not found", key)
	}
	return data, nil
}

// stubText passes payloads through as text, with per-mime overrides and an
// injectable failure.
type stubText struct {
	texts      map[string]string
	extractErr error
}

func (s *stubText) ExtractText(_ context.Context, data []byte, mimeType string) (string, error) {
	if s.extractErr != nil {
		return "", s.extractErr
	}
	if s.texts != nil {
		if text, ok := s.texts[mimeType]; ok {
			return text, nil
		}
	}
	return string(data), nil
}

// stubInvoices is an in-memory InvoiceRepository enforcing one invoice per
// source message.
type stubInvoices struct {
	mu        sync.Mutex
	byID      map[string]*model.Invoice
	byMessage map[string]*model.Invoice
}

func newStubInvoices() *stubInvoices {
	return &stubInvoices{
		byID:      make(map[string]*model.Invoice),
		byMessage: make(map[string]*model.Invoice),
	}
}

func (s *stubInvoices) Create(_ context.Context, inv *model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byMessage[inv.SourceMessageID]; ok {
		return apperrors.Conflictf("invoice for message %s already exists", inv.SourceMessageID)
	}
	if inv.ID == "" {
		inv.ID = fmt.Sprintf("inv-%d", len(s.byID)+1)
	}
	if inv.ReconciliationStatus == "" {
		inv.ReconciliationStatus = model.ReconciliationNeedsReview
	}
	s.byID[inv.ID] = inv
	s.byMessage[inv.SourceMessageID] = inv
	return nil
}

func cloneInvoice(inv *model.Invoice) *model.Invoice {
	cp := *inv
	return &cp
}

func (s *stubInvoices) GetByID(_ context.Context, id string) (*model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFoundf("invoice %s not found", id)
	}
	return cloneInvoice(inv), nil
}

func (s *stubInvoices) GetBySourceMessageID(_ context.Context, messageID string) (*model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byMessage[messageID]
	if !ok {
		return nil, apperrors.NotFoundf("no invoice for message %s", messageID)
	}
	return cloneInvoice(inv), nil
}

func (s *stubInvoices) ListNeedsReview(_ context.Context, limit int) ([]*model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Invoice
	for _, inv := range s.byID {
		if inv.ReconciliationStatus == model.ReconciliationNeedsReview {
			out = append(out, inv)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubInvoices) UpdateReconciliation(_ context.Context, inv *model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[inv.ID]; !ok {
		return apperrors.NotFoundf("invoice %s not found", inv.ID)
	}
	s.byID[inv.ID] = inv
	s.byMessage[inv.SourceMessageID] = inv
	return nil
}

func (s *stubInvoices) SearchText(context.Context, string, int) ([]*model.Invoice, error) {
	return nil, nil
}

// stubRegistry serves a fixed entry list.
type stubRegistry struct {
	entries []*model.RegistryEntry
}

func (s *stubRegistry) ListByKind(_ context.Context, kind model.RegistryKind) ([]*model.RegistryEntry, error) {
	var out []*model.RegistryEntry
	for _, e := range s.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRegistry) Create(_ context.Context, entry *model.RegistryEntry) (*model.RegistryEntry, error) {
	s.entries = append(s.entries, entry)
	return entry, nil
}

// stubAudit collects appended records.
type stubAudit struct {
	mu      sync.Mutex
	records []*model.AuditRecord
}

func (s *stubAudit) Append(_ context.Context, rec *model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubAudit) ListByInvoice(_ context.Context, invoiceID string) ([]*model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AuditRecord
	for _, rec := range s.records {
		if rec.InvoiceID == invoiceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// stubQueue is a channel-backed WorkQueue for runner tests. The first
// failDequeues calls to Dequeue return dequeueErr.
type stubQueue struct {
	items chan *model.WorkItem

	mu           sync.Mutex
	failDequeues int
	dequeueErr   error
	dequeueFails int
}

func newStubQueue(size int) *stubQueue {
	return &stubQueue{items: make(chan *model.WorkItem, size)}
}

func (s *stubQueue) Enqueue(_ context.Context, item *model.WorkItem) error {
	s.items <- item
	return nil
}

func (s *stubQueue) Dequeue(ctx context.Context, timeout time.Duration) (*model.WorkItem, error) {
	s.mu.Lock()
	if s.dequeueFails < s.failDequeues {
		s.dequeueFails++
		s.mu.Unlock()
		return nil, s.dequeueErr
	}
	s.mu.Unlock()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item := <-s.items:
		return item, nil
	case <-timer.C:
		return nil, nil
	}
}

// stubSink records emitted metrics for assertion.
type stubSink struct {
	mu      sync.Mutex
	counts  []metricEvent
	timings []metricEvent
}

type metricEvent struct {
	name string
	tags map[string]string
}

func (s *stubSink) Count(name string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, metricEvent{name: name, tags: tags})
}

func (s *stubSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timings = append(s.timings, metricEvent{name: name, tags: tags})
}

func (s *stubSink) countTags(name string) []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]string
	for _, ev := range s.counts {
		if ev.name == name {
			out = append(out, ev.tags)
		}
	}
	return out
}

// stubCorrections applies a manual correction against the in-memory repos.
type stubCorrections struct {
	invoices *stubInvoices
	audit    *stubAudit
}

func (s *stubCorrections) SaveCorrection(ctx context.Context, inv *model.Invoice, rec *model.AuditRecord) error {
	if err := s.invoices.UpdateReconciliation(ctx, inv); err != nil {
		return err
	}
	return s.audit.Append(ctx, rec)
}
