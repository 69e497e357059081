// Package worker runs the extraction pipeline that turns queued messages
// into invoices.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finlens/invoice-inbox/internal/adapters/objectstore"
	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/extract"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
	"github.com/finlens/invoice-inbox/internal/observability/metrics"
	"github.com/finlens/invoice-inbox/internal/observability/statsd"
	"github.com/finlens/invoice-inbox/internal/service"
)

// DefaultProcessedLabel is applied at the source once a message is extracted.
const DefaultProcessedLabel = "ProcessedByAgent"

// PipelineOptions groups dependencies for Pipeline.
type PipelineOptions struct {
	Jobs       core.JobRepository
	Invoices   core.InvoiceRepository
	Source     core.MessageSource
	Store      core.ObjectStore
	Text       core.TextExtractor
	Reconciler *service.ReconcileService
	Logger     *slog.Logger

	// Metrics receives per-job counters and timings; nil disables emission.
	Metrics statsd.Sink

	// MaxAttempts bounds retries of the retryable stages; defaults to 3.
	MaxAttempts int
	// RetryBackoff is the first retry delay, doubled per attempt; defaults to 1s.
	RetryBackoff time.Duration
	// ProcessedLabel overrides the label applied after success.
	ProcessedLabel string
}

// Pipeline processes one work item end to end: fetch, store, extract,
// reconcile, and record the result on the job.
type Pipeline struct {
	jobs       core.JobRepository
	invoices   core.InvoiceRepository
	source     core.MessageSource
	store      core.ObjectStore
	text       core.TextExtractor
	reconciler *service.ReconcileService
	logger     *slog.Logger
	metrics    statsd.Sink

	maxAttempts int
	backoff     time.Duration
	label       string
	sleep       func(context.Context, time.Duration) error
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Jobs == nil || opts.Invoices == nil || opts.Source == nil ||
		opts.Store == nil || opts.Text == nil || opts.Reconciler == nil {
		return nil, errors.New("jobs, invoices, source, store, text, and reconciler are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	label := opts.ProcessedLabel
	if label == "" {
		label = DefaultProcessedLabel
	}
	return &Pipeline{
		jobs:        opts.Jobs,
		invoices:    opts.Invoices,
		source:      opts.Source,
		store:       opts.Store,
		text:        opts.Text,
		reconciler:  opts.Reconciler,
		logger:      logger.With("component", "extraction_worker"),
		metrics:     opts.Metrics,
		maxAttempts: attempts,
		backoff:     backoff,
		label:       label,
		sleep:       sleepContext,
	}, nil
}

// Process claims the job for a work item and drives it to a terminal status.
// A failed message is recorded on the job, not returned; the error return is
// reserved for bookkeeping failures where the job could not be updated.
func (p *Pipeline) Process(ctx context.Context, item *model.WorkItem) error {
	start := time.Now()
	emit := func(outcome string, cause error) {
		metrics.EmitExtraction(p.metrics, metrics.ExtractionMetric{
			Outcome:  outcome,
			Duration: time.Since(start),
			Err:      cause,
		})
	}

	if _, err := p.jobs.MarkProcessing(ctx, item.JobID); err != nil {
		if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
			p.logger.WarnContext(ctx, "skipping work item, job not claimable",
				"job_id", item.JobID, "error", err)
			emit(metrics.OutcomeSkipped, nil)
			return nil
		}
		return fmt.Errorf("claim job %s: %w", item.JobID, err)
	}

	inv, runErr := p.runWithRetry(ctx, item)
	if runErr != nil {
		emit(metrics.OutcomeFailed, runErr)
		return p.failJob(ctx, item, runErr)
	}

	result := &model.JobResult{
		InvoiceRecords: []model.InvoiceSummary{inv.Summary()},
		SummaryText:    summaryText(inv),
		Confidence:     inv.MeanConfidence(),
	}
	if _, err := p.jobs.MarkSucceeded(ctx, item.JobID, result); err != nil {
		if apperrors.IsConflict(err) && !errors.Is(err, model.ErrInvalidTransition) {
			// Another job already recorded a success for this message.
			msg := fmt.Sprintf("superseded: message %s already processed by another job", item.MessageID)
			if _, ferr := p.jobs.MarkFailed(ctx, item.JobID, msg); ferr != nil {
				return fmt.Errorf("fail superseded job %s: %w", item.JobID, ferr)
			}
			p.logger.InfoContext(ctx, "job superseded",
				"job_id", item.JobID, "message_id", item.MessageID)
			emit(metrics.OutcomeSuperseded, nil)
			return nil
		}
		return fmt.Errorf("record success for job %s: %w", item.JobID, err)
	}

	p.logger.InfoContext(ctx, "job succeeded",
		"job_id", item.JobID,
		"message_id", item.MessageID,
		"invoice_id", inv.ID,
		"confidence", result.Confidence)
	emit(metrics.OutcomeSuccess, nil)
	return nil
}

// runWithRetry retries the extraction run on transient failures with
// exponential backoff. Permanent failures return immediately.
func (p *Pipeline) runWithRetry(ctx context.Context, item *model.WorkItem) (*model.Invoice, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		inv, err := p.run(ctx, item)
		if err == nil {
			return inv, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == p.maxAttempts-1 {
			break
		}
		delay := backoffFor(p.backoff, attempt)
		p.logger.WarnContext(ctx, "retrying job after failure",
			"job_id", item.JobID, "attempt", attempt+1, "backoff", delay, "error", err)
		if serr := p.sleep(ctx, delay); serr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// run executes the extraction stages once for a claimed job.
func (p *Pipeline) run(ctx context.Context, item *model.WorkItem) (*model.Invoice, error) {
	raw, err := p.source.Fetch(ctx, item.MessageID)
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", item.MessageID, err)
	}
	rawAddr, err := p.store.Put(ctx, objectstore.RawKey(item.MessageID), raw.Raw, "application/json")
	if err != nil {
		return nil, fmt.Errorf("store raw message %s: %w", item.MessageID, err)
	}
	if err := p.jobs.SetProgress(ctx, item.JobID, model.ProgressFetched); err != nil {
		return nil, fmt.Errorf("set progress on job %s: %w", item.JobID, err)
	}

	docs, attachments, err := p.collectDocuments(ctx, item, raw)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.Extractionf("message %s has no readable content", item.MessageID)
	}
	if err := p.jobs.SetProgress(ctx, item.JobID, model.ProgressExtracted); err != nil {
		return nil, fmt.Errorf("set progress on job %s: %w", item.JobID, err)
	}

	fields := extractFields(docs)
	if err := p.jobs.SetProgress(ctx, item.JobID, model.ProgressFields); err != nil {
		return nil, fmt.Errorf("set progress on job %s: %w", item.JobID, err)
	}

	inv, err := p.persistInvoice(ctx, item, rawAddr, docs, attachments, fields)
	if err != nil {
		return nil, err
	}

	if err := p.reconciler.Reconcile(ctx, inv); err != nil {
		return nil, fmt.Errorf("reconcile invoice %s: %w", inv.ID, err)
	}

	if err := p.storeSnapshot(ctx, inv); err != nil {
		return nil, err
	}

	if item.LabelAfter {
		if err := p.source.Label(ctx, item.MessageID, p.label); err != nil {
			// The invoice is already extracted and persisted; a labeling
			// failure must not undo the job.
			p.logger.WarnContext(ctx, "label message failed",
				"message_id", item.MessageID, "label", p.label, "error", err)
		}
	}
	return inv, nil
}

// collectDocuments stores every attachment and gathers the plain text views
// of the message: attachment texts first, then the body. Attachments carry
// the actual invoice more often than the email body, so on equal-confidence
// field collisions the attachment value wins.
func (p *Pipeline) collectDocuments(
	ctx context.Context,
	item *model.WorkItem,
	raw *core.RawMessage,
) ([]string, []model.AttachmentRef, error) {
	var docs []string
	var refs []model.AttachmentRef
	for _, att := range raw.Attachments {
		addr, err := p.store.Put(ctx,
			objectstore.AttachmentKey(item.MessageID, att.Filename), att.Data, att.MIMEType)
		if err != nil {
			return nil, nil, fmt.Errorf("store attachment %q: %w", att.Filename, err)
		}
		refs = append(refs, model.AttachmentRef{
			Filename: att.Filename,
			MIMEType: att.MIMEType,
			Address:  addr,
		})

		text, err := p.text.ExtractText(ctx, att.Data, att.MIMEType)
		if err != nil {
			// One unreadable attachment does not sink the message when other
			// content is available.
			if apperrors.IsExtraction(err) {
				p.logger.WarnContext(ctx, "attachment text extraction failed",
					"message_id", item.MessageID, "filename", att.Filename, "error", err)
				continue
			}
			return nil, nil, fmt.Errorf("extract attachment %q: %w", att.Filename, err)
		}
		if strings.TrimSpace(text) != "" {
			docs = append(docs, text)
		}
	}

	switch {
	case strings.TrimSpace(raw.BodyText) != "":
		docs = append(docs, raw.BodyText)
	case strings.TrimSpace(raw.BodyHTML) != "":
		text, err := p.text.ExtractText(ctx, []byte(raw.BodyHTML), "text/html")
		if err != nil {
			return nil, nil, fmt.Errorf("extract html body of %s: %w", item.MessageID, err)
		}
		docs = append(docs, text)
	}
	return docs, refs, nil
}

// extractFields runs the extractor set over each document and merges the
// results, keeping the higher-confidence value per field.
func extractFields(docs []string) map[string]model.Field {
	extractors := extract.Extractors()
	merged := make(map[string]model.Field)
	for _, doc := range docs {
		for name, field := range extract.Run(doc, extractors) {
			if prev, ok := merged[name]; ok && prev.Confidence >= field.Confidence {
				continue
			}
			merged[name] = field
		}
	}
	return merged
}

// persistInvoice creates the invoice record, reusing an existing one when a
// prior run already stored this message.
func (p *Pipeline) persistInvoice(
	ctx context.Context,
	item *model.WorkItem,
	rawAddr string,
	docs []string,
	attachments []model.AttachmentRef,
	fields map[string]model.Field,
) (*model.Invoice, error) {
	inv := &model.Invoice{
		SourceMessageID:  item.MessageID,
		RawText:          strings.Join(docs, "\n\n"),
		RawAddress:       rawAddr,
		Attachments:      attachments,
		Extracted:        fields,
		ExtractorVersion: extract.Version,
	}
	err := p.invoices.Create(ctx, inv)
	switch {
	case err == nil:
		return inv, nil
	case apperrors.IsConflict(err):
		existing, gerr := p.invoices.GetBySourceMessageID(ctx, item.MessageID)
		if gerr != nil {
			return nil, fmt.Errorf("load existing invoice for message %s: %w", item.MessageID, gerr)
		}
		return existing, nil
	default:
		return nil, fmt.Errorf("create invoice for message %s: %w", item.MessageID, err)
	}
}

// storeSnapshot writes the reconciled invoice to object storage for later
// inspection.
func (p *Pipeline) storeSnapshot(ctx context.Context, inv *model.Invoice) error {
	snapshot, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invoice %s: %w", inv.ID, err)
	}
	if _, err := p.store.Put(ctx, objectstore.ExtractionKey(inv.ID), snapshot, "application/json"); err != nil {
		return fmt.Errorf("store extraction snapshot for invoice %s: %w", inv.ID, err)
	}
	return nil
}

func (p *Pipeline) failJob(ctx context.Context, item *model.WorkItem, cause error) error {
	if _, err := p.jobs.MarkFailed(ctx, item.JobID, cause.Error()); err != nil {
		return fmt.Errorf("fail job %s after %v: %w", item.JobID, cause, err)
	}
	p.logger.ErrorContext(ctx, "job failed",
		"job_id", item.JobID, "message_id", item.MessageID, "error", cause)
	return nil
}

// summaryText builds a one-line description of the extracted invoice.
func summaryText(inv *model.Invoice) string {
	s := inv.Summary()
	var parts []string
	if s.Vendor != "" {
		parts = append(parts, "Vendor: "+s.Vendor)
	}
	if s.Date != "" {
		parts = append(parts, "Date: "+s.Date)
	}
	if s.TotalAmount > 0 {
		total := fmt.Sprintf("Total: %s %.2f", s.Currency, s.TotalAmount)
		if s.Currency == "" {
			total = fmt.Sprintf("Total: %.2f", s.TotalAmount)
		}
		parts = append(parts, total)
	}
	if len(parts) == 0 {
		return "no invoice fields extracted"
	}
	return strings.Join(parts, " | ")
}
