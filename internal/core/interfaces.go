package core

import (
	"context"
	"time"

	"github.com/finlens/invoice-inbox/internal/domain/model"
)

// This file contains repository and adapter interface definitions (ports in
// hexagonal architecture). These interfaces define the contracts between the
// service layer and the data/adapter layers. Service implementations should
// depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for processing job data operations.
type JobRepository interface {
	Create(ctx context.Context, messageID string) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// FindSuccessByMessageID returns the successful job for a message, or a
	// not found error when the message has never completed.
	FindSuccessByMessageID(ctx context.Context, messageID string) (*model.Job, error)
	MarkProcessing(ctx context.Context, id string) (*model.Job, error)
	// SetProgress advances the progress of a processing job. Progress never
	// moves backwards; a lower value than the current one is a no-op.
	SetProgress(ctx context.Context, id string, progress int) error
	MarkSucceeded(ctx context.Context, id string, result *model.JobResult) (*model.Job, error)
	MarkFailed(ctx context.Context, id string, errMsg string) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	// Delete removes a job that never left the queue. Dispatch uses it to
	// roll back when the queue handoff fails.
	Delete(ctx context.Context, id string) error
}

// InvoiceRepository defines the interface for extracted invoice data.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *model.Invoice) error
	GetByID(ctx context.Context, id string) (*model.Invoice, error)
	GetBySourceMessageID(ctx context.Context, messageID string) (*model.Invoice, error)
	// ListNeedsReview returns invoices awaiting reconciliation, oldest first.
	ListNeedsReview(ctx context.Context, limit int) ([]*model.Invoice, error)
	UpdateReconciliation(ctx context.Context, inv *model.Invoice) error
	SearchText(ctx context.Context, query string, limit int) ([]*model.Invoice, error)
}

// RegistryRepository defines the interface for vendor and project registry data.
type RegistryRepository interface {
	ListByKind(ctx context.Context, kind model.RegistryKind) ([]*model.RegistryEntry, error)
	Create(ctx context.Context, entry *model.RegistryEntry) (*model.RegistryEntry, error)
}

// AuditRepository records reconciliation decisions. The log is append only.
type AuditRepository interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]*model.AuditRecord, error)
}

// CorrectionStore persists a manual field correction together with its audit
// record. Both writes commit or roll back as one unit so a corrected invoice
// can never exist without its audit trail.
type CorrectionStore interface {
	SaveCorrection(ctx context.Context, inv *model.Invoice, rec *model.AuditRecord) error
}

// WorkQueue is the FIFO handoff between dispatch and the extraction workers.
type WorkQueue interface {
	Enqueue(ctx context.Context, item *model.WorkItem) error
	// Dequeue blocks up to timeout for the next item and returns nil when the
	// queue stayed empty.
	Dequeue(ctx context.Context, timeout time.Duration) (*model.WorkItem, error)
}

// RawMessage is a fetched source message with its decoded parts.
type RawMessage struct {
	MessageID   string
	Subject     string
	From        string
	Date        string
	BodyText    string
	BodyHTML    string
	Attachments []RawAttachment
	Raw         []byte
}

// RawAttachment is one decoded attachment payload.
type RawAttachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

// MessageSource lists and fetches messages from the mail provider.
type MessageSource interface {
	Search(ctx context.Context, query string, max int) ([]*model.CandidateMessage, error)
	Fetch(ctx context.Context, messageID string) (*RawMessage, error)
	// Label tags a processed message at the source so reruns skip it.
	Label(ctx context.Context, messageID, label string) error
}

// ObjectStore persists raw payloads and attachments and returns their address.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// TextExtractor turns an attachment payload into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}
