// Package model defines the core data types used throughout the invoice-inbox pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a processing job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting on the work queue.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates a worker is extracting the message.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusSuccess indicates extraction and reconciliation finished.
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailed indicates the job failed and will not be retried.
	JobStatusFailed JobStatus = "failed"
)

// Progress milestones reported by the extraction worker, strictly in order
// within one job.
const (
	ProgressFetched   = 20
	ProgressExtracted = 50
	ProgressFields    = 80
	ProgressDone      = 100
)

// ErrInvalidTransition is returned when a job status change violates the
// queued → processing → {success|failed} state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusSuccess ||
		s == JobStatusFailed
}

// Terminal returns true for statuses no transition may leave.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// ValidateTransition checks a status change against the job state machine.
// queued may only move to processing; processing may only move to success or
// failed; success and failed are terminal.
func ValidateTransition(from, to JobStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	ok := false
	switch from {
	case JobStatusQueued:
		ok = to == JobStatusProcessing
	case JobStatusProcessing:
		ok = to == JobStatusSuccess || to == JobStatusFailed
	case JobStatusSuccess, JobStatusFailed:
		ok = false
	}
	if !ok {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	return nil
}

// Job represents one tracked attempt to process a single message id.
type Job struct {
	ID           string          `json:"job_id"                  db:"id"`
	MessageID    string          `json:"message_id"              db:"message_id"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Progress     int             `json:"progress"                db:"progress"`
	QueuedAt     time.Time       `json:"queued_at"               db:"queued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"   db:"finished_at"`
	Result       json.RawMessage `json:"result,omitempty"        db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// DecodeResult unmarshals the persisted result payload, present only on success.
func (j *Job) DecodeResult() (*JobResult, error) {
	if len(j.Result) == 0 {
		return nil, nil
	}
	var res JobResult
	if err := json.Unmarshal(j.Result, &res); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &res, nil
}

// WorkItem is the queue entry handed to the extraction worker pool.
type WorkItem struct {
	JobID      string `json:"job_id"`
	MessageID  string `json:"message_id"`
	LabelAfter bool   `json:"label_after"`
}

// Validate checks the work item before it is enqueued.
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.JobID) == "" {
		return errors.New("work item job_id is required")
	}
	if strings.TrimSpace(w.MessageID) == "" {
		return errors.New("work item message_id is required")
	}
	return nil
}

// InvoiceSummary is one extracted invoice inside a job result payload.
type InvoiceSummary struct {
	Vendor      string  `json:"vendor,omitempty"`
	Date        string  `json:"date,omitempty"`
	TotalAmount float64 `json:"total_amount,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// JobResult is the payload persisted on a successful job.
type JobResult struct {
	InvoiceRecords []InvoiceSummary `json:"invoice_records"`
	SummaryText    string           `json:"summary_text"`
	Confidence     float64          `json:"confidence"`
}

// Job listing bounds.
const (
	DefaultJobListLimit = 50
	MaxJobListLimit     = 100
)

// JobListOptions filters and bounds a job listing.
type JobListOptions struct {
	Status    *JobStatus
	MessageID string
	Limit     int
	Offset    int
}

// Bound clamps the limit into [1, MaxJobListLimit], defaulting when unset,
// and floors a negative offset at zero.
func (o *JobListOptions) Bound() {
	if o.Limit <= 0 {
		o.Limit = DefaultJobListLimit
	}
	if o.Limit > MaxJobListLimit {
		o.Limit = MaxJobListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// DispatchedJob is one entry in a dispatch response.
type DispatchedJob struct {
	JobID     string    `json:"job_id"`
	MessageID string    `json:"message_id"`
	Status    JobStatus `json:"status"`
}

// DispatchResult is the outcome of dispatching a set of message ids.
type DispatchResult struct {
	Jobs        []DispatchedJob `json:"jobs"`
	QueuedCount int             `json:"queued_count"`
}
