package service

import (
	"context"
	"fmt"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// StatusService reports job progress and outcomes.
type StatusService struct {
	jobs core.JobRepository
}

// NewStatusService constructs a new StatusService.
func NewStatusService(jobs core.JobRepository) *StatusService {
	return &StatusService{jobs: jobs}
}

// JobStatus is the status payload for one job. Result is present only on
// success, ErrorMessage only on failure.
type JobStatus struct {
	Job    *model.Job       `json:"job"`
	Result *model.JobResult `json:"result,omitempty"`
}

// Get returns the status of a job, decoding the result payload when present.
func (s *StatusService) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	if jobID == "" {
		return nil, apperrors.ValidationField("job_id", "job_id is required")
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	result, err := job.DecodeResult()
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return &JobStatus{Job: job, Result: result}, nil
}

// List returns jobs matching the options, bounded and newest first.
func (s *StatusService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	jobs, err := s.jobs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
