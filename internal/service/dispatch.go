package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// MaxDispatchBatch bounds one dispatch request.
const MaxDispatchBatch = 100

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Jobs   core.JobRepository
	Queue  core.WorkQueue
	Logger *slog.Logger
}

// DispatchService creates processing jobs and hands them to the work queue.
// Dispatch is idempotent per message id: a message with a successful job is
// never re-queued, its existing job is returned instead.
type DispatchService struct {
	jobs   core.JobRepository
	queue  core.WorkQueue
	logger *slog.Logger
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) *DispatchService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchService{jobs: opts.Jobs, queue: opts.Queue, logger: logger}
}

// DispatchRequest is one dispatch call.
type DispatchRequest struct {
	MessageIDs []string `json:"message_ids"`
	// LabelAfter asks the worker to tag the source message once extraction
	// succeeds.
	LabelAfter bool `json:"label_after"`
}

// Validate checks the request and returns the message ids deduplicated in
// first-seen order.
func (r *DispatchRequest) Validate() ([]string, error) {
	if len(r.MessageIDs) == 0 {
		return nil, apperrors.ValidationField("message_ids", "message_ids must not be empty")
	}
	if len(r.MessageIDs) > MaxDispatchBatch {
		return nil, apperrors.ValidationField("message_ids",
			fmt.Sprintf("at most %d message ids per dispatch, got %d", MaxDispatchBatch, len(r.MessageIDs)))
	}

	seen := make(map[string]struct{}, len(r.MessageIDs))
	ids := make([]string, 0, len(r.MessageIDs))
	for _, raw := range r.MessageIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, apperrors.ValidationField("message_ids", "message ids must not be blank")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Dispatch queues one job per new message id. Message ids that already have a
// successful job are reported with that job instead of being re-queued.
func (s *DispatchService) Dispatch(ctx context.Context, req *DispatchRequest) (*model.DispatchResult, error) {
	if req == nil {
		return nil, apperrors.Validation("dispatch request is required")
	}
	ids, err := req.Validate()
	if err != nil {
		return nil, err
	}

	result := &model.DispatchResult{Jobs: make([]model.DispatchedJob, 0, len(ids))}
	for _, messageID := range ids {
		job, queued, err := s.dispatchOne(ctx, messageID, req.LabelAfter)
		if err != nil {
			return nil, err
		}
		result.Jobs = append(result.Jobs, model.DispatchedJob{
			JobID:     job.ID,
			MessageID: job.MessageID,
			Status:    job.Status,
		})
		if queued {
			result.QueuedCount++
		}
	}

	s.logger.InfoContext(ctx, "dispatched messages",
		"requested", len(ids), "queued", result.QueuedCount)
	return result, nil
}

// dispatchOne returns the job for a message id and whether it was newly queued.
func (s *DispatchService) dispatchOne(ctx context.Context, messageID string, labelAfter bool) (*model.Job, bool, error) {
	existing, err := s.jobs.FindSuccessByMessageID(ctx, messageID)
	if err == nil {
		s.logger.DebugContext(ctx, "message already processed, reusing job",
			"message_id", messageID, "job_id", existing.ID)
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, fmt.Errorf("lookup message %s: %w", messageID, err)
	}

	job, err := s.jobs.Create(ctx, messageID)
	if err != nil {
		return nil, false, fmt.Errorf("create job for message %s: %w", messageID, err)
	}

	item := &model.WorkItem{JobID: job.ID, MessageID: messageID, LabelAfter: labelAfter}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		// The job never reached the queue; remove it so a retry can
		// dispatch the message again.
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back job after enqueue failure",
				"job_id", job.ID, "err", delErr)
		}
		return nil, false, fmt.Errorf("enqueue message %s: %w", messageID, err)
	}
	return job, true, nil
}
