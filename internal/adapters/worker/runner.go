package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finlens/invoice-inbox/internal/core"
)

// DefaultPollTimeout bounds one blocking dequeue so workers notice shutdown.
const DefaultPollTimeout = 5 * time.Second

// maxDequeueBackoffShift caps the dequeue retry delay at base<<5 (32s).
const maxDequeueBackoffShift = 5

// RunnerOptions configures the extraction worker pool.
type RunnerOptions struct {
	Queue    core.WorkQueue
	Pipeline *Pipeline
	Logger   *slog.Logger

	// Concurrency is the number of worker goroutines; defaults to 1.
	Concurrency int
	// PollTimeout bounds one blocking dequeue; defaults to 5s.
	PollTimeout time.Duration
}

// Runner pulls work items off the queue and feeds them to the pipeline with
// a fixed pool of workers.
type Runner struct {
	queue       core.WorkQueue
	pipeline    *Pipeline
	logger      *slog.Logger
	workers     int
	pollTimeout time.Duration

	// dequeueBackoff is the base delay after a failed dequeue. Tests shrink it.
	dequeueBackoff time.Duration
}

// NewRunner constructs a worker pool runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil || opts.Pipeline == nil {
		return nil, errors.New("queue and pipeline are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Runner{
		queue:          opts.Queue,
		pipeline:       opts.Pipeline,
		logger:         logger.With("component", "worker_runner"),
		workers:        workers,
		pollTimeout:    pollTimeout,
		dequeueBackoff: DefaultRetryBackoff,
	}, nil
}

// Run starts worker goroutines and processes work items until the context is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting extraction workers",
		"workers", r.workers, "poll_timeout", r.pollTimeout)

	// Derive a cancellable context so the first fatal error stops all workers.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	dequeueFailures := 0
	for ctx.Err() == nil {
		item, err := r.queue.Dequeue(ctx, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !Retryable(err) {
				return fmt.Errorf("dequeue work item: %w", err)
			}
			// A queue blip must not take down the pool; back off and poll again.
			delay := backoffFor(r.dequeueBackoff, min(dequeueFailures, maxDequeueBackoffShift))
			dequeueFailures++
			r.logger.WarnContext(ctx, "dequeue failed, backing off",
				"delay", delay, "failures", dequeueFailures, "error", err)
			if serr := sleepContext(ctx, delay); serr != nil {
				return nil
			}
			continue
		}
		dequeueFailures = 0
		if item == nil {
			continue
		}
		if perr := r.pipeline.Process(ctx, item); perr != nil {
			r.logger.ErrorContext(ctx, "process work item",
				"job_id", item.JobID, "message_id", item.MessageID, "error", perr)
		}
	}
	return nil
}
