package worker

import (
	"context"
	"time"

	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// Retry policy for one work item. The backoff doubles per attempt.
const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
)

// Retryable reports whether a pipeline failure is worth another attempt.
// Transient I/O failures and timeouts are retried; authorization rejections
// (unavailable), validation, extraction, and not found errors are final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.IsTransient(err) || apperrors.IsTimeout(err)
}

// backoffFor returns the delay before retrying after the given zero-based
// attempt: base, 2*base, 4*base, ...
func backoffFor(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

// sleepContext waits for d or until the context ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
