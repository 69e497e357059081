// Package metrics standardises the metric names and tags the service emits.
package metrics

import (
	"errors"
	"time"

	apperrors "github.com/finlens/invoice-inbox/internal/errors"
	"github.com/finlens/invoice-inbox/internal/observability/statsd"
)

// Outcome tag values for extraction job metrics.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeSkipped    = "skipped"
)

// ExtractionMetric captures one finished extraction job for emission.
type ExtractionMetric struct {
	Outcome  string
	Duration time.Duration
	Err      error
}

// EmitExtraction emits the per-job counter and duration timing. Failed
// jobs carry the application error code as an extra tag so dashboards
// can split transient from permanent failures.
func EmitExtraction(sink statsd.Sink, in ExtractionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"outcome": in.Outcome}
	if in.Err != nil && in.Outcome == OutcomeFailed {
		if code := errorCode(in.Err); code != "" {
			tags["error_code"] = code
		}
	}

	sink.Count("extraction.jobs", 1, tags)
	if in.Duration > 0 {
		sink.Timing("extraction.duration", in.Duration, cloneTags(tags))
	}
}

func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return ""
}

func cloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
