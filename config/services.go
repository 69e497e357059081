package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the extraction worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReconciler runs the periodic reconciliation sweep.
	ServiceModeReconciler ServiceMode = "reconciler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReconciler,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReconciler:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reconciler)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains extraction worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// PollTimeout bounds one blocking queue read so workers notice shutdown.
	PollTimeout time.Duration `env:"WORKER_POLL_TIMEOUT" envDefault:"5s"`

	// MaxAttempts is the number of tries for retryable failures per job.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration `env:"WORKER_RETRY_BACKOFF" envDefault:"1s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollTimeout < time.Second {
		w.PollTimeout = time.Second
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.RetryBackoff < 100*time.Millisecond {
		w.RetryBackoff = 100 * time.Millisecond
	}
}

// ReconcilerConfig contains periodic reconciler configuration. The sweep
// re-runs matching for invoices still in review so registry additions
// retroactively resolve them.
type ReconcilerConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"30s"`

	// BatchSize is the maximum number of invoices per sweep.
	BatchSize int `env:"RECONCILER_BATCH_SIZE" envDefault:"50"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval < 5*time.Second {
		r.Interval = 5 * time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 500 {
		r.BatchSize = 500
	}
}
