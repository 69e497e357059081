package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
			expectError: false,
		},
		{
			name:  "single service - reconciler",
			input: "reconciler",
			expected: map[ServiceMode]bool{
				ServiceModeReconciler: true,
			},
			expectError: false,
		},
		{
			name:  "both services",
			input: "worker,reconciler",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:     true,
				ServiceModeReconciler: true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " worker , reconciler ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:     true,
				ServiceModeReconciler: true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "worker,worker,reconciler",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:     true,
				ServiceModeReconciler: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "worker,invalid-service",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name               string
		services           string
		expectedWorker     bool
		expectedReconciler bool
	}{
		{
			name:               "default - both",
			services:           "worker,reconciler",
			expectedWorker:     true,
			expectedReconciler: true,
		},
		{
			name:               "worker only",
			services:           "worker",
			expectedWorker:     true,
			expectedReconciler: false,
		},
		{
			name:               "reconciler only",
			services:           "reconciler",
			expectedWorker:     false,
			expectedReconciler: true,
		},
		{
			name:               "invalid config disables everything",
			services:           "invalid-service",
			expectedWorker:     false,
			expectedReconciler: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsWorkerEnabled() != tt.expectedWorker {
				t.Errorf("IsWorkerEnabled(): expected %v, got %v", tt.expectedWorker, cfg.IsWorkerEnabled())
			}

			if cfg.IsReconcilerEnabled() != tt.expectedReconciler {
				t.Errorf(
					"IsReconcilerEnabled(): expected %v, got %v",
					tt.expectedReconciler,
					cfg.IsReconcilerEnabled(),
				)
			}
		})
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("REDIS_URI", "redis.internal:6379")
	t.Setenv("REDIS_QUEUE_KEY", "custom_queue")
	t.Setenv("GMAIL_CLIENT_ID", "client-id")
	t.Setenv("GMAIL_REFRESH_TOKEN", "refresh-token")
	t.Setenv("STORAGE_BUCKET", "invoices-prod")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("RECONCILER_INTERVAL", "1m")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("expected db host db.internal, got %q", cfg.Postgres.Host)
	}
	if cfg.Postgres.Port != 5433 {
		t.Errorf("expected db port 5433, got %d", cfg.Postgres.Port)
	}
	if cfg.Redis.URI != "redis.internal:6379" {
		t.Errorf("expected redis uri redis.internal:6379, got %q", cfg.Redis.URI)
	}
	if cfg.Redis.QueueKey != "custom_queue" {
		t.Errorf("expected queue key custom_queue, got %q", cfg.Redis.QueueKey)
	}
	if cfg.Gmail.ClientID != "client-id" {
		t.Errorf("expected gmail client id, got %q", cfg.Gmail.ClientID)
	}
	if cfg.Storage.Bucket != "invoices-prod" {
		t.Errorf("expected storage bucket invoices-prod, got %q", cfg.Storage.Bucket)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("expected worker concurrency 8, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Reconciler.Interval != time.Minute {
		t.Errorf("expected reconciler interval 1m, got %v", cfg.Reconciler.Interval)
	}
}

func TestWorkerConfig_Sanitize(t *testing.T) {
	cfg := WorkerConfig{
		Concurrency:  0,
		PollTimeout:  0,
		MaxAttempts:  0,
		RetryBackoff: 0,
	}

	cfg.Sanitize()

	if cfg.Concurrency != 1 {
		t.Errorf("expected concurrency clamped to 1, got %d", cfg.Concurrency)
	}
	if cfg.PollTimeout != time.Second {
		t.Errorf("expected poll timeout clamped to 1s, got %v", cfg.PollTimeout)
	}
	if cfg.MaxAttempts != 1 {
		t.Errorf("expected max attempts clamped to 1, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryBackoff != 100*time.Millisecond {
		t.Errorf("expected retry backoff clamped to 100ms, got %v", cfg.RetryBackoff)
	}
}

func TestReconcilerConfig_Sanitize(t *testing.T) {
	cfg := ReconcilerConfig{Interval: time.Second, BatchSize: 100000}

	cfg.Sanitize()

	if cfg.Interval != 5*time.Second {
		t.Errorf("expected interval clamped to 5s, got %v", cfg.Interval)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("expected batch size clamped to 500, got %d", cfg.BatchSize)
	}
}

func TestMetricsConfig_Sanitize(t *testing.T) {
	cfg := MetricsConfig{Enabled: true, StatsdAddress: "  "}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Error("expected metrics disabled when address is empty")
	}
	if cfg.IsEnabled() {
		t.Error("expected IsEnabled false after sanitize")
	}

	cfg = MetricsConfig{Enabled: true, StatsdAddress: " 10.0.0.1:8125 "}
	cfg.Sanitize()
	if cfg.StatsdAddress != "10.0.0.1:8125" {
		t.Errorf("expected trimmed address, got %q", cfg.StatsdAddress)
	}
	if !cfg.IsEnabled() {
		t.Error("expected IsEnabled true with address present")
	}
}

func TestGmailConfig_Sanitize(t *testing.T) {
	cfg := GmailConfig{Query: "  ", ProcessedLabel: ""}

	cfg.Sanitize()

	if cfg.Query != DefaultCandidateQuery {
		t.Errorf("expected default query, got %q", cfg.Query)
	}
	if cfg.ProcessedLabel != "ProcessedByAgent" {
		t.Errorf("expected default label, got %q", cfg.ProcessedLabel)
	}
}
