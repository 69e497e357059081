package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finlens/invoice-inbox/config"
	"github.com/finlens/invoice-inbox/internal/adapters/gmail"
	"github.com/finlens/invoice-inbox/internal/adapters/objectstore"
	"github.com/finlens/invoice-inbox/internal/adapters/textextract"
	"github.com/finlens/invoice-inbox/internal/adapters/worker"
	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/data"
	"github.com/finlens/invoice-inbox/internal/observability/statsd"
	"github.com/finlens/invoice-inbox/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Candidates *service.CandidateService
	Dispatch   *service.DispatchService
	Status     *service.StatusService
	Invoices   *service.InvoiceService
	Reconcile  *service.ReconcileService

	Queue  core.WorkQueue
	Source core.MessageSource
	Store  core.ObjectStore
	Text   core.TextExtractor

	// Metrics is nil when emission is disabled; statsd tolerates that.
	Metrics *statsd.Client

	JobRepo      core.JobRepository
	InvoiceRepo  core.InvoiceRepository
	RegistryRepo core.RegistryRepository
	AuditRepo    core.AuditRepository
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires repositories, adapters, and services from the
// connected infrastructure.
func BuildServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("service deps missing AppConfig")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobRepo := data.NewJobRepo(deps.DB)
	invoiceRepo := data.NewInvoiceRepo(deps.DB)
	registryRepo := data.NewRegistryRepo(deps.DB)
	auditRepo := data.NewAuditRepo(deps.DB)
	queue := data.NewRedisWorkQueue(deps.RedisClient, deps.Config.Redis.QueueKey)

	source, err := gmail.NewClient(ctx, gmail.ClientOptions{
		Config: gmail.Config{
			ClientID:     deps.Config.Gmail.ClientID,
			ClientSecret: deps.Config.Gmail.ClientSecret,
			RefreshToken: deps.Config.Gmail.RefreshToken,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build gmail client: %w", err)
	}

	store, err := objectstore.NewMinioStore(ctx, objectstore.Config{
		Endpoint:  deps.Config.Storage.Endpoint,
		AccessKey: deps.Config.Storage.AccessKey,
		SecretKey: deps.Config.Storage.SecretKey,
		Bucket:    deps.Config.Storage.Bucket,
		UseSSL:    deps.Config.Storage.UseSSL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}

	var ocr textextract.Runner
	if deps.Config.OCR.Enabled {
		ocr = &textextract.TesseractRunner{
			Binary:    deps.Config.OCR.Binary,
			Languages: deps.Config.OCR.Languages,
		}
	}
	text := textextract.New(ocr, logger)

	metricsSink := buildMetricsSink(logger, deps.Config.Metrics)

	reconcile := service.NewReconcileService(service.ReconcileServiceOptions{
		Invoices:    invoiceRepo,
		Registry:    registryRepo,
		Corrections: data.NewCorrectionStore(invoiceRepo, auditRepo),
		Logger:      logger,
	})

	return &ServiceContainer{
		Candidates:   service.NewCandidateService(source, logger),
		Dispatch:     service.NewDispatchService(service.DispatchServiceOptions{Jobs: jobRepo, Queue: queue, Logger: logger}),
		Status:       service.NewStatusService(jobRepo),
		Invoices:     service.NewInvoiceService(invoiceRepo, auditRepo),
		Reconcile:    reconcile,
		Queue:        queue,
		Source:       source,
		Store:        store,
		Text:         text,
		Metrics:      metricsSink,
		JobRepo:      jobRepo,
		InvoiceRepo:  invoiceRepo,
		RegistryRepo: registryRepo,
		AuditRepo:    auditRepo,
	}, nil
}

// buildMetricsSink dials the StatsD endpoint when metrics are enabled. A
// failed dial logs and falls back to no emission rather than blocking startup.
func buildMetricsSink(logger *slog.Logger, cfg config.MetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Options{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "invoiceinbox",
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "extraction worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			workerCfg := deps.cfg.Config.Worker
			pipeline, err := worker.NewPipeline(worker.PipelineOptions{
				Jobs:           deps.cfg.Services.JobRepo,
				Invoices:       deps.cfg.Services.InvoiceRepo,
				Source:         deps.cfg.Services.Source,
				Store:          deps.cfg.Services.Store,
				Text:           deps.cfg.Services.Text,
				Reconciler:     deps.cfg.Services.Reconcile,
				Logger:         deps.logger,
				Metrics:        deps.cfg.Services.Metrics,
				MaxAttempts:    workerCfg.MaxAttempts,
				RetryBackoff:   workerCfg.RetryBackoff,
				ProcessedLabel: deps.cfg.Config.Gmail.ProcessedLabel,
			})
			if err != nil {
				return fmt.Errorf("build pipeline: %w", err)
			}
			runner, err := worker.NewRunner(worker.RunnerOptions{
				Queue:       deps.cfg.Services.Queue,
				Pipeline:    pipeline,
				Logger:      deps.logger,
				Concurrency: workerCfg.Concurrency,
				PollTimeout: workerCfg.PollTimeout,
			})
			if err != nil {
				return fmt.Errorf("build runner: %w", err)
			}
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newReconcilerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReconciler,
		name: "reconciler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			reconcilerCfg := deps.cfg.Config.Reconciler
			return runReconcilerLoop(ctx, reconcilerLoopConfig{
				Service:   deps.cfg.Services.Reconcile,
				Interval:  reconcilerCfg.Interval,
				BatchSize: reconcilerCfg.BatchSize,
				Logger:    deps.logger,
			})
		},
	}
}

// reconcilerLoopConfig groups dependencies for the periodic reconciliation sweep.
type reconcilerLoopConfig struct {
	Service   *service.ReconcileService
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// runReconcilerLoop re-runs reconciliation over invoices still awaiting
// review, so registry additions can resolve previously unmatched vendors.
func runReconcilerLoop(ctx context.Context, cfg reconcilerLoopConfig) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			matched, err := cfg.Service.ReconcilePending(ctx, cfg.BatchSize)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				cfg.Logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
				continue
			}
			if matched > 0 {
				cfg.Logger.InfoContext(ctx, "reconciliation sweep matched invoices", "matched", matched)
			}
		}
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReconcilerBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services == nil {
		return errors.New("service orchestration config missing service container")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	if count < 1 {
		return 1
	}
	return count
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
