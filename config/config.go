package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and queue configuration
//   - gmail.go: Mailbox access and candidate selection
//   - storage.go: Object storage and OCR configuration
//   - services.go: Service mode, worker, and reconciler configuration
type AppConfig struct {
	// IsDev controls development mode behavior. Set DEV=true for
	// development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Mailbox configuration
	Gmail GmailConfig `envPrefix:"GMAIL_"`

	// Object storage configuration
	Storage StorageConfig `envPrefix:"STORAGE_"`

	// OCR configuration
	OCR OCRConfig `envPrefix:"OCR_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"worker,reconciler"`

	// Extraction worker configuration
	Worker WorkerConfig

	// Periodic reconciler configuration
	Reconciler ReconcilerConfig

	// StatsD metrics emission configuration
	Metrics MetricsConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Gmail.Sanitize()
	c.Worker.Sanitize()
	c.Reconciler.Sanitize()
	c.Metrics.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsWorkerEnabled returns true if the extraction worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReconcilerEnabled returns true if the periodic reconciler is enabled.
func (c *AppConfig) IsReconcilerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReconciler]
}
