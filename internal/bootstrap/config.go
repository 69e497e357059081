package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/finlens/invoice-inbox/config"
)

// InitLogger configures the process-wide structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads .env (when present) and the process environment into
// an AppConfig, then sanitizes derived defaults.
func LoadConfig() (*config.AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &config.AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig checks that the SERVICES list names known modes
// and that each enabled mode has the configuration it needs.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	modes, err := config.ParseServices(cfg.Services)
	if err != nil {
		return err
	}
	if modes[config.ServiceModeWorker] {
		if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" || cfg.Gmail.RefreshToken == "" {
			return errors.New("worker service requires GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET and GMAIL_REFRESH_TOKEN")
		}
	}
	return nil
}

// GetEnabledServices returns the enabled service mode names in a stable
// order for logging.
func GetEnabledServices(cfg *config.AppConfig) []string {
	modes, err := cfg.GetEnabledServices()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(modes))
	for _, mode := range config.ValidServiceModes() {
		if modes[mode] {
			out = append(out, string(mode))
		}
	}
	return out
}
