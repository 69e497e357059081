package config

import "strings"

// MetricsConfig controls emission of StatsD metrics from the extraction worker.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// StatsdAddress is the UDP host:port of the StatsD daemon.
	StatsdAddress string `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises the address and disables emission when it is missing.
func (m *MetricsConfig) Sanitize() {
	m.StatsdAddress = strings.TrimSpace(m.StatsdAddress)
	if m.StatsdAddress == "" {
		m.Enabled = false
	}
}

// IsEnabled reports whether metrics emission is active after sanitisation.
func (m *MetricsConfig) IsEnabled() bool {
	return m.Enabled && m.StatsdAddress != ""
}
