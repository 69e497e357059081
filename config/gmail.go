package config

import "strings"

// DefaultCandidateQuery selects messages that look like invoices.
const DefaultCandidateQuery = "has:attachment subject:(invoice OR receipt OR bill)"

// GmailConfig contains mailbox access and candidate selection configuration.
type GmailConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RefreshToken string `env:"REFRESH_TOKEN"`

	// Query is the default candidate selection query.
	Query string `env:"QUERY"`

	// ProcessedLabel is applied to messages after successful extraction.
	ProcessedLabel string `env:"PROCESSED_LABEL" envDefault:"ProcessedByAgent"`

	// LabelAfterProcessing controls whether dispatched jobs label their
	// message at the source once extraction succeeds.
	LabelAfterProcessing bool `env:"LABEL_AFTER_PROCESSING" envDefault:"true"`
}

// Sanitize applies guardrails to mailbox configuration values.
func (g *GmailConfig) Sanitize() {
	if strings.TrimSpace(g.Query) == "" {
		g.Query = DefaultCandidateQuery
	}
	if strings.TrimSpace(g.ProcessedLabel) == "" {
		g.ProcessedLabel = "ProcessedByAgent"
	}
}
