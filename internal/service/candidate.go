package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// DefaultCandidateQuery selects messages that look like invoices: an
// attachment plus an invoice-ish subject.
const DefaultCandidateQuery = "has:attachment subject:(invoice OR receipt OR bill)"

// Candidate listing bounds.
const (
	DefaultCandidateMax = 50
	MaxCandidateMax     = 100
)

// CandidateService lists message previews that are worth dispatching. It only
// reads from the source; nothing is persisted or labeled here.
type CandidateService struct {
	source core.MessageSource
	logger *slog.Logger
}

// NewCandidateService constructs a new CandidateService.
func NewCandidateService(source core.MessageSource, logger *slog.Logger) *CandidateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateService{source: source, logger: logger}
}

// List returns up to max candidate previews matching query. An empty query
// falls back to DefaultCandidateQuery; max is clamped into [1, 100] with a
// default of 50.
func (s *CandidateService) List(ctx context.Context, query string, max int) ([]*model.CandidateMessage, error) {
	if max < 0 {
		return nil, apperrors.ValidationField("max", fmt.Sprintf("max %d must not be negative", max))
	}
	if max == 0 {
		max = DefaultCandidateMax
	}
	if max > MaxCandidateMax {
		max = MaxCandidateMax
	}
	if strings.TrimSpace(query) == "" {
		query = DefaultCandidateQuery
	}

	candidates, err := s.source.Search(ctx, query, max)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	s.logger.DebugContext(ctx, "listed candidates", "query", query, "count", len(candidates))
	return candidates, nil
}
