// Package devseed populates the vendor and project registries with sample
// entries for local development. It is only invoked in dev mode.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/data"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB       *sql.DB
	registry core.RegistryRepository
}

// NewServices constructs the repositories required for seeding using the
// provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:       db,
		registry: data.NewRegistryRepo(db),
	}
}

// Run executes the development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedRegistryEntries(ctx, svcs.registry, defaultVendorSeeds(), logger)
	failures += seedRegistryEntries(ctx, svcs.registry, defaultProjectSeeds(), logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedRegistryEntries(
	ctx context.Context,
	repo core.RegistryRepository,
	entries []*model.RegistryEntry,
	logger *slog.Logger,
) int {
	failures := 0
	for _, entry := range entries {
		created, err := createRegistryEntry(ctx, repo, entry)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to create registry entry",
					"kind", entry.Kind, "name", entry.CanonicalName, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "registry entry already exists"
			if created {
				msg = "created registry entry"
			}
			logger.InfoContext(ctx, msg, "kind", entry.Kind, "name", entry.CanonicalName)
		}
	}
	return failures
}

func createRegistryEntry(ctx context.Context, repo core.RegistryRepository, entry *model.RegistryEntry) (bool, error) {
	if _, err := repo.Create(ctx, entry); err != nil {
		if apperrors.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func defaultVendorSeeds() []*model.RegistryEntry {
	return []*model.RegistryEntry{
		{
			Kind:          model.RegistryVendor,
			CanonicalName: "ACME Supplies",
			Aliases:       []string{"ACME Supplies Pvt Ltd", "ACME Suppliers"},
			Metadata:      vendorMetadata("NL001234567B01", "net-30"),
		},
		{
			Kind:          model.RegistryVendor,
			CanonicalName: "Globex Office Solutions",
			Aliases:       []string{"Globex", "Globex B.V."},
			Metadata:      vendorMetadata("NL009876543B01", "net-14"),
		},
		{
			Kind:          model.RegistryVendor,
			CanonicalName: "Initech Hosting",
			Aliases:       []string{"Initech", "Initech Cloud Services"},
			Metadata:      vendorMetadata("DE813495123", "net-30"),
		},
		{
			Kind:          model.RegistryVendor,
			CanonicalName: "Stark Industrial Parts",
			Aliases:       []string{"Stark Industrial"},
		},
	}
}

func defaultProjectSeeds() []*model.RegistryEntry {
	return []*model.RegistryEntry{
		{
			Kind:          model.RegistryProject,
			CanonicalName: "Warehouse Expansion",
			Aliases:       []string{"WH Expansion", "Warehouse Phase 2"},
		},
		{
			Kind:          model.RegistryProject,
			CanonicalName: "Office Refit 2025",
			Aliases:       []string{"Office Refit"},
		},
		{
			Kind:          model.RegistryProject,
			CanonicalName: "Cloud Migration",
			Aliases:       []string{"Infra Migration"},
		},
	}
}

func vendorMetadata(vatID, paymentTerms string) json.RawMessage {
	payload := struct {
		VATID        string `json:"vat_id"`
		PaymentTerms string `json:"payment_terms"`
	}{VATID: vatID, PaymentTerms: paymentTerms}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
