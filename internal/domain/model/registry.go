package model

import (
	"encoding/json"
	"time"
)

// RegistryKind distinguishes the two canonical-name registries.
type RegistryKind string

const (
	// RegistryVendor entries resolve extracted vendor names.
	RegistryVendor RegistryKind = "vendor"
	// RegistryProject entries resolve extracted project names or codes.
	RegistryProject RegistryKind = "project"
)

// Valid returns true if the RegistryKind is valid.
func (k RegistryKind) Valid() bool {
	return k == RegistryVendor || k == RegistryProject
}

// RegistryEntry is a canonical vendor or project with its aliases. Owned
// externally; the reconciliation engine only reads these.
type RegistryEntry struct {
	ID            int64           `json:"id"             db:"id"`
	Kind          RegistryKind    `json:"kind"           db:"kind"`
	CanonicalName string          `json:"canonical_name" db:"canonical_name"`
	Aliases       []string        `json:"aliases"        db:"aliases"`
	Metadata      json.RawMessage `json:"metadata"       db:"metadata"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}

// Names returns the canonical name followed by all aliases.
func (e *RegistryEntry) Names() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.CanonicalName)
	names = append(names, e.Aliases...)
	return names
}
