package model

import "time"

// AuditRecord captures one manual field correction. The pipeline never appends
// these: direct extracted/normalized writes are reserved for first-write paths
// (invoice creation and pre-review reconciliation), which bypass audit.
type AuditRecord struct {
	ID        string    `json:"audit_id"   db:"id"`
	InvoiceID string    `json:"invoice_id" db:"invoice_id"`
	FieldName string    `json:"field_name" db:"field_name"`
	OldValue  string    `json:"old_value"  db:"old_value"`
	NewValue  string    `json:"new_value"  db:"new_value"`
	Actor     string    `json:"actor"      db:"actor"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}
