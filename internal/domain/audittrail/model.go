// Package audittrail keeps the immutable record of every field write applied
// to current patient data by an approved historical import. Entries are only
// ever appended, inside the same transaction that performs the write, so the
// trail and the data can never disagree.
package audittrail

import (
	"time"

	"github.com/google/uuid"
)

// Operation kinds for an applied entry.
const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// AppliedRecordEntry describes one field-level change applied to current
// patient data. PreviousData holds the value read at the start of the
// applying transaction; NewData holds the extracted value that replaced it.
type AppliedRecordEntry struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ImportID       uuid.UUID   `db:"import_id" json:"import_id"`
	TargetStore    string      `db:"target_store" json:"target_store"`
	TargetRecordID uuid.UUID   `db:"target_record_id" json:"target_record_id"`
	FieldPath      string      `db:"field_path" json:"field_path"`
	Operation      string      `db:"operation" json:"operation"`
	PreviousData   interface{} `db:"previous_data" json:"previous_data"`
	NewData        interface{} `db:"new_data" json:"new_data"`
	AppliedBy      string      `db:"applied_by" json:"applied_by"`
	AppliedAt      time.Time   `db:"applied_at" json:"applied_at"`
}
