// Package records stores the current clinical data for each patient as
// namespaced JSON documents. A namespace is the root key of a field path
// ("vitals", "medications", "labs", ...); each patient/namespace pair is one
// row, and the merged rows form the patient's snapshot that imports are
// reconciled against.
package records

import (
	"time"

	"github.com/google/uuid"
)

// StoreName is the logical store recorded in audit entries for writes that
// land in this package's tables.
const StoreName = "patient_record"

// PatientRecord is one namespaced document of current data.
type PatientRecord struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	PatientID uuid.UUID   `db:"patient_id" json:"patient_id"`
	Namespace string      `db:"namespace" json:"namespace"`
	Data      interface{} `db:"data" json:"data"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
