package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/document"
)

// WriteResult reports what a field write found and changed.
type WriteResult struct {
	RecordID uuid.UUID
	Previous interface{}
	// Existed is true when the path already held a value, including an
	// explicit null. It distinguishes updates from inserts.
	Existed bool
}

// Store persists namespaced patient documents.
type Store interface {
	// Snapshot merges every namespace row for the patient into a single
	// document keyed by namespace. A patient with no rows yields an empty
	// document, not an error.
	Snapshot(ctx context.Context, patientID uuid.UUID) (document.Document, error)
	GetNamespace(ctx context.Context, patientID uuid.UUID, namespace string) (*PatientRecord, error)
	// Write sets the value at fieldPath within the patient's data, creating
	// the namespace row and any intermediate containers as needed. When
	// called inside a transaction the namespace row is locked for the
	// duration, so concurrent imports against the same row serialize.
	Write(ctx context.Context, patientID uuid.UUID, fieldPath string, value interface{}) (*WriteResult, error)
}
