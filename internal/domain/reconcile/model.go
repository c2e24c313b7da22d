// Package reconcile owns the lifecycle of a historical import: extraction of
// structured data from uploaded legacy documents, a field-by-field diff
// against the patient's current record, and a field-path-granular review that
// applies only the approved values.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/document"
)

// Processing status of the extraction pipeline.
const (
	ProcessingPending   = "pending"
	ProcessingFailed    = "failed"
	ProcessingCompleted = "completed"
)

// Review status of a successfully processed import. Terminal statuses are
// never left once set; a re-submission creates a new import.
const (
	ReviewPending           = "pending"
	ReviewApproved          = "approved"
	ReviewRejected          = "rejected"
	ReviewPartiallyApproved = "partially_approved"
)

// Conflict kinds produced by the differ.
const (
	// KindMissingCurrent marks a path present only in the extracted
	// document. It is an addition candidate, approvable like a conflict.
	KindMissingCurrent = "missing_current"
	// KindMissingExtracted marks a path present only in the current record.
	// Such paths require no action and the differ never emits them.
	KindMissingExtracted = "missing_extracted"
	KindValueMismatch    = "value_mismatch"
	KindCloseMatch       = "close_match"
)

// SourceFile describes one uploaded document an import was built from. The
// bytes live in external storage; only the locator is kept here.
type SourceFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storage_key"`
}

// Conflict is one field-path-level discrepancy between the current snapshot
// and the extracted document. Conflicts are derived, recomputed from the two
// documents, never hand-edited.
type Conflict struct {
	FieldPath      string      `json:"field_path"`
	Kind           string      `json:"kind"`
	CurrentValue   interface{} `json:"current_value"`
	ExtractedValue interface{} `json:"extracted_value"`
}

// ImportRecord is one historical-import attempt for a patient.
type ImportRecord struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	PatientID        uuid.UUID         `db:"patient_id" json:"patient_id"`
	SubmittedBy      string            `db:"submitted_by" json:"submitted_by"`
	SourceFiles      []SourceFile      `db:"source_files" json:"source_files"`
	ExtractedDoc     document.Document `db:"extracted_doc" json:"extracted_doc,omitempty"`
	CurrentSnapshot  document.Document `db:"current_snapshot" json:"current_snapshot,omitempty"`
	Conflicts        []Conflict        `db:"conflicts" json:"conflicts"`
	HasConflicts     bool              `db:"has_conflicts" json:"has_conflicts"`
	ConfidenceScore  *float64          `db:"confidence_score" json:"confidence_score,omitempty"`
	ProcessingStatus string            `db:"processing_status" json:"processing_status"`
	ProcessingError  *string           `db:"processing_error" json:"processing_error,omitempty"`
	ReviewStatus     string            `db:"review_status" json:"review_status"`
	ReviewedBy       *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ApprovedPaths    []string          `db:"approved_paths" json:"approved_paths"`
	RejectedPaths    []string          `db:"rejected_paths" json:"rejected_paths"`
	ReviewNotes      *string           `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// Status collapses the two status columns into the single lifecycle state
// shown to callers.
func (r *ImportRecord) Status() string {
	switch r.ProcessingStatus {
	case ProcessingPending:
		return "processing_pending"
	case ProcessingFailed:
		return "processing_failed"
	}
	if r.ReviewStatus == ReviewPending {
		return "review_pending"
	}
	return r.ReviewStatus
}

// Reviewed reports whether the import has reached a terminal review status.
func (r *ImportRecord) Reviewed() bool {
	return r.ProcessingStatus == ProcessingCompleted && r.ReviewStatus != ReviewPending
}

// ConflictPaths returns the set of paths eligible for approval or rejection.
func (r *ImportRecord) ConflictPaths() map[string]Conflict {
	out := make(map[string]Conflict, len(r.Conflicts))
	for _, c := range r.Conflicts {
		out[c.FieldPath] = c
	}
	return out
}
