package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/document"
)

// Repository persists import records. State transitions are compare-and-swap
// updates guarded on the current status columns, so a racing transition loses
// cleanly instead of overwriting.
type Repository interface {
	Create(ctx context.Context, rec *ImportRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ImportRecord, error)
	// CompleteProcessing moves pending -> completed, storing the extraction
	// output and the diff. Returns WriteConflict when the import already
	// left processing-pending.
	CompleteProcessing(ctx context.Context, id uuid.UUID, extracted, snapshot document.Document, conflicts []Conflict, confidence *float64) (*ImportRecord, error)
	// FailProcessing moves pending -> failed, storing the error text.
	FailProcessing(ctx context.Context, id uuid.UUID, errText string) error
	// FinalizeReview moves review status pending -> terminal. It returns
	// AlreadyReviewed when the import already left review_pending, which
	// serializes concurrent decide calls.
	FinalizeReview(ctx context.Context, id uuid.UUID, status, reviewerID string, approved, rejected []string, notes string, reviewedAt time.Time) error
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*ImportRecord, int, error)
}
