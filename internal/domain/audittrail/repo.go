package audittrail

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only: entries are written inside the transaction that
// applies the corresponding field change, and there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *AppliedRecordEntry) error
	ListByImport(ctx context.Context, importID uuid.UUID) ([]*AppliedRecordEntry, error)
}
