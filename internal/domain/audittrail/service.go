package audittrail

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one applied-change entry. Callers run this inside the same
// transaction as the field write so the trail cannot outlive a rollback.
func (s *Service) Record(ctx context.Context, e *AppliedRecordEntry) error {
	return s.repo.Append(ctx, e)
}

// ListByImport returns every entry written while applying the import's
// approved paths, ordered by field path.
func (s *Service) ListByImport(ctx context.Context, importID uuid.UUID) ([]*AppliedRecordEntry, error) {
	return s.repo.ListByImport(ctx, importID)
}
