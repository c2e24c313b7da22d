package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinrec/clinrec/internal/platform/document"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Snapshot returns the patient's merged current data across all namespaces.
func (s *Service) Snapshot(ctx context.Context, patientID uuid.UUID) (document.Document, error) {
	return s.store.Snapshot(ctx, patientID)
}

// GetNamespace returns one namespace row of the patient's current data.
func (s *Service) GetNamespace(ctx context.Context, patientID uuid.UUID, namespace string) (*PatientRecord, error) {
	return s.store.GetNamespace(ctx, patientID, namespace)
}
