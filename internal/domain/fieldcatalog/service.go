package fieldcatalog

import (
	"context"
	"strings"

	"github.com/clinrec/clinrec/pkg/errs"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register records a usage of fieldName by specialty. Creation is
// first-writer-wins for label and type; every call increments the usage
// counter and unions the specialty into the set. A malformed field type is
// rejected before any mutation.
func (s *Service) Register(ctx context.Context, fieldName, specialty, displayLabel, fieldType string) (*FieldDefinition, error) {
	fieldName = strings.TrimSpace(fieldName)
	specialty = strings.TrimSpace(specialty)
	if fieldName == "" {
		return nil, errs.New(errs.KindInvalidArgument, "field name is required")
	}
	if specialty == "" {
		return nil, errs.New(errs.KindInvalidArgument, "specialty is required")
	}
	if fieldType == "" {
		fieldType = TypeText
	}
	if !ValidFieldType(fieldType) {
		return nil, errs.Newf(errs.KindInvalidFieldType, "unknown field type %q", fieldType).WithSubject(fieldName)
	}
	if displayLabel == "" {
		displayLabel = fieldName
	}
	return s.repo.Register(ctx, fieldName, specialty, displayLabel, fieldType)
}

// Get returns the definition for fieldName.
func (s *Service) Get(ctx context.Context, fieldName string) (*FieldDefinition, error) {
	f, err := s.repo.GetByName(ctx, fieldName)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "field definition not found").WithSubject(fieldName)
	}
	return f, err
}

// Promote marks the field as migrated to the given normalized store and
// column. It only records intent; moving historical data is a separate
// migration. Promoting twice fails with AlreadyPromoted.
func (s *Service) Promote(ctx context.Context, fieldName, targetStore, targetColumn string) (*FieldDefinition, error) {
	if targetStore == "" || targetColumn == "" {
		return nil, errs.New(errs.KindInvalidArgument, "target store and column are required")
	}
	f, err := s.repo.Promote(ctx, fieldName, targetStore, targetColumn)
	if errs.Is(err, errs.KindNotFound) {
		return nil, errs.New(errs.KindNotFound, "field definition not found").WithSubject(fieldName)
	}
	return f, err
}

// ListCandidates returns the fields that have organically spread across two
// or more specialties and are not yet promoted, ordered by usage count
// descending with ties broken by field name.
func (s *Service) ListCandidates(ctx context.Context) ([]*MigrationCandidate, error) {
	return s.repo.ListCandidates(ctx)
}

// List returns definitions matching the given filters.
func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*FieldDefinition, int, error) {
	return s.repo.List(ctx, params, limit, offset)
}
