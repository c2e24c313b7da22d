package fieldcatalog

import (
	"context"
)

// Repository persists field definitions keyed by field name.
type Repository interface {
	// Register upserts a definition: on first registration it creates the
	// definition with the given label and type; afterwards it unions the
	// specialty into the set and increments the usage counter, leaving
	// label and type untouched. The upsert must be atomic so concurrent
	// registrations of the same field never lose counts.
	Register(ctx context.Context, fieldName, specialty, displayLabel, fieldType string) (*FieldDefinition, error)
	GetByName(ctx context.Context, fieldName string) (*FieldDefinition, error)
	// Promote records the target location. Returns the updated definition.
	Promote(ctx context.Context, fieldName, targetStore, targetColumn string) (*FieldDefinition, error)
	// ListCandidates returns unpromoted definitions referenced by >= 2
	// specialties, ordered by usage count descending then field name
	// ascending.
	ListCandidates(ctx context.Context) ([]*MigrationCandidate, error)
	List(ctx context.Context, params map[string]string, limit, offset int) ([]*FieldDefinition, int, error)
}
