// Package fieldcatalog tracks which clinical data fields are in use by which
// medical specialties. Fields accumulate usage organically across
// specialty-specific forms; once a field is referenced by two or more
// specialties it becomes a candidate for promotion into a shared normalized
// store.
package fieldcatalog

import (
	"time"
)

// Field types a definition may declare.
const (
	TypeText       = "text"
	TypeNumber     = "number"
	TypeDate       = "date"
	TypeBoolean    = "boolean"
	TypeSelect     = "select"
	TypeMultiline  = "multiline"
	TypeStructured = "structured"
)

var validFieldTypes = map[string]bool{
	TypeText: true, TypeNumber: true, TypeDate: true, TypeBoolean: true,
	TypeSelect: true, TypeMultiline: true, TypeStructured: true,
}

// ValidFieldType reports whether t is a declared field type.
func ValidFieldType(t string) bool { return validFieldTypes[t] }

// FieldDefinition is the catalog entry for one field, keyed by its stable
// field name. DisplayLabel and FieldType are first-writer-wins: they are
// never overwritten after creation, so later registrations cannot silently
// reinterpret already-migrated data.
type FieldDefinition struct {
	FieldName    string                 `db:"field_name" json:"field_name"`
	DisplayLabel string                 `db:"display_label" json:"display_label"`
	FieldType    string                 `db:"field_type" json:"field_type"`
	Validation   map[string]interface{} `db:"validation" json:"validation,omitempty"`
	Specialties  []string               `db:"specialties" json:"specialties"`
	UsageCount   int64                  `db:"usage_count" json:"usage_count"`
	Promoted     bool                   `db:"promoted" json:"promoted"`
	TargetStore  *string                `db:"target_store" json:"target_store,omitempty"`
	TargetColumn *string                `db:"target_column" json:"target_column,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	LastUsedAt   time.Time              `db:"last_used_at" json:"last_used_at"`
}

// UsedBy reports whether the definition already references the specialty.
func (f *FieldDefinition) UsedBy(specialty string) bool {
	for _, s := range f.Specialties {
		if s == specialty {
			return true
		}
	}
	return false
}

// MigrationCandidate is a field referenced by multiple specialties that has
// not yet been promoted. It is derived, never stored.
type MigrationCandidate struct {
	FieldName   string   `json:"field_name"`
	FieldType   string   `json:"field_type"`
	Specialties []string `json:"specialties"`
	UsageCount  int64    `json:"usage_count"`
}
