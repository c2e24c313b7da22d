// Package identity is the actor directory: it resolves an actor reference to
// a role so callers can authorize requests. The platform itself is
// authorization-agnostic beyond the role check; everything richer lives in
// the surrounding systems.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Actor roles.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
	RoleSystem    = "system"
)

var validRoles = map[string]bool{
	RolePatient: true, RoleClinician: true, RoleSystem: true,
}

// ValidRole reports whether r is a known actor role.
func ValidRole(r string) bool { return validRoles[r] }

// Actor is one authenticated principal: a patient, a clinician, or an
// automated system account.
type Actor struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ExternalRef string    `db:"external_ref" json:"external_ref"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Role        string    `db:"role" json:"role"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
