// Package staff describes the clinic users that take part in coordination.
// Accounts themselves live in the front-desk application; this package only
// carries the identity fields the coordination layer needs.
package staff

import (
	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/platform/fault"
)

type Role string

const (
	RoleNurse     Role = "nurse"
	RoleDoctor    Role = "doctor"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

var validRoles = map[Role]bool{
	RoleNurse: true, RoleDoctor: true, RoleAssistant: true, RoleAdmin: true,
}

func (r Role) Valid() bool {
	return validRoles[r]
}

// User is the acting staff member of a workstation.
type User struct {
	ID   uuid.UUID `json:"user_id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

func (u User) Validate() error {
	if u.ID == uuid.Nil {
		return fault.Invalidf("user_id is required")
	}
	if u.Name == "" {
		return fault.Invalidf("name is required")
	}
	if !u.Role.Valid() {
		return fault.Invalidf("invalid role: %q", u.Role)
	}
	return nil
}
