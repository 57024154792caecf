package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// LockStatus is the advisory lock state of a room as seen by one user.
type LockStatus string

const (
	StatusUnlocked  LockStatus = "unlocked"
	StatusExclusive LockStatus = "exclusive"
	StatusShared    LockStatus = "shared"
)

// Room is a physical consultation room ("salle"). Occupant fields are all set
// or all nil.
type Room struct {
	ID             int         `db:"id" json:"room_id"`
	Name           string      `db:"name" json:"name"`
	IsActive       bool        `db:"is_active" json:"is_active"`
	OccupantUserID *uuid.UUID  `db:"occupant_user_id" json:"occupant_user_id,omitempty"`
	OccupantName   *string     `db:"occupant_name" json:"occupant_name,omitempty"`
	OccupantRole   *staff.Role `db:"occupant_role" json:"occupant_role,omitempty"`
	SessionLabel   *string     `db:"session_label" json:"session_label,omitempty"`
	LockedAt       *time.Time  `db:"locked_at" json:"locked_at,omitempty"`
	Shadows        []Shadow    `json:"shadows,omitempty"`
}

func (r *Room) Locked() bool {
	return r.OccupantUserID != nil
}

func (r *Room) OccupiedBy(userID uuid.UUID) bool {
	return r.OccupantUserID != nil && *r.OccupantUserID == userID
}

// Occupant returns the occupant's display name, or "" when unlocked.
func (r *Room) Occupant() string {
	if r.OccupantName == nil {
		return ""
	}
	return *r.OccupantName
}

func (r *Room) HasShadow(userID uuid.UUID) bool {
	for _, s := range r.Shadows {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// StatusFor reports the lock status from viewer's side. An unoccupied room is
// unlocked even if shadow sessions linger. Anyone but a sole occupant sees
// the room as shared. uuid.Nil views the room from outside.
func (r *Room) StatusFor(viewer uuid.UUID) LockStatus {
	if !r.Locked() {
		return StatusUnlocked
	}
	others := 0
	for _, s := range r.Shadows {
		if s.UserID != viewer {
			others++
		}
	}
	switch {
	case viewer == uuid.Nil && others == 0:
		return StatusExclusive
	case r.OccupiedBy(viewer) && others == 0:
		return StatusExclusive
	default:
		return StatusShared
	}
}

// Users returns the occupant followed by shadow users, without duplicates.
func (r *Room) Users() []uuid.UUID {
	var out []uuid.UUID
	seen := map[uuid.UUID]bool{}
	if r.OccupantUserID != nil {
		out = append(out, *r.OccupantUserID)
		seen[*r.OccupantUserID] = true
	}
	for _, s := range r.Shadows {
		if !seen[s.UserID] {
			out = append(out, s.UserID)
			seen[s.UserID] = true
		}
	}
	return out
}

func (r *Room) Validate() error {
	if r.ID <= 0 {
		return fault.Invalidf("room id must be positive")
	}
	if r.Name == "" {
		return fault.Invalidf("name is required")
	}
	return nil
}

// Session is one user's claim on a room.
type Session struct {
	UserID   uuid.UUID  `db:"user_id" json:"user_id"`
	UserName string     `db:"user_name" json:"user_name"`
	Role     staff.Role `db:"role" json:"role"`
	Label    string     `db:"session_label" json:"session_label,omitempty"`
	Since    time.Time  `db:"joined_at" json:"since"`
}

func newSession(u staff.User, label string, at time.Time) Session {
	return Session{UserID: u.ID, UserName: u.Name, Role: u.Role, Label: label, Since: at}
}

// Shadow is a secondary session on a room occupied by someone else. It does
// not hold the lock: only the occupant's logout frees the room.
type Shadow struct {
	RoomID int `db:"room_id" json:"room_id"`
	Session
}

// LockResult is the outcome of a lock or check.
type LockResult struct {
	Room    *Room      `json:"room"`
	Status  LockStatus `json:"status"`
	Warning string     `json:"warning,omitempty"`
}
