package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// Manager implements advisory room locking. A lock never denies entry: a
// second user is admitted as a shadow session and warned.
type Manager struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewManager(repo Repository, log zerolog.Logger) *Manager {
	return &Manager{repo: repo, log: log.With().Str("component", "room").Logger(), now: time.Now}
}

func (m *Manager) CreateRoom(ctx context.Context, r *Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return m.repo.Create(ctx, r)
}

// Lock claims roomID for user. A free room becomes exclusive; a room held by
// someone else is shared and its occupant is left in place.
func (m *Manager) Lock(ctx context.Context, roomID int, user staff.User, label string) (*LockResult, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	r, err := m.repo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, fault.Invalidf("room %d is not active", roomID)
	}

	switch {
	case r.OccupiedBy(user.ID):
		return m.result(r, user.ID), nil

	case !r.Locked():
		if err := m.repo.SetOccupant(ctx, roomID, newSession(user, label, m.now())); err != nil {
			return nil, fmt.Errorf("lock room %d: %w", roomID, err)
		}
		// a former shadow of this room is now its occupant
		if r.HasShadow(user.ID) {
			if err := m.repo.DeleteShadow(ctx, roomID, user.ID); err != nil {
				return nil, fmt.Errorf("lock room %d: %w", roomID, err)
			}
		}

	default:
		sh := &Shadow{RoomID: roomID, Session: newSession(user, label, m.now())}
		for _, s := range r.Shadows {
			if s.UserID == user.ID {
				sh.Since = s.Since
			}
		}
		if err := m.repo.UpsertShadow(ctx, sh); err != nil {
			return nil, fmt.Errorf("share room %d: %w", roomID, err)
		}
		m.log.Info().Int("room_id", roomID).Str("user_id", user.ID.String()).
			Str("occupant", r.Occupant()).Msg("room shared")
	}

	r, err = m.repo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return m.result(r, user.ID), nil
}

func (m *Manager) result(r *Room, viewer uuid.UUID) *LockResult {
	res := &LockResult{Room: r, Status: r.StatusFor(viewer)}
	if res.Status == StatusShared {
		if r.OccupiedBy(viewer) {
			res.Warning = fmt.Sprintf("room %s is shared with %d other session(s); you will share the same data", r.Name, len(r.Shadows))
		} else {
			res.Warning = fmt.Sprintf("room %s is in use by %s; you will share the same data", r.Name, r.Occupant())
		}
	}
	return res
}

// Unlock clears the occupant of roomID whoever holds it. Unknown rooms are a
// no-op.
func (m *Manager) Unlock(ctx context.Context, roomID int) error {
	err := m.repo.ClearOccupant(ctx, roomID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unlock room %d: %w", roomID, err)
	}
	return nil
}

// Leave ends userID's session on roomID: its occupancy if it holds the room,
// its shadow otherwise.
func (m *Manager) Leave(ctx context.Context, roomID int, userID uuid.UUID) error {
	r, err := m.repo.Get(ctx, roomID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if r.OccupiedBy(userID) {
		if err := m.Unlock(ctx, roomID); err != nil {
			return err
		}
	}
	if r.HasShadow(userID) {
		return m.repo.DeleteShadow(ctx, roomID, userID)
	}
	return nil
}

// UnlockAll frees every room userID occupies and drops its shadow sessions.
// Rooms occupied by other users are untouched.
func (m *Manager) UnlockAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := m.repo.ClearOccupiedBy(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("unlock rooms of %s: %w", userID, err)
	}
	if err := m.repo.DeleteShadowsOf(ctx, userID); err != nil {
		return n, fmt.Errorf("drop shadows of %s: %w", userID, err)
	}
	if n > 0 {
		m.log.Info().Str("user_id", userID.String()).Int("rooms", n).Msg("rooms unlocked")
	}
	return n, nil
}

// CheckLock is a read-only snapshot of roomID from viewer's side.
func (m *Manager) CheckLock(ctx context.Context, roomID int, viewer uuid.UUID) (*LockResult, error) {
	r, err := m.repo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return m.result(r, viewer), nil
}

func (m *Manager) ListActiveRooms(ctx context.Context) ([]*Room, error) {
	return m.repo.List(ctx, true)
}

// RoomsHeldBy returns the rooms userID occupies or shadows.
func (m *Manager) RoomsHeldBy(ctx context.Context, userID uuid.UUID) ([]int, error) {
	return m.repo.HeldBy(ctx, userID)
}

// OccupantsOf returns the users with a session on roomID.
func (m *Manager) OccupantsOf(ctx context.Context, roomID int) ([]uuid.UUID, error) {
	r, err := m.repo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r.Users(), nil
}

// RoomExists reports whether roomID names an active room.
func (m *Manager) RoomExists(ctx context.Context, roomID int) (bool, error) {
	r, err := m.repo.Get(ctx, roomID)
	if errors.Is(err, fault.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.IsActive, nil
}
