package room

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

func newTestManager() *Manager {
	repo := NewSeededMemoryRepo([]string{"Salle 1", "Salle 2", "Salle 3"})
	return NewManager(repo, zerolog.Nop())
}

func newUser(name string, role staff.Role) staff.User {
	return staff.User{ID: uuid.New(), Name: name, Role: role}
}

func TestManager_LockFreeRoomIsExclusive(t *testing.T) {
	m := newTestManager()
	x := newUser("Dr X", staff.RoleDoctor)

	res, err := m.Lock(context.Background(), 1, x, "consultation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusExclusive {
		t.Errorf("expected exclusive, got %s", res.Status)
	}
	if res.Warning != "" {
		t.Errorf("expected no warning, got %q", res.Warning)
	}
	if !res.Room.OccupiedBy(x.ID) || res.Room.LockedAt == nil {
		t.Error("expected occupant and locked_at to be set together")
	}
}

func TestManager_LockHeldRoomIsShared(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("Dr X", staff.RoleDoctor)
	y := newUser("Nurse Y", staff.RoleNurse)

	m.Lock(ctx, 1, x, "")
	res, err := m.Lock(ctx, 1, y, "")
	if err != nil {
		t.Fatalf("expected second lock to succeed, got %v", err)
	}
	if res.Status != StatusShared {
		t.Errorf("expected shared, got %s", res.Status)
	}
	if !strings.Contains(res.Warning, "Dr X") {
		t.Errorf("expected warning naming the occupant, got %q", res.Warning)
	}
	if !res.Room.OccupiedBy(x.ID) {
		t.Error("expected occupant to remain X")
	}

	// the occupant now shares too
	chk, _ := m.CheckLock(ctx, 1, x.ID)
	if chk.Status != StatusShared {
		t.Errorf("expected occupant to see shared, got %s", chk.Status)
	}
}

func TestManager_RelockSameUserIsIdempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("Dr X", staff.RoleDoctor)

	first, _ := m.Lock(ctx, 2, x, "morning")
	second, err := m.Lock(ctx, 2, x, "afternoon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != StatusExclusive {
		t.Errorf("expected exclusive, got %s", second.Status)
	}
	if !second.Room.LockedAt.Equal(*first.Room.LockedAt) {
		t.Error("expected re-lock not to move locked_at")
	}
}

func TestManager_RelockWhileShadowedWarns(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("Dr X", staff.RoleDoctor)
	y := newUser("Inès", staff.RoleNurse)

	m.Lock(ctx, 2, x, "")
	m.Lock(ctx, 2, y, "")
	res, err := m.Lock(ctx, 2, x, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusShared {
		t.Errorf("expected shared, got %s", res.Status)
	}
	if !strings.Contains(res.Warning, "shared with 1 other session") {
		t.Errorf("expected sharing warning, got %q", res.Warning)
	}
}

func TestManager_ScenarioC(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("Dr X", staff.RoleDoctor)
	y := newUser("Dr Y", staff.RoleDoctor)

	if res, _ := m.Lock(ctx, 1, x, ""); res.Status != StatusExclusive {
		t.Fatalf("expected X exclusive, got %s", res.Status)
	}
	if res, _ := m.Lock(ctx, 1, y, ""); res.Status != StatusShared {
		t.Fatalf("expected Y shared, got %s", res.Status)
	}

	n, err := m.UnlockAll(ctx, x.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 room cleared, got %d", n)
	}

	chk, err := m.CheckLock(ctx, 1, uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.Status != StatusUnlocked {
		t.Errorf("expected room 1 unlocked after X logout, got %s", chk.Status)
	}
}

func TestManager_UnlockAllOnlyClearsOwnRooms(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	a := newUser("A", staff.RoleDoctor)
	b := newUser("B", staff.RoleDoctor)

	m.Lock(ctx, 1, a, "")
	m.Lock(ctx, 2, b, "")
	m.Lock(ctx, 3, a, "")
	m.Lock(ctx, 2, a, "") // shadow on B's room

	n, _ := m.UnlockAll(ctx, a.ID)
	if n != 2 {
		t.Errorf("expected 2 rooms cleared, got %d", n)
	}
	chk, _ := m.CheckLock(ctx, 2, b.ID)
	if chk.Status != StatusExclusive {
		t.Errorf("expected B's room untouched and no longer shared, got %s", chk.Status)
	}
	held, _ := m.RoomsHeldBy(ctx, a.ID)
	if len(held) != 0 {
		t.Errorf("expected A to hold nothing, got %v", held)
	}
}

func TestManager_LastWriterWinsOnRace(t *testing.T) {
	repo := NewSeededMemoryRepo([]string{"Salle 1"})
	m := NewManager(repo, zerolog.Nop())
	ctx := context.Background()
	a := newUser("A", staff.RoleDoctor)
	b := newUser("B", staff.RoleDoctor)

	// both observed the room free and wrote; B's write landed last
	repo.SetOccupant(ctx, 1, newSession(a, "", m.now()))
	repo.SetOccupant(ctx, 1, newSession(b, "", m.now()))

	chk, _ := m.CheckLock(ctx, 1, a.ID)
	if chk.Status != StatusShared {
		t.Errorf("expected the overwritten user to see shared, got %s", chk.Status)
	}
	if !chk.Room.OccupiedBy(b.ID) {
		t.Error("expected last writer to be the occupant")
	}
}

func TestManager_ShadowTakesFreedRoom(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("X", staff.RoleDoctor)
	y := newUser("Y", staff.RoleNurse)

	m.Lock(ctx, 1, x, "")
	m.Lock(ctx, 1, y, "")
	m.UnlockAll(ctx, x.ID)

	res, _ := m.Lock(ctx, 1, y, "")
	if res.Status != StatusExclusive {
		t.Errorf("expected exclusive, got %s", res.Status)
	}
	if len(res.Room.Shadows) != 0 {
		t.Errorf("expected shadow to be promoted, got %d shadows", len(res.Room.Shadows))
	}
}

func TestManager_Unlock(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("X", staff.RoleDoctor)
	m.Lock(ctx, 1, x, "")

	if err := m.Unlock(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chk, _ := m.CheckLock(ctx, 1, uuid.Nil)
	if chk.Status != StatusUnlocked || chk.Room.LockedAt != nil {
		t.Errorf("expected cleared room, got %+v", chk.Room)
	}

	if err := m.Unlock(ctx, 99); err != nil {
		t.Errorf("expected unknown room unlock to be a no-op, got %v", err)
	}
}

func TestManager_Leave(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("X", staff.RoleDoctor)
	y := newUser("Y", staff.RoleNurse)
	m.Lock(ctx, 1, x, "")
	m.Lock(ctx, 1, y, "")

	if err := m.Leave(ctx, 1, y.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chk, _ := m.CheckLock(ctx, 1, x.ID)
	if chk.Status != StatusExclusive {
		t.Errorf("expected X alone after Y left, got %s", chk.Status)
	}

	m.Leave(ctx, 1, x.ID)
	chk, _ = m.CheckLock(ctx, 1, uuid.Nil)
	if chk.Status != StatusUnlocked {
		t.Errorf("expected unlocked after occupant left, got %s", chk.Status)
	}
}

func TestManager_CheckLockUnknownRoom(t *testing.T) {
	m := newTestManager()
	_, err := m.CheckLock(context.Background(), 42, uuid.Nil)
	if !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_LockValidation(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.Lock(ctx, 1, staff.User{Name: "nobody", Role: staff.RoleNurse}, ""); !errors.Is(err, fault.ErrInvalid) {
		t.Errorf("expected ErrInvalid for missing user id, got %v", err)
	}
	if _, err := m.Lock(ctx, 42, newUser("X", staff.RoleDoctor), ""); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown room, got %v", err)
	}

	m.CreateRoom(ctx, &Room{ID: 9, Name: "Réserve", IsActive: false})
	if _, err := m.Lock(ctx, 9, newUser("X", staff.RoleDoctor), ""); !errors.Is(err, fault.ErrInvalid) {
		t.Errorf("expected ErrInvalid for inactive room, got %v", err)
	}
}

func TestManager_ListActiveRooms(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	m.CreateRoom(ctx, &Room{ID: 4, Name: "Ancienne salle", IsActive: false})
	x := newUser("X", staff.RoleDoctor)
	m.Lock(ctx, 2, x, "")

	rooms, err := m.ListActiveRooms(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("expected 3 active rooms, got %d", len(rooms))
	}
	if !rooms[1].OccupiedBy(x.ID) {
		t.Error("expected room 2 to carry its occupant")
	}
}

func TestManager_OccupantsOf(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	x := newUser("X", staff.RoleDoctor)
	y := newUser("Y", staff.RoleNurse)
	m.Lock(ctx, 1, x, "")
	m.Lock(ctx, 1, y, "")

	users, err := m.OccupantsOf(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 || users[0] != x.ID || users[1] != y.ID {
		t.Errorf("expected occupant then shadow, got %v", users)
	}
}

func TestCreateRoom_Validation(t *testing.T) {
	m := newTestManager()
	if err := m.CreateRoom(context.Background(), &Room{ID: 0, Name: "x"}); !errors.Is(err, fault.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if err := m.CreateRoom(context.Background(), &Room{ID: 1, Name: "dup"}); !errors.Is(err, fault.ErrInvalid) {
		t.Errorf("expected ErrInvalid for duplicate id, got %v", err)
	}
}
