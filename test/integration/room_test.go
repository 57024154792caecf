package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

func newRoomManager(t *testing.T) *room.Manager {
	t.Helper()
	pool := newTestPool(t, "room")
	mgr := room.NewManager(room.NewRepoPG(pool), zerolog.Nop())
	ctx := context.Background()
	for i, name := range []string{"Salle 1", "Salle 2"} {
		if err := mgr.CreateRoom(ctx, &room.Room{ID: i + 1, Name: name, IsActive: true}); err != nil {
			t.Fatalf("create room: %v", err)
		}
	}
	return mgr
}

func TestRoomLocksPG(t *testing.T) {
	mgr := newRoomManager(t)
	ctx := context.Background()
	doc := newUser("Dr Karim", staff.RoleDoctor)
	nurse := newUser("Inès", staff.RoleNurse)

	t.Run("ExclusiveThenShared", func(t *testing.T) {
		res, err := mgr.Lock(ctx, 1, doc, "matin")
		if err != nil {
			t.Fatalf("lock: %v", err)
		}
		if res.Status != room.StatusExclusive {
			t.Fatalf("expected exclusive, got %s", res.Status)
		}

		res, err = mgr.Lock(ctx, 1, nurse, "")
		if err != nil {
			t.Fatalf("second lock: %v", err)
		}
		if res.Status != room.StatusShared || res.Warning == "" {
			t.Fatalf("expected shared with warning, got %+v", res)
		}
		if res.Room.OccupantUserID == nil || *res.Room.OccupantUserID != doc.ID {
			t.Errorf("expected doctor to remain occupant")
		}
	})

	t.Run("ListAttachesShadows", func(t *testing.T) {
		rooms, err := mgr.ListActiveRooms(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rooms) != 2 {
			t.Fatalf("expected 2 rooms, got %d", len(rooms))
		}
		if len(rooms[0].Shadows) != 1 || rooms[0].Shadows[0].UserID != nurse.ID {
			t.Errorf("expected nurse shadow on room 1, got %+v", rooms[0].Shadows)
		}
	})

	t.Run("RoomsHeldBy", func(t *testing.T) {
		mgr.Lock(ctx, 2, nurse, "")
		held, err := mgr.RoomsHeldBy(ctx, nurse.ID)
		if err != nil {
			t.Fatalf("held by: %v", err)
		}
		if len(held) != 2 || held[0] != 1 || held[1] != 2 {
			t.Errorf("expected [1 2], got %v", held)
		}
	})

	t.Run("UnlockAll", func(t *testing.T) {
		n, err := mgr.UnlockAll(ctx, nurse.ID)
		if err != nil {
			t.Fatalf("unlock all: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 occupied room cleared, got %d", n)
		}
		held, _ := mgr.RoomsHeldBy(ctx, nurse.ID)
		if len(held) != 0 {
			t.Errorf("expected nothing held, got %v", held)
		}
	})

	t.Run("UnknownRoom", func(t *testing.T) {
		if _, err := mgr.CheckLock(ctx, 99, doc.ID); !errors.Is(err, fault.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		if err := mgr.Unlock(ctx, 99); err != nil {
			t.Errorf("expected unlock of unknown room to be a no-op, got %v", err)
		}
	})

	t.Run("DuplicateRoom", func(t *testing.T) {
		err := mgr.CreateRoom(ctx, &room.Room{ID: 1, Name: "Salle 1", IsActive: true})
		if !errors.Is(err, fault.ErrInvalid) {
			t.Errorf("expected invalid for duplicate room, got %v", err)
		}
	})
}
