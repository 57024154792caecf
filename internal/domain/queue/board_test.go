package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func boardItem(class Classification, roomID *int, at time.Time) *Item {
	return &Item{ID: uuid.New(), Classification: class, ToRoomID: roomID, CreatedAt: at}
}

func TestBuildBoard(t *testing.T) {
	two := 2
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	items := []*Item{
		boardItem(ClassRegular, &two, base),
		boardItem(ClassUrgent, &two, base.Add(time.Minute)),
		boardItem(ClassRegular, &two, base.Add(2*time.Minute)),
		boardItem(ClassDirectedAction, nil, base.Add(3*time.Minute)),
	}

	board := BuildBoard(items, 1)
	if board.Total != 4 {
		t.Errorf("expected total 4, got %d", board.Total)
	}
	if len(board.Rooms) != 2 || board.Rooms[0].RoomID != 1 || board.Rooms[1].RoomID != 2 {
		t.Fatalf("expected buckets for rooms 1 and 2 in order, got %+v", board.Rooms)
	}

	r2 := board.Bucket(2)
	if len(r2.Urgent) != 1 || len(r2.Regular) != 2 {
		t.Errorf("expected 1 urgent and 2 regular in room 2, got %d/%d", len(r2.Urgent), len(r2.Regular))
	}
	if r2.Regular[0].CreatedAt.After(r2.Regular[1].CreatedAt) {
		t.Error("expected creation order inside a bucket")
	}
	if r2.Fallback {
		t.Error("room 2 should not be flagged as fallback")
	}

	r1 := board.Bucket(1)
	if len(r1.DirectedActions) != 1 || !r1.Fallback {
		t.Errorf("expected fallback directed action in room 1, got %+v", r1)
	}
	if board.Bucket(3) != nil {
		t.Error("expected no bucket for an empty room")
	}
}

func TestFilter(t *testing.T) {
	items := []*Item{
		boardItem(ClassUrgent, nil, time.Time{}),
		boardItem(ClassRegular, nil, time.Time{}),
		boardItem(ClassUrgent, nil, time.Time{}),
	}
	if got := Filter(items, ClassUrgent); len(got) != 2 {
		t.Errorf("expected 2 urgent items, got %d", len(got))
	}
	if got := Filter(items, ClassDirectedAction); len(got) != 0 {
		t.Errorf("expected no directed actions, got %d", len(got))
	}
}

func TestActions(t *testing.T) {
	if label, ok := LookupAction("DODG"); !ok || label != "Dilatation ODG" {
		t.Errorf("expected Dilatation ODG, got %q %v", label, ok)
	}
	if _, ok := LookupAction("X"); ok {
		t.Error("expected unknown code to miss")
	}
	acts := Actions()
	if len(acts) != 4 || acts[0].Code != "D" {
		t.Errorf("expected 4 actions sorted by code, got %+v", acts)
	}
}
