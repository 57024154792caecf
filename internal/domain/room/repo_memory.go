package room

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/platform/fault"
)

type shadowKey struct {
	roomID int
	userID uuid.UUID
}

// MemoryRepo keeps rooms in process for single-workstation use and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	rooms   map[int]*Room
	shadows map[shadowKey]Shadow
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rooms: make(map[int]*Room), shadows: make(map[shadowKey]Shadow)}
}

// NewSeededMemoryRepo creates one active room per name, numbered from 1.
func NewSeededMemoryRepo(names []string) *MemoryRepo {
	m := NewMemoryRepo()
	for i, name := range names {
		m.rooms[i+1] = &Room{ID: i + 1, Name: name, IsActive: true}
	}
	return m
}

func (m *MemoryRepo) Create(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return fault.Invalidf("room %d already exists", r.ID)
	}
	cp := *r
	cp.Shadows = nil
	m.rooms[r.ID] = &cp
	return nil
}

// snapshot copies a room with its shadows; caller holds the lock.
func (m *MemoryRepo) snapshot(r *Room) *Room {
	cp := *r
	cp.Shadows = nil
	for k, s := range m.shadows {
		if k.roomID == r.ID {
			cp.Shadows = append(cp.Shadows, s)
		}
	}
	sort.Slice(cp.Shadows, func(i, j int) bool {
		return cp.Shadows[i].Since.Before(cp.Shadows[j].Since)
	})
	return &cp
}

func (m *MemoryRepo) Get(_ context.Context, id int) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", id, fault.ErrNotFound)
	}
	return m.snapshot(r), nil
}

func (m *MemoryRepo) List(_ context.Context, activeOnly bool) ([]*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Room
	for _, r := range m.rooms {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, m.snapshot(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) SetOccupant(_ context.Context, roomID int, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, fault.ErrNotFound)
	}
	id, name, role, label, at := s.UserID, s.UserName, s.Role, s.Label, s.Since
	r.OccupantUserID, r.OccupantName, r.OccupantRole, r.SessionLabel, r.LockedAt = &id, &name, &role, &label, &at
	return nil
}

func release(r *Room) {
	r.OccupantUserID, r.OccupantName, r.OccupantRole, r.SessionLabel, r.LockedAt = nil, nil, nil, nil, nil
}

func (m *MemoryRepo) ClearOccupant(_ context.Context, roomID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, fault.ErrNotFound)
	}
	release(r)
	return nil
}

func (m *MemoryRepo) ClearOccupiedBy(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rooms {
		if r.OccupiedBy(userID) {
			release(r)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) UpsertShadow(_ context.Context, s *Shadow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[s.RoomID]; !ok {
		return fmt.Errorf("room %d: %w", s.RoomID, fault.ErrNotFound)
	}
	m.shadows[shadowKey{s.RoomID, s.UserID}] = *s
	return nil
}

func (m *MemoryRepo) DeleteShadow(_ context.Context, roomID int, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shadows, shadowKey{roomID, userID})
	return nil
}

func (m *MemoryRepo) DeleteShadowsOf(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.shadows {
		if k.userID == userID {
			delete(m.shadows, k)
		}
	}
	return nil
}

func (m *MemoryRepo) HeldBy(_ context.Context, userID uuid.UUID) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := map[int]bool{}
	for id, r := range m.rooms {
		if r.OccupiedBy(userID) {
			set[id] = true
		}
	}
	for k := range m.shadows {
		if k.userID == userID {
			set[k.roomID] = true
		}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}
