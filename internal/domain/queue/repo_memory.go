package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// MemoryRepo keeps the queue in process for single-workstation use and tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Item
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Item)}
}

func (m *MemoryRepo) Create(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id uuid.UUID) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("queue item %s: %w", id, fault.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func latest(at time.Time, floor time.Time) time.Time {
	if at.Before(floor) {
		return floor
	}
	return at
}

func (m *MemoryRepo) MarkSeen(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != StatusPending {
		return false, nil
	}
	t := latest(at, it.CreatedAt)
	it.Status, it.SeenAt = StatusSeen, &t
	return true, nil
}

func (m *MemoryRepo) MarkCompleted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status == StatusCompleted {
		return false, nil
	}
	floor := it.CreatedAt
	if it.SeenAt != nil {
		floor = *it.SeenAt
	}
	t := latest(at, floor)
	it.Status, it.CompletedAt = StatusCompleted, &t
	return true, nil
}

func (m *MemoryRepo) SetChecked(_ context.Context, id uuid.UUID, value bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status == StatusCompleted {
		return false, nil
	}
	it.IsChecked = value
	return true, nil
}

// addressedTo mirrors the recipient predicate of the PostgreSQL repository.
func addressedTo(it *Item, userID uuid.UUID, rooms []int, role staff.Role) bool {
	if it.ToUserID != nil && *it.ToUserID == userID {
		return true
	}
	if it.ToRoomID != nil && lo.Contains(rooms, *it.ToRoomID) {
		return true
	}
	return it.ToUserID == nil && it.ToRoomID == nil && it.ToRole != nil && *it.ToRole == role
}

func (m *MemoryRepo) list(keep func(*Item) bool) []*Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Item
	for _, it := range m.items {
		if keep(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *MemoryRepo) ListOpenFor(_ context.Context, userID uuid.UUID, rooms []int, role staff.Role) ([]*Item, error) {
	return m.list(func(it *Item) bool {
		return !it.Completed() && addressedTo(it, userID, rooms, role)
	}), nil
}

func (m *MemoryRepo) ListSentBy(_ context.Context, userID uuid.UUID) ([]*Item, error) {
	return m.list(func(it *Item) bool { return it.FromUserID == userID }), nil
}

func (m *MemoryRepo) CountForRoom(_ context.Context, roomID int, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if it.ToRoomID != nil && *it.ToRoomID == roomID && !it.CreatedAt.Before(from) && it.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) PurgeCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, it := range m.items {
		if it.Completed() && it.CompletedAt != nil && it.CompletedAt.Before(cutoff) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}
