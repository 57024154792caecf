package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps presence in process. It backs the LAN beacon mode, where
// every workstation builds its own view from received packets.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[uuid.UUID]Record)}
}

func (m *MemoryRepo) Upsert(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.UserID] = *r
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *MemoryRepo) ListSince(_ context.Context, cutoff time.Time) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, r := range m.records {
		if r.LastSeenAt.Before(cutoff) {
			continue
		}
		rec := r
		out = append(out, &rec)
	}
	return out, nil
}

func (m *MemoryRepo) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.records {
		if r.LastSeenAt.Before(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}
