package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Upsert(ctx context.Context, r *Record) error
	Delete(ctx context.Context, userID uuid.UUID) error
	// ListSince returns records seen at or after cutoff.
	ListSince(ctx context.Context, cutoff time.Time) ([]*Record, error)
	// Prune drops records last seen before the given time and reports how many.
	Prune(ctx context.Context, before time.Time) (int, error)
}
