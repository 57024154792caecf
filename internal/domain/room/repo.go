package room

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists rooms and their sessions. Every mutation is a single-row
// write; Get and List attach shadows.
type Repository interface {
	Create(ctx context.Context, r *Room) error
	Get(ctx context.Context, id int) (*Room, error)
	List(ctx context.Context, activeOnly bool) ([]*Room, error)
	SetOccupant(ctx context.Context, roomID int, s Session) error
	// ClearOccupant returns fault.ErrNotFound for an unknown room.
	ClearOccupant(ctx context.Context, roomID int) error
	// ClearOccupiedBy frees every room userID occupies and reports how many.
	ClearOccupiedBy(ctx context.Context, userID uuid.UUID) (int, error)
	UpsertShadow(ctx context.Context, s *Shadow) error
	DeleteShadow(ctx context.Context, roomID int, userID uuid.UUID) error
	DeleteShadowsOf(ctx context.Context, userID uuid.UUID) error
	// HeldBy returns the IDs of rooms userID occupies or shadows, ascending.
	HeldBy(ctx context.Context, userID uuid.UUID) ([]int, error)
}
