package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/domain/staff"
)

// Repository persists queue items. Transition methods are conditional
// single-row updates that report whether a row changed; an unknown ID simply
// changes nothing.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	// MarkSeen moves a pending item to seen with seen_at = max(at, created_at).
	MarkSeen(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// MarkCompleted moves a non-completed item to completed with
	// completed_at = max(at, seen_at or created_at).
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// SetChecked sets is_checked on a non-completed item.
	SetChecked(ctx context.Context, id uuid.UUID, value bool) (bool, error)
	// ListOpenFor returns non-completed items addressed to userID, to one of
	// rooms, or only to role, oldest first.
	ListOpenFor(ctx context.Context, userID uuid.UUID, rooms []int, role staff.Role) ([]*Item, error)
	// ListSentBy returns items sent by userID, oldest first.
	ListSentBy(ctx context.Context, userID uuid.UUID) ([]*Item, error)
	// CountForRoom counts items for roomID created in [from, to).
	CountForRoom(ctx context.Context, roomID int, from, to time.Time) (int, error)
	PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
