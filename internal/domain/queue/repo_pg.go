package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/db"
)

type repoPG struct{ pool db.Queryable }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const itemCols = `id, patient_code, patient_name, from_user_id, from_role, to_room_id, to_user_id, to_role,
	classification, action_code, action_label, is_checked, status, created_at, seen_at, completed_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.PatientCode, &i.PatientName, &i.FromUserID, &i.FromRole,
		&i.ToRoomID, &i.ToUserID, &i.ToRole, &i.Classification, &i.ActionCode, &i.ActionLabel,
		&i.IsChecked, &i.Status, &i.CreatedAt, &i.SeenAt, &i.CompletedAt)
	return &i, err
}

func (p *repoPG) Create(ctx context.Context, i *Item) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO queue_item (`+itemCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		i.ID, i.PatientCode, i.PatientName, i.FromUserID, i.FromRole,
		i.ToRoomID, i.ToUserID, i.ToRole, i.Classification, i.ActionCode, i.ActionLabel,
		i.IsChecked, i.Status, i.CreatedAt, i.SeenAt, i.CompletedAt)
	return db.Classify(err)
}

func (p *repoPG) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	i, err := scanItem(p.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM queue_item WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("queue item %s: %w", id, db.Classify(err))
	}
	return i, nil
}

func (p *repoPG) exec(ctx context.Context, sql string, args ...interface{}) (bool, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, db.Classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *repoPG) MarkSeen(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return p.exec(ctx, `
		UPDATE queue_item SET status = 'seen', seen_at = GREATEST($2, created_at)
		WHERE id = $1 AND status = 'pending'`, id, at)
}

func (p *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return p.exec(ctx, `
		UPDATE queue_item SET status = 'completed',
			completed_at = GREATEST($2, COALESCE(seen_at, created_at))
		WHERE id = $1 AND status <> 'completed'`, id, at)
}

func (p *repoPG) SetChecked(ctx context.Context, id uuid.UUID, value bool) (bool, error) {
	return p.exec(ctx, `
		UPDATE queue_item SET is_checked = $2
		WHERE id = $1 AND status <> 'completed'`, id, value)
}

func (p *repoPG) list(ctx context.Context, where string, args ...interface{}) ([]*Item, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+itemCols+` FROM queue_item WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		items = append(items, i)
	}
	return items, db.Classify(rows.Err())
}

func (p *repoPG) ListOpenFor(ctx context.Context, userID uuid.UUID, rooms []int, role staff.Role) ([]*Item, error) {
	if rooms == nil {
		rooms = []int{}
	}
	return p.list(ctx, `status <> 'completed' AND (
			to_user_id = $1
			OR to_room_id = ANY($2)
			OR (to_user_id IS NULL AND to_room_id IS NULL AND to_role = $3))`,
		userID, rooms, role)
}

func (p *repoPG) ListSentBy(ctx context.Context, userID uuid.UUID) ([]*Item, error) {
	return p.list(ctx, `from_user_id = $1`, userID)
}

func (p *repoPG) CountForRoom(ctx context.Context, roomID int, from, to time.Time) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_item
		WHERE to_room_id = $1 AND created_at >= $2 AND created_at < $3`, roomID, from, to).Scan(&n)
	return n, db.Classify(err)
}

func (p *repoPG) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM queue_item WHERE status = 'completed' AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, db.Classify(err)
	}
	return int(tag.RowsAffected()), nil
}
