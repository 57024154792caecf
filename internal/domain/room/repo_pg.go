package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/clinicdesk/coord/internal/platform/db"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

type repoPG struct{ pool db.Queryable }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const roomCols = `id, name, is_active, occupant_user_id, occupant_name, occupant_role, session_label, locked_at`

const shadowCols = `room_id, user_id, user_name, role, COALESCE(session_label, ''), joined_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Name, &r.IsActive, &r.OccupantUserID, &r.OccupantName,
		&r.OccupantRole, &r.SessionLabel, &r.LockedAt)
	return &r, err
}

func scanShadow(row pgx.Row) (Shadow, error) {
	var s Shadow
	err := row.Scan(&s.RoomID, &s.UserID, &s.UserName, &s.Role, &s.Label, &s.Since)
	return s, err
}

func (p *repoPG) Create(ctx context.Context, r *Room) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO room (id, name, is_active) VALUES ($1, $2, $3)`,
		r.ID, r.Name, r.IsActive)
	return db.Classify(err)
}

func (p *repoPG) Get(ctx context.Context, id int) (*Room, error) {
	r, err := scanRoom(p.pool.QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("room %d: %w", id, db.Classify(err))
	}
	if err := p.attachShadows(ctx, []*Room{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *repoPG) List(ctx context.Context, activeOnly bool) ([]*Room, error) {
	q := `SELECT ` + roomCols + ` FROM room`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY id`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var items []*Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	if err := p.attachShadows(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *repoPG) attachShadows(ctx context.Context, rooms []*Room) error {
	if len(rooms) == 0 {
		return nil
	}
	ids := lo.Map(rooms, func(r *Room, _ int) int { return r.ID })
	rows, err := p.pool.Query(ctx,
		`SELECT `+shadowCols+` FROM room_shadow WHERE room_id = ANY($1) ORDER BY joined_at`, ids)
	if err != nil {
		return db.Classify(err)
	}
	defer rows.Close()
	var shadows []Shadow
	for rows.Next() {
		s, err := scanShadow(rows)
		if err != nil {
			return db.Classify(err)
		}
		shadows = append(shadows, s)
	}
	if err := rows.Err(); err != nil {
		return db.Classify(err)
	}
	byRoom := lo.GroupBy(shadows, func(s Shadow) int { return s.RoomID })
	for _, r := range rooms {
		r.Shadows = byRoom[r.ID]
	}
	return nil
}

func (p *repoPG) SetOccupant(ctx context.Context, roomID int, s Session) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE room SET occupant_user_id = $2, occupant_name = $3, occupant_role = $4,
			session_label = $5, locked_at = $6
		WHERE id = $1`,
		roomID, s.UserID, s.UserName, s.Role, s.Label, s.Since)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %d: %w", roomID, fault.ErrNotFound)
	}
	return nil
}

func (p *repoPG) ClearOccupant(ctx context.Context, roomID int) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE room SET occupant_user_id = NULL, occupant_name = NULL, occupant_role = NULL,
			session_label = NULL, locked_at = NULL
		WHERE id = $1`, roomID)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %d: %w", roomID, fault.ErrNotFound)
	}
	return nil
}

func (p *repoPG) ClearOccupiedBy(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE room SET occupant_user_id = NULL, occupant_name = NULL, occupant_role = NULL,
			session_label = NULL, locked_at = NULL
		WHERE occupant_user_id = $1`, userID)
	if err != nil {
		return 0, db.Classify(err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *repoPG) UpsertShadow(ctx context.Context, s *Shadow) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO room_shadow (room_id, user_id, user_name, role, session_label, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			role = EXCLUDED.role,
			session_label = EXCLUDED.session_label`,
		s.RoomID, s.UserID, s.UserName, s.Role, s.Label, s.Since)
	return db.Classify(err)
}

func (p *repoPG) DeleteShadow(ctx context.Context, roomID int, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM room_shadow WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return db.Classify(err)
}

func (p *repoPG) DeleteShadowsOf(ctx context.Context, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM room_shadow WHERE user_id = $1`, userID)
	return db.Classify(err)
}

func (p *repoPG) HeldBy(ctx context.Context, userID uuid.UUID) ([]int, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM room WHERE occupant_user_id = $1
		UNION
		SELECT room_id FROM room_shadow WHERE user_id = $1
		ORDER BY 1`, userID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(err)
		}
		ids = append(ids, id)
	}
	return ids, db.Classify(rows.Err())
}
