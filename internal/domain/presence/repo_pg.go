package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/coord/internal/platform/db"
)

type repoPG struct{ pool db.Queryable }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const presenceCols = `user_id, display_name, role, address, messaging_port, last_seen_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.UserID, &r.DisplayName, &r.Role, &r.Address, &r.MessagingPort, &r.LastSeenAt)
	return &r, err
}

func (p *repoPG) Upsert(ctx context.Context, r *Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO presence (`+presenceCols+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			address = EXCLUDED.address,
			messaging_port = EXCLUDED.messaging_port,
			last_seen_at = EXCLUDED.last_seen_at`,
		r.UserID, r.DisplayName, r.Role, r.Address, r.MessagingPort, r.LastSeenAt)
	return db.Classify(err)
}

func (p *repoPG) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM presence WHERE user_id = $1`, userID)
	return db.Classify(err)
}

func (p *repoPG) ListSince(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+presenceCols+` FROM presence WHERE last_seen_at >= $1`, cutoff)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		items = append(items, r)
	}
	return items, db.Classify(rows.Err())
}

func (p *repoPG) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM presence WHERE last_seen_at < $1`, before)
	if err != nil {
		return 0, db.Classify(err)
	}
	return int(tag.RowsAffected()), nil
}
