package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Publisher spreads announce/withdraw packets to other workstations.
type Publisher interface {
	Publish(ctx context.Context, pkt Packet) error
}

// Registry tracks which users are online and where to reach them.
type Registry struct {
	repo Repository
	pub  Publisher
	log  zerolog.Logger
	now  func() time.Time
}

// NewRegistry builds a registry over repo. pub may be nil when presence is
// shared through the store alone.
func NewRegistry(repo Repository, pub Publisher, log zerolog.Logger) *Registry {
	return &Registry{
		repo: repo,
		pub:  pub,
		log:  log.With().Str("component", "presence").Logger(),
		now:  time.Now,
	}
}

// Announce publishes rec with a fresh timestamp.
func (r *Registry) Announce(ctx context.Context, rec Record) (*Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec.LastSeenAt = r.now()
	if err := r.repo.Upsert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("announce %s: %w", rec.UserID, err)
	}
	r.publish(ctx, Packet{Kind: PacketAnnounce, Record: rec})
	return &rec, nil
}

// Withdraw removes the user's record immediately.
func (r *Registry) Withdraw(ctx context.Context, userID uuid.UUID) error {
	if err := r.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("withdraw %s: %w", userID, err)
	}
	r.publish(ctx, Packet{Kind: PacketWithdraw, Record: Record{UserID: userID}})
	return nil
}

// publish is best-effort: a lost packet heals on the next heartbeat.
func (r *Registry) publish(ctx context.Context, pkt Packet) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, pkt); err != nil {
		r.log.Debug().Err(err).Str("kind", string(pkt.Kind)).Msg("beacon publish failed")
	}
}

// ListActive returns records seen within maxAge of now, sorted by name.
// Older records are excluded whatever the backend still holds.
func (r *Registry) ListActive(ctx context.Context, maxAge time.Duration) ([]Record, error) {
	cutoff := r.now().Add(-maxAge)
	recs, err := r.repo.ListSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	active := lo.FilterMap(recs, func(rec *Record, _ int) (Record, bool) {
		return *rec, !rec.LastSeenAt.Before(cutoff)
	})
	sort.Slice(active, func(i, j int) bool {
		if active[i].DisplayName != active[j].DisplayName {
			return active[i].DisplayName < active[j].DisplayName
		}
		return active[i].UserID.String() < active[j].UserID.String()
	})
	return active, nil
}

// Prune drops records older than maxAge from the backing repository.
func (r *Registry) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	return r.repo.Prune(ctx, r.now().Add(-maxAge))
}

// Heartbeat announces rec now and then on every interval until ctx ends.
// Failures are logged; the next tick is the retry.
func (r *Registry) Heartbeat(ctx context.Context, rec Record, interval time.Duration) {
	beat := func() {
		if _, err := r.Announce(ctx, rec); err != nil && ctx.Err() == nil {
			r.log.Warn().Err(err).Str("user_id", rec.UserID.String()).Msg("heartbeat failed")
		}
	}

	beat()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// Apply folds a packet received from another workstation into the local
// view. Staleness is judged by this workstation's clock, so the sender's
// timestamp is replaced.
func (r *Registry) Apply(ctx context.Context, pkt Packet) error {
	switch pkt.Kind {
	case PacketAnnounce:
		rec := pkt.Record
		if err := rec.Validate(); err != nil {
			return err
		}
		rec.LastSeenAt = r.now()
		return r.repo.Upsert(ctx, &rec)
	case PacketWithdraw:
		if pkt.Record.UserID == uuid.Nil {
			return nil
		}
		return r.repo.Delete(ctx, pkt.Record.UserID)
	default:
		return fmt.Errorf("unknown packet kind %q", pkt.Kind)
	}
}
