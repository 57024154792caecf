package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

const maxParallelSends = 8

// Directory lists reachable users.
type Directory interface {
	ListActive(ctx context.Context, maxAge time.Duration) ([]presence.Record, error)
}

// Occupants resolves the users with a session on a room.
type Occupants interface {
	OccupantsOf(ctx context.Context, roomID int) ([]uuid.UUID, error)
}

// Transport sends messages straight to peer workstations. Delivery is
// best-effort: a failed send is reported and never retried.
type Transport struct {
	client    *resty.Client
	directory Directory
	occupants Occupants
	maxAge    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewTransport(timeout time.Duration, directory Directory, occupants Occupants, maxAge time.Duration, log zerolog.Logger) *Transport {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Transport{
		client:    client,
		directory: directory,
		occupants: occupants,
		maxAge:    maxAge,
		log:       log.With().Str("component", "messaging").Logger(),
		now:       time.Now,
	}
}

func (t *Transport) stamp(msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = t.now()
	}
	return msg.Validate()
}

// SendDirect posts msg to the workstation at address (host:port).
func (t *Transport) SendDirect(ctx context.Context, address string, msg *Message) error {
	if address == "" {
		return fault.Invalidf("address is required")
	}
	if err := t.stamp(msg); err != nil {
		return err
	}
	return t.post(ctx, address, msg)
}

func (t *Transport) post(ctx context.Context, address string, msg *Message) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("http://" + address + PeerPath)
	if err != nil {
		t.log.Debug().Err(err).Str("address", address).Msg("peer send failed")
		return fmt.Errorf("send to %s: %w: %v", address, fault.ErrUnreachable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send to %s: %w: peer replied %d", address, fault.ErrUnreachable, resp.StatusCode())
	}
	return nil
}

// Resolve returns the active presence record of userID.
func (t *Transport) Resolve(ctx context.Context, userID uuid.UUID) (*presence.Record, error) {
	recs, err := t.directory.ListActive(ctx, t.maxAge)
	if err != nil {
		return nil, err
	}
	rec, ok := lo.Find(recs, func(r presence.Record) bool { return r.UserID == userID })
	if !ok {
		return nil, fmt.Errorf("user %s is not online: %w", userID, fault.ErrNotFound)
	}
	return &rec, nil
}

// SendRoomBroadcast sends msg to every user with a session on roomID except
// the sender. Each recipient gets its own Delivery; one failure does not
// affect the others.
func (t *Transport) SendRoomBroadcast(ctx context.Context, roomID int, msg *Message) ([]Delivery, error) {
	room := roomID
	msg.RoomID = &room
	if err := t.stamp(msg); err != nil {
		return nil, err
	}

	users, err := t.occupants.OccupantsOf(ctx, roomID)
	if err != nil {
		return nil, err
	}
	users = lo.Without(users, msg.SenderID)
	if len(users) == 0 {
		return []Delivery{}, nil
	}

	recs, err := t.directory.ListActive(ctx, t.maxAge)
	if err != nil {
		return nil, err
	}
	online := lo.KeyBy(recs, func(r presence.Record) uuid.UUID { return r.UserID })

	deliveries := make([]Delivery, len(users))
	var g errgroup.Group
	g.SetLimit(maxParallelSends)
	for i, userID := range users {
		d := &deliveries[i]
		d.UserID = userID
		rec, ok := online[userID]
		if !ok {
			d.Error = "not online"
			continue
		}
		d.Name, d.Address = rec.DisplayName, rec.Endpoint()
		g.Go(func() error {
			if err := t.post(ctx, d.Address, msg); err != nil {
				d.Error = err.Error()
				return nil
			}
			d.Delivered = true
			return nil
		})
	}
	g.Wait()
	return deliveries, nil
}
