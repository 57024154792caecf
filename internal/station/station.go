// Package station holds the session of the user signed in at this
// workstation and keeps presence, room locks and the poller in step with it.
package station

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/internal/platform/websocket"
)

type Presence interface {
	Announce(ctx context.Context, rec presence.Record) (*presence.Record, error)
	Withdraw(ctx context.Context, userID uuid.UUID) error
	Heartbeat(ctx context.Context, rec presence.Record, interval time.Duration)
}

type Locks interface {
	Lock(ctx context.Context, roomID int, user staff.User, label string) (*room.LockResult, error)
	Leave(ctx context.Context, roomID int, userID uuid.UUID) error
	UnlockAll(ctx context.Context, userID uuid.UUID) (int, error)
}

// Viewer is told whose queue to follow.
type Viewer interface {
	SetViewer(u *staff.User)
}

type Forgetter interface {
	Forget(topic string)
}

type Options struct {
	Address   string
	Port      int
	Heartbeat time.Duration
}

// Session is the state of the signed-in user.
type Session struct {
	User   staff.User       `json:"user"`
	RoomID *int             `json:"room_id,omitempty"`
	Lock   *room.LockResult `json:"lock,omitempty"`
}

type Station struct {
	presence Presence
	locks    Locks
	viewer   Viewer
	hub      Forgetter
	opts     Options
	log      zerolog.Logger

	mu      sync.Mutex
	session *Session
	stop    context.CancelFunc
	beating sync.WaitGroup
}

func New(p Presence, l Locks, v Viewer, hub Forgetter, opts Options, log zerolog.Logger) *Station {
	return &Station{
		presence: p,
		locks:    l,
		viewer:   v,
		hub:      hub,
		opts:     opts,
		log:      log.With().Str("component", "station").Logger(),
	}
}

// Current returns the signed-in user.
func (s *Station) Current() (staff.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return staff.User{}, false
	}
	return s.session.User, true
}

func (s *Station) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Login announces u, starts the heartbeat and optionally locks roomID.
// A different user already signed in is logged out first. When u signs in
// again, a previous room other than roomID is left.
func (s *Station) Login(ctx context.Context, u staff.User, roomID *int, label string) (*Session, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if prev := s.Session(); prev != nil {
		if prev.User.ID != u.ID {
			if err := s.Logout(ctx); err != nil {
				return nil, fmt.Errorf("logout %s: %w", prev.User.ID, err)
			}
		} else if prev.RoomID != nil && (roomID == nil || *roomID != *prev.RoomID) {
			if err := s.locks.Leave(ctx, *prev.RoomID, u.ID); err != nil {
				return nil, fmt.Errorf("leave room %d: %w", *prev.RoomID, err)
			}
		}
	}

	rec := presence.FromUser(u, s.opts.Address, s.opts.Port)
	if _, err := s.presence.Announce(ctx, rec); err != nil {
		return nil, fmt.Errorf("announce %s: %w", u.ID, err)
	}

	sess := &Session{User: u}
	if roomID != nil {
		res, err := s.locks.Lock(ctx, *roomID, u, label)
		if err != nil {
			return nil, err
		}
		id := *roomID
		sess.RoomID, sess.Lock = &id, res
	}

	s.mu.Lock()
	if s.stop == nil {
		hbCtx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.beating.Add(1)
		go func() {
			defer s.beating.Done()
			s.presence.Heartbeat(hbCtx, rec, s.opts.Heartbeat)
		}()
	}
	s.session = sess
	s.mu.Unlock()

	s.viewer.SetViewer(&u)
	s.log.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("login")
	return sess, nil
}

// SwitchRoom leaves the current room and locks roomID.
func (s *Station) SwitchRoom(ctx context.Context, roomID int, label string) (*room.LockResult, error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil, fault.Invalidf("no user is signed in")
	}

	if sess.RoomID != nil && *sess.RoomID != roomID {
		if err := s.locks.Leave(ctx, *sess.RoomID, sess.User.ID); err != nil {
			return nil, fmt.Errorf("leave room %d: %w", *sess.RoomID, err)
		}
	}
	res, err := s.locks.Lock(ctx, roomID, sess.User, label)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.session != nil && s.session.User.ID == sess.User.ID {
		id := roomID
		s.session.RoomID, s.session.Lock = &id, res
	}
	s.mu.Unlock()
	return res, nil
}

// Logout releases every room the user holds and withdraws their presence.
// It is a no-op when nobody is signed in.
func (s *Station) Logout(ctx context.Context) error {
	s.mu.Lock()
	sess, stop := s.session, s.stop
	s.session, s.stop = nil, nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	if stop != nil {
		stop()
		s.beating.Wait()
	}
	s.viewer.SetViewer(nil)
	s.hub.Forget(websocket.TopicQueue)

	n, err := s.locks.UnlockAll(ctx, sess.User.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.User.ID.String()).Msg("release rooms on logout")
	}
	if werr := s.presence.Withdraw(ctx, sess.User.ID); werr != nil && err == nil {
		err = werr
	}
	s.log.Info().Str("user_id", sess.User.ID.String()).Int("rooms_released", n).Msg("logout")
	return err
}

// Close logs out on shutdown.
func (s *Station) Close(ctx context.Context) error {
	return s.Logout(ctx)
}
