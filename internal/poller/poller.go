// Package poller refreshes presence, room and queue state on timers and
// pushes the differences to the local UI.
package poller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/domain/queue"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/websocket"
)

type PresenceSource interface {
	ListActive(ctx context.Context, maxAge time.Duration) ([]presence.Record, error)
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

type RoomSource interface {
	ListActiveRooms(ctx context.Context) ([]*room.Room, error)
}

type QueueSource interface {
	QueueFor(ctx context.Context, userID uuid.UUID, role staff.Role) ([]*queue.Item, error)
	SentBy(ctx context.Context, userID uuid.UUID) ([]*queue.Item, error)
	DefaultRoom() int
}

type Config struct {
	PresenceInterval time.Duration
	RoomInterval     time.Duration
	QueueInterval    time.Duration
	PresenceMaxAge   time.Duration
	// PrunePresence drops stale records each presence cycle; set it when the
	// presence table lives in this process.
	PrunePresence bool
}

// Poller runs one loop per source. A failed poll is logged and the loop
// waits for its next tick; other loops carry on.
type Poller struct {
	presence PresenceSource
	rooms    RoomSource
	queue    QueueSource
	pub      websocket.EventPublisher
	cfg      Config
	log      zerolog.Logger

	// emitMu orders queue publishes against viewer changes, so a board
	// polled for one viewer is never published after SetViewer returns.
	emitMu sync.Mutex

	mu         sync.Mutex
	viewer     *staff.User
	generation int
	users      map[uuid.UUID]bool
	usersPrint string
	roomSnap   []*room.Room
	roomsPrint string
	inbox      map[uuid.UUID]string
	inboxPrint string
	sent       map[uuid.UUID]queue.Status
	primed     bool
}

func New(p PresenceSource, r RoomSource, q QueueSource, pub websocket.EventPublisher, cfg Config, log zerolog.Logger) *Poller {
	return &Poller{
		presence: p,
		rooms:    r,
		queue:    q,
		pub:      pub,
		cfg:      cfg,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// SetViewer selects whose queue is polled. nil stops queue polling and
// forgets the queue snapshots.
func (p *Poller) SetViewer(u *staff.User) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if u != nil {
		cp := *u
		u = &cp
	}
	p.viewer = u
	p.generation++
	p.inbox, p.inboxPrint, p.sent, p.primed = nil, "", nil, false
}

func (p *Poller) Viewer() (staff.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.viewer == nil {
		return staff.User{}, false
	}
	return *p.viewer, true
}

// Run polls until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(ctx, "presence", p.cfg.PresenceInterval, p.PollPresence) })
	g.Go(func() error { return p.loop(ctx, "rooms", p.cfg.RoomInterval, p.PollRooms) })
	g.Go(func() error { return p.loop(ctx, "queue", p.cfg.QueueInterval, p.PollQueue) })
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, name string, interval time.Duration, poll func(context.Context) error) error {
	tick := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		start := time.Now()
		if err := poll(pctx); err != nil {
			if ctx.Err() == nil {
				p.log.Warn().Err(err).Str("poll", name).Msg("poll failed")
			}
			return
		}
		p.log.Debug().Str("poll", name).Dur("latency", time.Since(start)).Msg("poll ok")
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}

func (p *Poller) publish(ctx context.Context, topic, typ string, data interface{}, retain bool) {
	ev, err := websocket.NewEvent(topic, typ, data)
	if err != nil {
		p.log.Error().Err(err).Str("event", typ).Msg("encode event")
		return
	}
	ev.Retain = retain
	if err := p.pub.Publish(ctx, ev); err != nil {
		p.log.Warn().Err(err).Str("event", typ).Msg("publish event")
	}
}

// roomsOf maps each user to the rooms they hold in rooms.
func roomsOf(rooms []*room.Room) map[uuid.UUID][]int {
	out := map[uuid.UUID][]int{}
	for _, r := range rooms {
		for _, u := range r.Users() {
			out[u] = append(out[u], r.ID)
		}
	}
	return out
}

// PollPresence refreshes the online list and emits users.updated when the
// set of users or their rooms changed.
func (p *Poller) PollPresence(ctx context.Context) error {
	if p.cfg.PrunePresence {
		if _, err := p.presence.Prune(ctx, p.cfg.PresenceMaxAge); err != nil {
			p.log.Debug().Err(err).Msg("presence prune failed")
		}
	}
	recs, err := p.presence.ListActive(ctx, p.cfg.PresenceMaxAge)
	if err != nil {
		return fmt.Errorf("list presence: %w", err)
	}

	p.mu.Lock()
	held := roomsOf(p.roomSnap)
	online := make([]OnlineUser, 0, len(recs))
	current := make(map[uuid.UUID]bool, len(recs))
	for _, r := range recs {
		online = append(online, OnlineUser{Record: r, RoomIDs: held[r.UserID]})
		current[r.UserID] = true
	}
	joined := lo.Filter(lo.Keys(current), func(id uuid.UUID, _ int) bool { return !p.users[id] })
	left := lo.Filter(lo.Keys(p.users), func(id uuid.UUID, _ int) bool { return !current[id] })
	fp := usersFingerprint(online)
	changed := fp != p.usersPrint || p.users == nil
	p.users, p.usersPrint = current, fp
	p.mu.Unlock()

	if changed {
		sortIDs(joined)
		sortIDs(left)
		p.publish(ctx, websocket.TopicUsers, EventUsersUpdated, UsersUpdate{Users: online, Joined: joined, Left: left}, true)
	}
	return nil
}

func usersFingerprint(users []OnlineUser) string {
	parts := lo.Map(users, func(u OnlineUser, _ int) string {
		return fmt.Sprintf("%s@%s:%v", u.UserID, u.Endpoint(), u.RoomIDs)
	})
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// PollRooms refreshes occupancy and emits rooms.updated on change.
func (p *Poller) PollRooms(ctx context.Context) error {
	rooms, err := p.rooms.ListActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	fp := roomsFingerprint(rooms)
	p.mu.Lock()
	changed := fp != p.roomsPrint || p.roomSnap == nil
	p.roomSnap, p.roomsPrint = rooms, fp
	p.mu.Unlock()

	if changed {
		if rooms == nil {
			rooms = []*room.Room{}
		}
		p.publish(ctx, websocket.TopicRooms, EventRoomsUpdated, RoomsUpdate{Rooms: rooms}, true)
	}
	return nil
}

func roomsFingerprint(rooms []*room.Room) string {
	parts := lo.Map(rooms, func(r *room.Room, _ int) string {
		return fmt.Sprintf("%d:%s:%v", r.ID, r.Name, r.Users())
	})
	return strings.Join(parts, "|")
}

// PollQueue refreshes the viewer's inbox and outbound items. New inbox items
// raise queue.item.new, except on the first poll after login.
func (p *Poller) PollQueue(ctx context.Context) error {
	p.mu.Lock()
	viewer, gen := p.viewer, p.generation
	p.mu.Unlock()
	if viewer == nil {
		return nil
	}

	inbox, err := p.queue.QueueFor(ctx, viewer.ID, viewer.Role)
	if err != nil {
		return fmt.Errorf("queue for %s: %w", viewer.ID, err)
	}
	sent, err := p.queue.SentBy(ctx, viewer.ID)
	if err != nil {
		return fmt.Errorf("sent by %s: %w", viewer.ID, err)
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.mu.Lock()
	if gen != p.generation {
		// viewer changed while polling
		p.mu.Unlock()
		return nil
	}
	primed := p.primed
	var fresh []*queue.Item
	nextInbox := make(map[uuid.UUID]string, len(inbox))
	for _, it := range inbox {
		nextInbox[it.ID] = fmt.Sprintf("%s:%t", it.Status, it.IsChecked)
		if _, known := p.inbox[it.ID]; primed && !known {
			fresh = append(fresh, it)
		}
	}
	inboxPrint := inboxFingerprint(inbox)
	inboxChanged := !primed || inboxPrint != p.inboxPrint

	var changedSent []*queue.Item
	nextSent := make(map[uuid.UUID]queue.Status, len(sent))
	for _, it := range sent {
		nextSent[it.ID] = it.Status
		if prev, known := p.sent[it.ID]; primed && known && prev != it.Status {
			changedSent = append(changedSent, it)
		}
	}
	p.inbox, p.inboxPrint, p.sent, p.primed = nextInbox, inboxPrint, nextSent, true
	p.mu.Unlock()

	for _, it := range fresh {
		p.publish(ctx, websocket.TopicQueue, EventQueueItemNew,
			NewItem{Item: it, Alert: Alert{Sound: soundFor(it), Badge: len(inbox)}}, false)
	}
	if inboxChanged {
		p.publish(ctx, websocket.TopicQueue, EventQueueUpdated, queue.BuildBoard(inbox, p.queue.DefaultRoom()), true)
	}
	if len(changedSent) > 0 {
		p.publish(ctx, websocket.TopicQueue, EventQueueSentUpdated, SentUpdate{Changed: changedSent}, false)
	}
	return nil
}

func inboxFingerprint(items []*queue.Item) string {
	parts := lo.Map(items, func(it *queue.Item, _ int) string {
		return fmt.Sprintf("%s:%s:%t", it.ID, it.Status, it.IsChecked)
	})
	return strings.Join(parts, "|")
}
