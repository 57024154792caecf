package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// Rooms is the room identity the queue depends on.
type Rooms interface {
	RoomExists(ctx context.Context, roomID int) (bool, error)
	RoomsHeldBy(ctx context.Context, userID uuid.UUID) ([]int, error)
}

type Service struct {
	repo        Repository
	rooms       Rooms
	defaultRoom int
	loc         *time.Location
	log         zerolog.Logger
	now         func() time.Time
}

// NewService builds the hand-off queue. defaultRoom receives directed actions
// whose recipient room is unknown; loc sets the civil day for DailyCount.
func NewService(repo Repository, rooms Rooms, defaultRoom int, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:        repo,
		rooms:       rooms,
		defaultRoom: defaultRoom,
		loc:         loc,
		log:         log.With().Str("component", "queue").Logger(),
		now:         time.Now,
	}
}

func (s *Service) DefaultRoom() int { return s.defaultRoom }

// RoomHandOff sends a patient to a room.
type RoomHandOff struct {
	Patient
	From           staff.User     `json:"from"`
	ToRoomID       int            `json:"to_room_id"`
	Classification Classification `json:"classification"`
	ActionLabel    string         `json:"action_label,omitempty"`
}

// DirectedAction is a doctor-to-nurse instruction, optionally tied to a room.
type DirectedAction struct {
	Patient
	From        staff.User `json:"from"`
	ToUserID    uuid.UUID  `json:"to_user_id"`
	ToRole      staff.Role `json:"to_role"`
	ToRoomID    *int       `json:"to_room_id,omitempty"`
	ActionCode  string     `json:"action_code"`
	ActionLabel string     `json:"action_label,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) create(ctx context.Context, item *Item) (*Item, error) {
	item.ID = uuid.New()
	item.Status = StatusPending
	item.CreatedAt = s.now()
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if item.ToRoomID != nil {
		ok, err := s.rooms.RoomExists(ctx, *item.ToRoomID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("room %d: %w", *item.ToRoomID, fault.ErrNotFound)
		}
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create queue item: %w", err)
	}
	s.log.Info().Str("item_id", item.ID.String()).Str("patient_code", item.PatientCode).
		Str("classification", string(item.Classification)).Msg("patient queued")
	return item, nil
}

// SendToRoom queues a patient for whoever works in toRoomID.
func (s *Service) SendToRoom(ctx context.Context, h RoomHandOff) (*Item, error) {
	if err := h.From.Validate(); err != nil {
		return nil, err
	}
	if h.Classification == "" {
		h.Classification = ClassRegular
	}
	room := h.ToRoomID
	return s.create(ctx, &Item{
		PatientCode:    h.Code,
		PatientName:    h.Name,
		FromUserID:     h.From.ID,
		FromRole:       h.From.Role,
		ToRoomID:       &room,
		Classification: h.Classification,
		ActionLabel:    optional(h.ActionLabel),
	})
}

// SendDirectedAction queues an action code for a user. A missing label is
// taken from the action catalog.
func (s *Service) SendDirectedAction(ctx context.Context, a DirectedAction) (*Item, error) {
	if err := a.From.Validate(); err != nil {
		return nil, err
	}
	if a.ToUserID == uuid.Nil {
		return nil, fault.Invalidf("to_user_id is required")
	}
	if a.ActionCode == "" {
		return nil, fault.Invalidf("action_code is required")
	}
	if a.ActionLabel == "" {
		label, ok := LookupAction(a.ActionCode)
		if !ok {
			return nil, fault.Invalidf("unknown action code %q", a.ActionCode)
		}
		a.ActionLabel = label
	}
	to := a.ToUserID
	item := &Item{
		PatientCode:    a.Code,
		PatientName:    a.Name,
		FromUserID:     a.From.ID,
		FromRole:       a.From.Role,
		ToRoomID:       a.ToRoomID,
		ToUserID:       &to,
		Classification: ClassDirectedAction,
		ActionCode:     optional(a.ActionCode),
		ActionLabel:    optional(a.ActionLabel),
	}
	if a.ToRole != "" {
		role := a.ToRole
		item.ToRole = &role
	}
	return s.create(ctx, item)
}

// MarkSeen moves a pending item to seen. Anything else is a no-op.
func (s *Service) MarkSeen(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.MarkSeen(ctx, id, s.now()); err != nil {
		return fmt.Errorf("mark seen %s: %w", id, err)
	}
	return nil
}

// MarkCompleted closes an item, whether consulted or cancelled. Repeating it
// is a no-op.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.MarkCompleted(ctx, id, s.now()); err != nil {
		return fmt.Errorf("mark completed %s: %w", id, err)
	}
	return nil
}

// ToggleChecked sets the "next patient" flag without touching status.
func (s *Service) ToggleChecked(ctx context.Context, id uuid.UUID, value bool) error {
	if _, err := s.repo.SetChecked(ctx, id, value); err != nil {
		return fmt.Errorf("toggle checked %s: %w", id, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.Get(ctx, id)
}

// QueueFor returns the open items for userID, oldest first: items sent to
// them, to a room they hold, or only to their role.
func (s *Service) QueueFor(ctx context.Context, userID uuid.UUID, role staff.Role) ([]*Item, error) {
	if userID == uuid.Nil {
		return nil, fault.Invalidf("user_id is required")
	}
	rooms, err := s.rooms.RoomsHeldBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve rooms of %s: %w", userID, err)
	}
	items, err := s.repo.ListOpenFor(ctx, userID, rooms, role)
	if err != nil {
		return nil, fmt.Errorf("queue for %s: %w", userID, err)
	}
	return items, nil
}

// SentBy returns every item userID sent, oldest first.
func (s *Service) SentBy(ctx context.Context, userID uuid.UUID) ([]*Item, error) {
	if userID == uuid.Nil {
		return nil, fault.Invalidf("user_id is required")
	}
	items, err := s.repo.ListSentBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sent by %s: %w", userID, err)
	}
	return items, nil
}

// DailyCount counts items created for roomID on the clinic's civil day
// containing date. An unknown room is ErrNotFound.
func (s *Service) DailyCount(ctx context.Context, roomID int, date time.Time) (int, error) {
	ok, err := s.rooms.RoomExists(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("room %d: %w", roomID, fault.ErrNotFound)
	}
	d := date.In(s.loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, 1)
	n, err := s.repo.CountForRoom(ctx, roomID, from, to)
	if err != nil {
		return 0, fmt.Errorf("daily count room %d: %w", roomID, err)
	}
	return n, nil
}

// ParseDay reads YYYY-MM-DD in the clinic time zone; empty means today.
func (s *Service) ParseDay(raw string) (time.Time, error) {
	if raw == "" {
		return s.now().In(s.loc), nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, s.loc)
	if err != nil {
		return time.Time{}, fault.Invalidf("date must be YYYY-MM-DD")
	}
	return d, nil
}

// Board groups QueueFor(userID, role) by room for display.
func (s *Service) Board(ctx context.Context, userID uuid.UUID, role staff.Role) (*Board, error) {
	items, err := s.QueueFor(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	return BuildBoard(items, s.defaultRoom), nil
}

// PurgeCompletedBefore deletes completed items closed before cutoff.
func (s *Service) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.repo.PurgeCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return n, nil
}
