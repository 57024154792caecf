package station

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/internal/platform/websocket"
)

type viewerSpy struct {
	mu   sync.Mutex
	last *staff.User
	sets int
}

func (v *viewerSpy) SetViewer(u *staff.User) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = u
	v.sets++
}

type forgetSpy struct {
	topics []string
}

func (f *forgetSpy) Forget(topic string) { f.topics = append(f.topics, topic) }

type fixture struct {
	st       *Station
	registry *presence.Registry
	rooms    *room.Manager
	viewer   *viewerSpy
	hub      *forgetSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := presence.NewRegistry(presence.NewMemoryRepo(), nil, zerolog.Nop())
	rooms := room.NewManager(room.NewSeededMemoryRepo([]string{"Salle 1", "Salle 2"}), zerolog.Nop())
	v, hub := &viewerSpy{}, &forgetSpy{}
	st := New(reg, rooms, v, hub, Options{Address: "10.0.0.5", Port: 7070, Heartbeat: 10 * time.Millisecond}, zerolog.Nop())
	t.Cleanup(func() { st.Close(context.Background()) })
	return &fixture{st: st, registry: reg, rooms: rooms, viewer: v, hub: hub}
}

func newUser(name string, role staff.Role) staff.User {
	return staff.User{ID: uuid.New(), Name: name, Role: role}
}

func intPtr(i int) *int { return &i }

func TestStation_LoginAnnouncesAndLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := newUser("Dr Karim", staff.RoleDoctor)

	sess, err := f.st.Login(ctx, doc, intPtr(2), "matin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Lock == nil || sess.Lock.Status != room.StatusExclusive {
		t.Fatalf("expected exclusive lock, got %+v", sess.Lock)
	}

	online, _ := f.registry.ListActive(ctx, 30*time.Second)
	if len(online) != 1 || online[0].UserID != doc.ID || online[0].Endpoint() != "10.0.0.5:7070" {
		t.Fatalf("expected doctor online at 10.0.0.5:7070, got %+v", online)
	}
	if cur, ok := f.st.Current(); !ok || cur.ID != doc.ID {
		t.Errorf("expected current user %s, got %+v", doc.ID, cur)
	}
	if f.viewer.last == nil || f.viewer.last.ID != doc.ID {
		t.Errorf("expected poller viewer set to doctor")
	}
}

func TestStation_LoginWithoutRoom(t *testing.T) {
	f := newFixture(t)
	sess, err := f.st.Login(context.Background(), newUser("Inès", staff.RoleNurse), nil, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.RoomID != nil || sess.Lock != nil {
		t.Errorf("expected no room, got %+v", sess)
	}
}

func TestStation_LoginInvalidUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.Login(context.Background(), staff.User{Name: "x"}, nil, "")
	if !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, ok := f.st.Current(); ok {
		t.Error("expected nobody signed in")
	}
}

func TestStation_SwitchRoomLeavesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := newUser("Dr Karim", staff.RoleDoctor)
	f.st.Login(ctx, doc, intPtr(1), "")

	res, err := f.st.SwitchRoom(ctx, 2, "")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if res.Status != room.StatusExclusive {
		t.Errorf("expected exclusive, got %s", res.Status)
	}
	held, _ := f.rooms.RoomsHeldBy(ctx, doc.ID)
	if len(held) != 1 || held[0] != 2 {
		t.Errorf("expected only room 2 held, got %v", held)
	}
	if sess := f.st.Session(); sess.RoomID == nil || *sess.RoomID != 2 {
		t.Errorf("expected session room 2, got %+v", sess)
	}
}

func TestStation_SwitchRoomRequiresLogin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.st.SwitchRoom(context.Background(), 1, ""); !errors.Is(err, fault.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestStation_LogoutReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := newUser("Dr Karim", staff.RoleDoctor)
	nurse := newUser("Inès", staff.RoleNurse)
	f.rooms.Lock(ctx, 1, nurse, "")
	f.st.Login(ctx, doc, intPtr(1), "")
	f.st.SwitchRoom(ctx, 2, "")

	if err := f.st.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	held, _ := f.rooms.RoomsHeldBy(ctx, doc.ID)
	if len(held) != 0 {
		t.Errorf("expected no rooms held, got %v", held)
	}
	online, _ := f.registry.ListActive(ctx, 30*time.Second)
	if len(online) != 0 {
		t.Errorf("expected presence withdrawn, got %+v", online)
	}
	if f.viewer.last != nil {
		t.Error("expected viewer cleared")
	}
	if len(f.hub.topics) != 1 || f.hub.topics[0] != websocket.TopicQueue {
		t.Errorf("expected queue snapshot forgotten, got %v", f.hub.topics)
	}

	// heartbeat stopped: nothing re-announces
	time.Sleep(30 * time.Millisecond)
	online, _ = f.registry.ListActive(ctx, 30*time.Second)
	if len(online) != 0 {
		t.Errorf("expected heartbeat stopped, got %+v", online)
	}

	if err := f.st.Logout(ctx); err != nil {
		t.Errorf("second logout should be a no-op, got %v", err)
	}
}

func TestStation_LoginReplacesPreviousUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := newUser("Dr A", staff.RoleDoctor)
	b := newUser("Dr B", staff.RoleDoctor)
	f.st.Login(ctx, a, intPtr(1), "")
	f.st.Login(ctx, b, nil, "")

	held, _ := f.rooms.RoomsHeldBy(ctx, a.ID)
	if len(held) != 0 {
		t.Errorf("expected previous user's rooms released, got %v", held)
	}
	online, _ := f.registry.ListActive(ctx, 30*time.Second)
	if len(online) != 1 || online[0].UserID != b.ID {
		t.Errorf("expected only new user online, got %+v", online)
	}
}

func TestStation_LoginAgainMovesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := newUser("Dr Karim", staff.RoleDoctor)
	if _, err := f.st.Login(ctx, doc, intPtr(1), ""); err != nil {
		t.Fatalf("first login: %v", err)
	}
	sess, err := f.st.Login(ctx, doc, intPtr(2), "")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if sess.RoomID == nil || *sess.RoomID != 2 {
		t.Fatalf("expected session room 2, got %+v", sess)
	}
	held, _ := f.rooms.RoomsHeldBy(ctx, doc.ID)
	if len(held) != 1 || held[0] != 2 {
		t.Errorf("expected only room 2 held, got %v", held)
	}

	// same room again keeps the lock
	if _, err := f.st.Login(ctx, doc, intPtr(2), ""); err != nil {
		t.Fatalf("third login: %v", err)
	}
	if res, _ := f.rooms.CheckLock(ctx, 2, doc.ID); res.Status != room.StatusExclusive {
		t.Errorf("expected room 2 still exclusive, got %s", res.Status)
	}
}

func TestHandler_LoginAndGet(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.st), echo.New()
	u := newUser("Dr Karim", staff.RoleDoctor)

	body := `{"user_id":"` + u.ID.String() + `","name":"Dr Karim","role":"doctor","room_id":1}`
	req := httptest.NewRequest(http.MethodPost, "/session/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	rec = httptest.NewRecorder()
	h.Get(e.NewContext(req, rec))
	var resp struct {
		Data Session `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Data.User.ID != u.ID || resp.Data.RoomID == nil || *resp.Data.RoomID != 1 {
		t.Errorf("unexpected session: %+v", resp.Data)
	}
}

func TestHandler_GetWithoutSession(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.st), echo.New()
	rec := httptest.NewRecorder()
	h.Get(e.NewContext(httptest.NewRequest(http.MethodGet, "/session", nil), rec))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_SwitchRoomValidation(t *testing.T) {
	f := newFixture(t)
	h, e := NewHandler(f.st), echo.New()
	req := httptest.NewRequest(http.MethodPost, "/session/room", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	h.SwitchRoom(e.NewContext(req, rec))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
