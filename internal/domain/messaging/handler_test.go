package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/staff"
)

func TestHandler_SendDirect_ResolvesUser(t *testing.T) {
	addr, inbox := peer(t)
	target := uuid.New()
	tr := NewTransport(time.Second, staticDirectory{record(target, "Dr Karim", addr)}, staticOccupants{}, 30*time.Second, zerolog.Nop())
	me := staff.User{ID: uuid.New(), Name: "Inès", Role: staff.RoleNurse}
	h := NewHandler(tr, func() (staff.User, bool) { return me, true })

	e := echo.New()
	body := `{"to_user_id":"` + target.String() + `","content":"P001 en salle 2"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SendDirect(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	select {
	case got := <-inbox:
		if got.SenderID != me.ID || got.SenderName != "Inès" {
			t.Errorf("expected sender filled from session, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestHandler_SendDirect_OfflineUser(t *testing.T) {
	tr := NewTransport(time.Second, staticDirectory{}, staticOccupants{}, 30*time.Second, zerolog.Nop())
	h := NewHandler(tr, nil)

	e := echo.New()
	body := `{"to_user_id":"` + uuid.New().String() + `","sender_id":"` + uuid.New().String() + `","content":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.SendDirect(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_SendDirect_Unreachable(t *testing.T) {
	tr := NewTransport(200*time.Millisecond, staticDirectory{}, staticOccupants{}, 30*time.Second, zerolog.Nop())
	h := NewHandler(tr, nil)

	e := echo.New()
	body := `{"address":"127.0.0.1:1","sender_id":"` + uuid.New().String() + `","content":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.SendDirect(c)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"unreachable"`) {
		t.Errorf("expected unreachable code, got %s", rec.Body.String())
	}
}

func TestPeerHandler_Receive(t *testing.T) {
	recv := NewReceiver(30*time.Second, zerolog.Nop())
	got := 0
	recv.OnMessage(func(context.Context, Message) { got++ })
	h := NewPeerHandler(recv)
	e := echo.New()

	body := `{"id":"` + uuid.New().String() + `","sender_id":"` + uuid.New().String() +
		`","content":"hello","sent_at":"2024-03-04T09:00:00Z"}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, PeerPath, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.Receive(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusAccepted {
			t.Errorf("expected 202, got %d", rec.Code)
		}
	}
	if got != 1 {
		t.Errorf("expected one handled message, got %d", got)
	}
}

func TestHandler_SendRoomBroadcast_BadRoom(t *testing.T) {
	tr := NewTransport(time.Second, staticDirectory{}, staticOccupants{}, 30*time.Second, zerolog.Nop())
	h := NewHandler(tr, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("zero")

	h.SendRoomBroadcast(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
