package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/staff"
)

func newTestHandler() (*Handler, *echo.Echo) {
	r := NewRegistry(NewMemoryRepo(), nil, zerolog.Nop())
	return NewHandler(r, "10.0.0.5", 7070, 30*time.Second), echo.New()
}

func TestHandler_Announce_FillsEndpoint(t *testing.T) {
	h, e := newTestHandler()
	body := `{"user_id":"` + testRecord("x", staff.RoleNurse).UserID.String() + `","name":"Anne","role":"doctor"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Announce(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Data    Record `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Data.Endpoint() != "10.0.0.5:7070" {
		t.Errorf("expected default endpoint, got %s", resp.Data.Endpoint())
	}
}

func TestHandler_Announce_Invalid(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Anne","role":"doctor"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.Announce(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"invalid"`) {
		t.Errorf("expected invalid code, got %s", rec.Body.String())
	}
}

func TestHandler_ListActive(t *testing.T) {
	h, e := newTestHandler()
	h.registry.Announce(context.Background(), testRecord("Anne", staff.RoleDoctor))

	req := httptest.NewRequest(http.MethodGet, "/?max_age=1m", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListActive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data []Record `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Data) != 1 {
		t.Errorf("expected 1 record, got %d", len(resp.Data))
	}
}

func TestHandler_ListActive_BadMaxAge(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?max_age=soon", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h.ListActive(c)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Withdraw(t *testing.T) {
	h, e := newTestHandler()
	r := testRecord("Anne", staff.RoleDoctor)
	h.registry.Announce(context.Background(), r)

	body := `{"user_id":"` + r.UserID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Withdraw(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	recs, _ := h.registry.ListActive(context.Background(), time.Minute)
	if len(recs) != 0 {
		t.Errorf("expected no active records, got %d", len(recs))
	}
}
