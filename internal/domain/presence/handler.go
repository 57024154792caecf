package presence

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
)

type Handler struct {
	registry *Registry
	// defaults used when an announce omits its endpoint
	address string
	port    int
	maxAge  time.Duration
}

func NewHandler(registry *Registry, address string, port int, maxAge time.Duration) *Handler {
	return &Handler{registry: registry, address: address, port: port, maxAge: maxAge}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/presence/announce", h.Announce)
	api.POST("/presence/withdraw", h.Withdraw)
	api.GET("/presence", h.ListActive)
}

type announceRequest struct {
	UserID        uuid.UUID  `json:"user_id"`
	Name          string     `json:"name"`
	Role          staff.Role `json:"role"`
	Address       string     `json:"address"`
	MessagingPort int        `json:"messaging_port"`
}

func (h *Handler) Announce(c echo.Context) error {
	var req announceRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	if req.Address == "" {
		req.Address = h.address
	}
	if req.MessagingPort == 0 {
		req.MessagingPort = h.port
	}
	rec := FromUser(staff.User{ID: req.UserID, Name: req.Name, Role: req.Role}, req.Address, req.MessagingPort)
	out, err := h.registry.Announce(c.Request().Context(), rec)
	return envelope.JSON(c, http.StatusOK, out, err)
}

type withdrawRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *Handler) Withdraw(c echo.Context) error {
	var req withdrawRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	if req.UserID == uuid.Nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("user_id is required"))
	}
	err := h.registry.Withdraw(c.Request().Context(), req.UserID)
	return envelope.JSON(c, http.StatusOK, nil, err)
}

func (h *Handler) ListActive(c echo.Context) error {
	maxAge := h.maxAge
	if raw := c.QueryParam("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return envelope.JSON(c, 0, nil, fault.Invalidf("invalid max_age"))
		}
		maxAge = d
	}
	recs, err := h.registry.ListActive(c.Request().Context(), maxAge)
	if recs == nil && err == nil {
		recs = []Record{}
	}
	return envelope.JSON(c, http.StatusOK, recs, err)
}
