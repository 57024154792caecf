package station

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
)

type Handler struct {
	st *Station
}

func NewHandler(st *Station) *Handler {
	return &Handler{st: st}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/session", h.Get)
	api.POST("/session/login", h.Login)
	api.POST("/session/logout", h.Logout)
	api.POST("/session/room", h.SwitchRoom)
}

func (h *Handler) Get(c echo.Context) error {
	sess := h.st.Session()
	if sess == nil {
		return envelope.JSON(c, 0, nil, fmt.Errorf("no user is signed in: %w", fault.ErrNotFound))
	}
	return envelope.JSON(c, http.StatusOK, sess, nil)
}

type loginRequest struct {
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Role         staff.Role `json:"role"`
	RoomID       *int       `json:"room_id"`
	SessionLabel string     `json:"session_label"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	u := staff.User{ID: req.UserID, Name: req.Name, Role: req.Role}
	sess, err := h.st.Login(c.Request().Context(), u, req.RoomID, req.SessionLabel)
	return envelope.JSON(c, http.StatusOK, sess, err)
}

func (h *Handler) Logout(c echo.Context) error {
	err := h.st.Logout(c.Request().Context())
	return envelope.JSON(c, http.StatusOK, nil, err)
}

type roomRequest struct {
	RoomID       int    `json:"room_id"`
	SessionLabel string `json:"session_label"`
}

func (h *Handler) SwitchRoom(c echo.Context) error {
	var req roomRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	if req.RoomID <= 0 {
		return envelope.JSON(c, 0, nil, fault.Invalidf("room_id is required"))
	}
	res, err := h.st.SwitchRoom(c.Request().Context(), req.RoomID, req.SessionLabel)
	return envelope.JSON(c, http.StatusOK, res, err)
}
