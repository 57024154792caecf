package room

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/rooms", h.ListActiveRooms)
	api.GET("/rooms/:id/lock", h.CheckLock)
	api.POST("/rooms/:id/lock", h.Lock)
	api.DELETE("/rooms/:id/lock", h.Unlock)
	api.POST("/users/:id/unlock-all", h.UnlockAll)
}

// ParseID reads the :id path parameter as a room ID.
func ParseID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, fault.Invalidf("invalid room id")
	}
	return id, nil
}

func (h *Handler) ListActiveRooms(c echo.Context) error {
	rooms, err := h.mgr.ListActiveRooms(c.Request().Context())
	if rooms == nil && err == nil {
		rooms = []*Room{}
	}
	return envelope.JSON(c, http.StatusOK, rooms, err)
}

func (h *Handler) CheckLock(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	viewer := uuid.Nil
	if v := c.QueryParam("viewer"); v != "" {
		if viewer, err = uuid.Parse(v); err != nil {
			return envelope.JSON(c, 0, nil, fault.Invalidf("invalid viewer"))
		}
	}
	res, err := h.mgr.CheckLock(c.Request().Context(), id, viewer)
	return envelope.JSON(c, http.StatusOK, res, err)
}

type lockRequest struct {
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Role         staff.Role `json:"role"`
	SessionLabel string     `json:"session_label"`
}

func (h *Handler) Lock(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	user := staff.User{ID: req.UserID, Name: req.Name, Role: req.Role}
	res, err := h.mgr.Lock(c.Request().Context(), id, user, req.SessionLabel)
	return envelope.JSON(c, http.StatusOK, res, err)
}

func (h *Handler) Unlock(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	err = h.mgr.Unlock(c.Request().Context(), id)
	return envelope.JSON(c, http.StatusOK, nil, err)
}

func (h *Handler) UnlockAll(c echo.Context) error {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("invalid user id"))
	}
	n, err := h.mgr.UnlockAll(c.Request().Context(), userID)
	return envelope.JSON(c, http.StatusOK, map[string]int{"count": n}, err)
}
