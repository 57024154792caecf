package queue

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
	"github.com/clinicdesk/coord/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/queue", h.SendToRoom)
	api.POST("/queue/directed-actions", h.SendDirectedAction)
	api.POST("/queue/:id/seen", h.MarkSeen)
	api.POST("/queue/:id/completed", h.MarkCompleted)
	api.PUT("/queue/:id/checked", h.ToggleChecked)
	api.GET("/queue/inbox", h.QueueFor)
	api.GET("/queue/sent", h.SentBy)
	api.GET("/queue/board", h.Board)
	api.GET("/queue/actions", h.ListActions)
	api.GET("/rooms/:id/daily-count", h.DailyCount)
}

func bad(c echo.Context, msg string) error {
	return envelope.JSON(c, 0, nil, fault.Invalidf("%s", msg))
}

func (h *Handler) SendToRoom(c echo.Context) error {
	var req RoomHandOff
	if err := c.Bind(&req); err != nil {
		return bad(c, err.Error())
	}
	item, err := h.svc.SendToRoom(c.Request().Context(), req)
	return envelope.JSON(c, http.StatusCreated, item, err)
}

func (h *Handler) SendDirectedAction(c echo.Context) error {
	var req DirectedAction
	if err := c.Bind(&req); err != nil {
		return bad(c, err.Error())
	}
	item, err := h.svc.SendDirectedAction(c.Request().Context(), req)
	return envelope.JSON(c, http.StatusCreated, item, err)
}

func itemID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fault.Invalidf("invalid id")
	}
	return id, nil
}

func (h *Handler) MarkSeen(c echo.Context) error {
	id, err := itemID(c)
	if err == nil {
		err = h.svc.MarkSeen(c.Request().Context(), id)
	}
	return envelope.JSON(c, http.StatusOK, nil, err)
}

func (h *Handler) MarkCompleted(c echo.Context) error {
	id, err := itemID(c)
	if err == nil {
		err = h.svc.MarkCompleted(c.Request().Context(), id)
	}
	return envelope.JSON(c, http.StatusOK, nil, err)
}

type checkedRequest struct {
	Value bool `json:"value"`
}

func (h *Handler) ToggleChecked(c echo.Context) error {
	id, err := itemID(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	var req checkedRequest
	if err := c.Bind(&req); err != nil {
		return bad(c, err.Error())
	}
	err = h.svc.ToggleChecked(c.Request().Context(), id, req.Value)
	return envelope.JSON(c, http.StatusOK, nil, err)
}

func viewer(c echo.Context) (uuid.UUID, staff.Role, error) {
	userID, err := uuid.Parse(c.QueryParam("user_id"))
	if err != nil {
		return uuid.Nil, "", fault.Invalidf("user_id is required")
	}
	role := staff.Role(c.QueryParam("role"))
	if role != "" && !role.Valid() {
		return uuid.Nil, "", fault.Invalidf("invalid role")
	}
	return userID, role, nil
}

func (h *Handler) QueueFor(c echo.Context) error {
	userID, role, err := viewer(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	items, err := h.svc.QueueFor(c.Request().Context(), userID, role)
	if items == nil && err == nil {
		items = []*Item{}
	}
	return envelope.JSON(c, http.StatusOK, items, err)
}

func (h *Handler) SentBy(c echo.Context) error {
	userID, err := uuid.Parse(c.QueryParam("user_id"))
	if err != nil {
		return bad(c, "user_id is required")
	}
	items, err := h.svc.SentBy(c.Request().Context(), userID)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	return envelope.JSON(c, http.StatusOK, pagination.Apply(items, pagination.FromContext(c)), nil)
}

func (h *Handler) Board(c echo.Context) error {
	userID, role, err := viewer(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	board, err := h.svc.Board(c.Request().Context(), userID, role)
	return envelope.JSON(c, http.StatusOK, board, err)
}

func (h *Handler) ListActions(c echo.Context) error {
	return envelope.JSON(c, http.StatusOK, Actions(), nil)
}

func (h *Handler) DailyCount(c echo.Context) error {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		return bad(c, "invalid room id")
	}
	day, err := h.svc.ParseDay(c.QueryParam("date"))
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	n, err := h.svc.DailyCount(c.Request().Context(), roomID, day)
	return envelope.JSON(c, http.StatusOK, map[string]interface{}{
		"room_id": roomID,
		"date":    day.Format("2006-01-02"),
		"count":   n,
	}, err)
}
