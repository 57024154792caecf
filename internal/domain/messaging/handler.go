package messaging

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
)

// CurrentUser returns the user logged in on this workstation, if any.
type CurrentUser func() (staff.User, bool)

// Handler exposes sending to the local UI.
type Handler struct {
	transport *Transport
	current   CurrentUser
}

func NewHandler(transport *Transport, current CurrentUser) *Handler {
	return &Handler{transport: transport, current: current}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/messages/direct", h.SendDirect)
	api.POST("/rooms/:id/messages", h.SendRoomBroadcast)
}

type directRequest struct {
	Address  string    `json:"address"`
	ToUserID uuid.UUID `json:"to_user_id"`
	Message
}

// withSender fills the sender from the logged-in user when the request has none.
func (h *Handler) withSender(msg *Message) {
	if msg.SenderID != uuid.Nil || h.current == nil {
		return
	}
	if u, ok := h.current(); ok {
		msg.SetSender(u)
	}
}

func (h *Handler) SendDirect(c echo.Context) error {
	var req directRequest
	if err := c.Bind(&req); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	ctx := c.Request().Context()
	address := req.Address
	if address == "" {
		if req.ToUserID == uuid.Nil {
			return envelope.JSON(c, 0, nil, fault.Invalidf("address or to_user_id is required"))
		}
		rec, err := h.transport.Resolve(ctx, req.ToUserID)
		if err != nil {
			return envelope.JSON(c, 0, nil, err)
		}
		address = rec.Endpoint()
	}
	msg := req.Message
	h.withSender(&msg)
	err := h.transport.SendDirect(ctx, address, &msg)
	return envelope.JSON(c, http.StatusOK, msg, err)
}

func (h *Handler) SendRoomBroadcast(c echo.Context) error {
	roomID, err := room.ParseID(c)
	if err != nil {
		return envelope.JSON(c, 0, nil, err)
	}
	var msg Message
	if err := c.Bind(&msg); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	h.withSender(&msg)
	deliveries, err := h.transport.SendRoomBroadcast(c.Request().Context(), roomID, &msg)
	return envelope.JSON(c, http.StatusOK, deliveries, err)
}

// PeerHandler accepts messages from other workstations.
type PeerHandler struct {
	receiver *Receiver
}

func NewPeerHandler(receiver *Receiver) *PeerHandler {
	return &PeerHandler{receiver: receiver}
}

func (h *PeerHandler) RegisterRoutes(e *echo.Echo) {
	e.POST(PeerPath, h.Receive)
}

func (h *PeerHandler) Receive(c echo.Context) error {
	var msg Message
	if err := c.Bind(&msg); err != nil {
		return envelope.JSON(c, 0, nil, fault.Invalidf("%v", err))
	}
	accepted, err := h.receiver.Deliver(c.Request().Context(), msg)
	return envelope.JSON(c, http.StatusAccepted, map[string]bool{"duplicate": !accepted}, err)
}
