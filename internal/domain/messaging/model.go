package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// PeerPath is where workstations accept direct messages.
const PeerPath = "/peer/v1/messages"

// Message is a short note between workstations. Audio is raw bytes and
// travels base64-encoded in JSON.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderRole     staff.Role `json:"sender_role"`
	Content        string     `json:"content"`
	Audio          []byte     `json:"audio,omitempty"`
	PatientContext string     `json:"patient_context,omitempty"`
	RoomID         *int       `json:"room_id,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
}

func (m *Message) Validate() error {
	if m.SenderID == uuid.Nil {
		return fault.Invalidf("sender_id is required")
	}
	if m.Content == "" && len(m.Audio) == 0 {
		return fault.Invalidf("content or audio is required")
	}
	return nil
}

// SetSender stamps the sending user onto the message.
func (m *Message) SetSender(u staff.User) {
	m.SenderID, m.SenderName, m.SenderRole = u.ID, u.Name, u.Role
}

// Delivery reports the outcome of one recipient of a room broadcast.
type Delivery struct {
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Address   string    `json:"address,omitempty"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
}
