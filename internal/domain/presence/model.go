package presence

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/fault"
)

// Record is a time-bounded claim that a user's workstation is reachable.
type Record struct {
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	DisplayName   string     `db:"display_name" json:"display_name"`
	Role          staff.Role `db:"role" json:"role"`
	Address       string     `db:"address" json:"address"`
	MessagingPort int        `db:"messaging_port" json:"messaging_port"`
	LastSeenAt    time.Time  `db:"last_seen_at" json:"last_seen_at"`
}

// Endpoint is the host:port peers deliver direct messages to.
func (r *Record) Endpoint() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.MessagingPort))
}

func (r *Record) User() staff.User {
	return staff.User{ID: r.UserID, Name: r.DisplayName, Role: r.Role}
}

func (r *Record) Validate() error {
	if err := r.User().Validate(); err != nil {
		return err
	}
	if r.Address == "" {
		return fault.Invalidf("address is required")
	}
	if r.MessagingPort <= 0 || r.MessagingPort > 65535 {
		return fault.Invalidf("messaging_port out of range")
	}
	return nil
}

// FromUser builds the record a workstation announces for its logged-in user.
func FromUser(u staff.User, address string, port int) Record {
	return Record{
		UserID:        u.ID,
		DisplayName:   u.Name,
		Role:          u.Role,
		Address:       address,
		MessagingPort: port,
	}
}

// PacketKind distinguishes LAN beacon packets.
type PacketKind string

const (
	PacketAnnounce PacketKind = "announce"
	PacketWithdraw PacketKind = "withdraw"
)

// Packet is the JSON datagram exchanged by beacons.
type Packet struct {
	Kind   PacketKind `json:"kind"`
	Record Record     `json:"record"`
}
