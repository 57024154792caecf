package poller

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/internal/domain/messaging"
	"github.com/clinicdesk/coord/internal/domain/presence"
	"github.com/clinicdesk/coord/internal/domain/queue"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/platform/websocket"
)

// Event types pushed to the UI.
const (
	EventUsersUpdated     = "users.updated"
	EventRoomsUpdated     = "rooms.updated"
	EventQueueItemNew     = "queue.item.new"
	EventQueueUpdated     = "queue.updated"
	EventQueueSentUpdated = "queue.sent.updated"
	EventMessageNew       = "message.new"
)

// Alert sounds chosen by the UI for a new queue item.
const (
	SoundUrgent         = "urgent"
	SoundDirectedAction = "directed_action"
	SoundNewPatient     = "new_patient"
)

// OnlineUser is an active presence record joined with the rooms the user
// holds in the latest room snapshot.
type OnlineUser struct {
	presence.Record
	RoomIDs []int `json:"room_ids"`
}

type UsersUpdate struct {
	Users  []OnlineUser `json:"users"`
	Joined []uuid.UUID  `json:"joined"`
	Left   []uuid.UUID  `json:"left"`
}

type RoomsUpdate struct {
	Rooms []*room.Room `json:"rooms"`
}

type Alert struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type NewItem struct {
	Item  *queue.Item `json:"item"`
	Alert Alert       `json:"alert"`
}

type SentUpdate struct {
	Changed []*queue.Item `json:"changed"`
}

func soundFor(it *queue.Item) string {
	switch it.Classification {
	case queue.ClassUrgent:
		return SoundUrgent
	case queue.ClassDirectedAction:
		return SoundDirectedAction
	default:
		return SoundNewPatient
	}
}

// MessageRelay forwards inbound messages to the UI as message.new events.
func MessageRelay(pub websocket.EventPublisher, log zerolog.Logger) messaging.MessageHandler {
	log = log.With().Str("component", "poller").Logger()
	return func(ctx context.Context, msg messaging.Message) {
		ev, err := websocket.NewEvent(websocket.TopicMessages, EventMessageNew, msg)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("encode message event")
			return
		}
		if err := pub.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("publish message event")
		}
	}
}
