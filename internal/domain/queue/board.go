package queue

import (
	"sort"

	"github.com/samber/lo"
)

// Bucket is the display group for one room. Urgent items are shown ahead of
// regular ones; each list keeps creation order.
type Bucket struct {
	RoomID          int     `json:"room_id"`
	Urgent          []*Item `json:"urgent"`
	Regular         []*Item `json:"regular"`
	DirectedActions []*Item `json:"directed_actions"`
	// Fallback is set when the bucket holds items that named no room.
	Fallback bool `json:"fallback"`
}

// Board is the per-room presentation of a queue.
type Board struct {
	Rooms []Bucket `json:"rooms"`
	Total int      `json:"total"`
}

// BuildBoard groups items by room. Items without a room go to defaultRoom.
func BuildBoard(items []*Item, defaultRoom int) *Board {
	roomOf := func(it *Item) int {
		if it.ToRoomID != nil {
			return *it.ToRoomID
		}
		return defaultRoom
	}
	grouped := lo.GroupBy(items, roomOf)

	board := &Board{Rooms: make([]Bucket, 0, len(grouped)), Total: len(items)}
	for roomID, group := range grouped {
		board.Rooms = append(board.Rooms, Bucket{
			RoomID:          roomID,
			Urgent:          Filter(group, ClassUrgent),
			Regular:         Filter(group, ClassRegular),
			DirectedActions: Filter(group, ClassDirectedAction),
			Fallback:        lo.SomeBy(group, func(it *Item) bool { return it.ToRoomID == nil }),
		})
	}
	sort.Slice(board.Rooms, func(i, j int) bool { return board.Rooms[i].RoomID < board.Rooms[j].RoomID })
	return board
}

// Filter keeps items of one classification, preserving order.
func Filter(items []*Item, c Classification) []*Item {
	return lo.Filter(items, func(it *Item, _ int) bool { return it.Classification == c })
}

// Bucket returns the group for roomID, or nil.
func (b *Board) Bucket(roomID int) *Bucket {
	for i := range b.Rooms {
		if b.Rooms[i].RoomID == roomID {
			return &b.Rooms[i]
		}
	}
	return nil
}
