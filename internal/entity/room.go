package entity

import "fmt"

const (
	StatusWaiting  = "waiting"
	StatusStarting = "starting"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

// Seat is one fixed position in a room's turn order.
type Seat struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type Room struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
	Members  []Seat `json:"members"`
	Status   string `json:"status"`
}

func NewRoom(id string, capacity int) *Room {
	return &Room{
		ID:       id,
		Capacity: capacity,
		Members:  make([]Seat, 0, capacity),
		Status:   StatusWaiting,
	}
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Room) IsFull() bool {
	return len(that.Members) >= that.Capacity
}

// HasMember reports whether the player already holds a seat.
func (that *Room) HasMember(playerID string) bool {
	return that.SeatOf(playerID) >= 0
}

// SeatOf returns the player's seat index, or -1.
func (that *Room) SeatOf(playerID string) int {
	for i, seat := range that.Members {
		if seat.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// AddMember seats a player. The seat order stays provisional until the
// waiting->starting transition fixes it.
func (that *Room) AddMember(playerID, name string) error {
	if that.IsFull() {
		return fmt.Errorf("room %s is full", that.ID)
	}

	that.Members = append(that.Members, Seat{PlayerID: playerID, Name: name})
	return nil
}

// RemoveMember unseats a player while the room is still waiting.
func (that *Room) RemoveMember(playerID string) {
	idx := that.SeatOf(playerID)
	if idx < 0 {
		return
	}
	that.Members = append(that.Members[:idx], that.Members[idx+1:]...)
}

// MemberNames lists display names in seat order.
func (that *Room) MemberNames() []string {
	names := make([]string, len(that.Members))
	for i, seat := range that.Members {
		names[i] = seat.Name
	}
	return names
}
