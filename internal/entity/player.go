package entity

// Participant is the persisted profile of a connected player. The transport
// owns the connection itself; entities only carry identity and room binding.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	RoomID string `json:"room_id,omitempty"`
}

// User is the identity record behind a session token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
