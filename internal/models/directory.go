package models

// Identity is a known person. Embedding is derived once from a reference
// photo at import time and never changes afterwards.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Department  string    `json:"department"`
	Embedding   []float32 `json:"-"`
}

type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Camera binds a network address to at most one room
type Camera struct {
	Address string  `json:"address"`
	RoomID  *string `json:"room_id,omitempty"`
}

// AccessRule grants Department access to RoomID
type AccessRule struct {
	Department string `json:"department"`
	RoomID     string `json:"room_id"`
}
