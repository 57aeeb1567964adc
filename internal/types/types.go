package types

import (
	"time"
)

// MessageKind distinguishes user text from system-authored entries in a
// room's history.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindJoin  MessageKind = "join"
	KindLeave MessageKind = "leave"
	KindAdmin MessageKind = "admin"
)

type User struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	ConnId      string    `json:"-"`
	Address     string    `json:"address"`
	JoinTime    time.Time `json:"join_time"`
	CurrentRoom string    `json:"current_room,omitempty"`
	IsMuted     bool      `json:"is_muted"`
}

type Message struct {
	Id         string      `json:"id"`
	Kind       MessageKind `json:"kind"`
	Username   string      `json:"username"`
	Content    string      `json:"content"`
	Rendered   string      `json:"rendered,omitempty"`
	IsRendered bool        `json:"is_rendered"`
	Timestamp  time.Time   `json:"timestamp"`
	RoomId     string      `json:"room_id"`
	// Address is empty for system-authored messages.
	Address string `json:"-"`
}

// RoomSummary is the per-room entry of a room_list snapshot.
type RoomSummary struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	UserCount int       `json:"user_count"`
	Created   time.Time `json:"created"`
	IsPublic  bool      `json:"is_public"`
}
