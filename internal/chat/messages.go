package chat

import (
	"time"

	"github.com/lanchat/relay/internal/types"
)

// ClientEvent is a single inbound frame. Exactly one of the pointer members
// is expected to be set.
type ClientEvent struct {
	Join        *JoinRequest        `json:"join,omitempty"`
	JoinRoom    *JoinRoomRequest    `json:"join_room,omitempty"`
	CreateRoom  *CreateRoomRequest  `json:"create_room,omitempty"`
	DeleteRoom  *DeleteRoomRequest  `json:"delete_room,omitempty"`
	SendMessage *SendMessageRequest `json:"send_message,omitempty"`
	Typing      *TypingRequest      `json:"typing,omitempty"`
	GetRooms    *GetRoomsRequest    `json:"get_rooms,omitempty"`
}

type JoinRequest struct {
	Username string `json:"username"`
	RoomId   string `json:"room_id,omitempty"`
}

type JoinRoomRequest struct {
	RoomId string `json:"room_id"`
}

type CreateRoomRequest struct {
	RoomId   string `json:"room_id"`
	RoomName string `json:"room_name,omitempty"`
}

type DeleteRoomRequest struct {
	RoomId string `json:"room_id"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
	RoomId  string `json:"room_id,omitempty"`
}

type TypingRequest struct {
	IsTyping bool   `json:"is_typing"`
	RoomId   string `json:"room_id,omitempty"`
}

type GetRoomsRequest struct{}

// ServerEvent is a single outbound frame. Exactly one of the pointer members
// is set per event.
type ServerEvent struct {
	Timestamp   time.Time          `json:"timestamp"`
	Message     *types.Message     `json:"message,omitempty"`
	History     *MessageHistory    `json:"message_history,omitempty"`
	UserList    *UserList          `json:"user_list,omitempty"`
	RoomList    *RoomList          `json:"room_list,omitempty"`
	RoomCreated *types.RoomSummary `json:"room_created,omitempty"`
	RoomDeleted *RoomDeleted       `json:"room_deleted,omitempty"`
	Kicked      *KickedFromRoom    `json:"kicked_from_room,omitempty"`
	RoomJoined  *RoomJoined        `json:"room_joined,omitempty"`
	UserTyping  *UserTyping        `json:"user_typing,omitempty"`
	Error       *ErrorEvent        `json:"error,omitempty"`
}

type MessageHistory struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type UserList struct {
	RoomId string       `json:"room_id"`
	Users  []types.User `json:"users"`
}

type RoomList struct {
	Rooms []types.RoomSummary `json:"rooms"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

type KickedFromRoom struct {
	RoomId string `json:"room_id"`
	// MovedTo names the room the member was relocated to.
	MovedTo string `json:"moved_to"`
}

type RoomJoined struct {
	RoomId    string `json:"room_id"`
	Name      string `json:"name"`
	UserCount int    `json:"user_count"`
}

type UserTyping struct {
	RoomId   string `json:"room_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type ErrorEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newMessageEvent(msg types.Message) *ServerEvent {
	return &ServerEvent{Timestamp: Now(), Message: &msg}
}

func newHistoryEvent(roomId string, msgs []types.Message) *ServerEvent {
	if msgs == nil {
		msgs = []types.Message{}
	}
	return &ServerEvent{Timestamp: Now(), History: &MessageHistory{RoomId: roomId, Messages: msgs}}
}

func newErrorEvent(err *Error) *ServerEvent {
	return &ServerEvent{Timestamp: Now(), Error: &ErrorEvent{Kind: err.Kind.String(), Message: err.Message}}
}

// Now returns the wall clock truncated to the resolution used on the wire.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
