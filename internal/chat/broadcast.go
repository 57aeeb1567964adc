package chat

import (
	"log"

	"github.com/lanchat/relay/internal/types"
)

// Conn is the outbound half of a connection. QueueEvent must never block;
// it reports whether the event was accepted.
type Conn interface {
	ID() string
	RemoteAddress() string
	QueueEvent(ev *ServerEvent) bool
}

// Broadcaster fans state-change events out to a single connection, a room's
// members or every connection. It holds no state of its own beyond the
// connection table; snapshot payloads are recomputed from the stores on
// every call.
type Broadcaster struct {
	log      *log.Logger
	conns    map[string]Conn
	rooms    *RoomStore
	sessions *SessionRegistry
}

func NewBroadcaster(logger *log.Logger, rooms *RoomStore, sessions *SessionRegistry) *Broadcaster {
	return &Broadcaster{
		log:      logger,
		conns:    make(map[string]Conn),
		rooms:    rooms,
		sessions: sessions,
	}
}

func (b *Broadcaster) Register(conn Conn) {
	b.conns[conn.ID()] = conn
}

func (b *Broadcaster) Unregister(connId string) {
	delete(b.conns, connId)
}

func (b *Broadcaster) ToConn(connId string, ev *ServerEvent) {
	conn, ok := b.conns[connId]
	if !ok {
		return
	}

	if !conn.QueueEvent(ev) {
		b.log.Printf("dropping event for connection %q, send queue full", connId)
	}
}

// ToRoom delivers to every member of the room except skipConnId. A full
// queue on one recipient never affects delivery to the others.
func (b *Broadcaster) ToRoom(roomId string, ev *ServerEvent, skipConnId string) {
	room, ok := b.rooms.Get(roomId)
	if !ok {
		return
	}

	for connId := range room.members {
		if connId == skipConnId {
			continue
		}
		b.ToConn(connId, ev)
	}
}

func (b *Broadcaster) ToAll(ev *ServerEvent) {
	for connId, conn := range b.conns {
		if !conn.QueueEvent(ev) {
			b.log.Printf("dropping event for connection %q, send queue full", connId)
		}
	}
}

// RoomListEvent builds a fresh room_list snapshot.
func (b *Broadcaster) RoomListEvent() *ServerEvent {
	return &ServerEvent{Timestamp: Now(), RoomList: &RoomList{Rooms: b.rooms.List()}}
}

// UserListEvent builds a fresh user_list snapshot for one room, members
// ordered by join time.
func (b *Broadcaster) UserListEvent(roomId string) *ServerEvent {
	users := []types.User{}
	if room, ok := b.rooms.Get(roomId); ok {
		for _, u := range room.Members() {
			users = append(users, *u)
		}
	}

	return &ServerEvent{Timestamp: Now(), UserList: &UserList{RoomId: roomId, Users: users}}
}
