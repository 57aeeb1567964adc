package chat

import (
	"sort"
	"time"

	"github.com/lanchat/relay/internal/types"
)

const (
	// DefaultRoomId names the room that always exists and cannot be deleted.
	DefaultRoomId = "default"

	minNameLen = 2
	maxNameLen = 20

	// historyLimit bounds per-room retention; older entries are discarded.
	historyLimit = 50
)

type Room struct {
	Id      string
	Name    string
	Created time.Time
	// IsPublic is carried on room_list snapshots; clients use it to
	// decide whether to show the room in their pickers.
	IsPublic bool
	// members is the authoritative membership relation, keyed by
	// connection id. A user's CurrentRoom is a denormalized pointer into
	// this map and is only ever updated together with it.
	members map[string]*types.User
	history []types.Message
}

func newRoom(id, name string) *Room {
	if name == "" {
		name = id
	}
	return &Room{
		Id:       id,
		Name:     name,
		Created:  Now(),
		IsPublic: true,
		members:  make(map[string]*types.User),
	}
}

func (r *Room) summary() types.RoomSummary {
	return types.RoomSummary{
		Id:        r.Id,
		Name:      r.Name,
		UserCount: len(r.members),
		Created:   r.Created,
		IsPublic:  r.IsPublic,
	}
}

// Members returns the room's users ordered by join time.
func (r *Room) Members() []*types.User {
	members := make([]*types.User, 0, len(r.members))
	for _, u := range r.members {
		members = append(members, u)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinTime.Equal(members[j].JoinTime) {
			return members[i].Id < members[j].Id
		}
		return members[i].JoinTime.Before(members[j].JoinTime)
	})
	return members
}

// RoomStore owns room lifecycle, membership and bounded message history.
// It performs no locking of its own: all access is serialized by the engine.
type RoomStore struct {
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	rs := &RoomStore{rooms: make(map[string]*Room)}
	rs.rooms[DefaultRoomId] = newRoom(DefaultRoomId, "Default")
	return rs
}

func (rs *RoomStore) Get(roomId string) (*Room, bool) {
	r, ok := rs.rooms[roomId]
	return r, ok
}

// GetOrCreate returns the existing room or creates an empty one. The second
// return reports whether a room was created, in which case the caller owes a
// room-list broadcast.
func (rs *RoomStore) GetOrCreate(roomId, displayName string) (*Room, bool) {
	if r, ok := rs.rooms[roomId]; ok {
		return r, false
	}

	r := newRoom(roomId, displayName)
	rs.rooms[roomId] = r
	return r, true
}

// Delete removes a room. Without force it refuses to delete a populated
// room; with force every member is relocated to the default room first and
// returned so the caller can notify them. The room's history is discarded
// either way.
func (rs *RoomStore) Delete(roomId string, force bool) ([]*types.User, *Error) {
	if roomId == DefaultRoomId {
		return nil, errDefaultRoom()
	}

	room, ok := rs.rooms[roomId]
	if !ok {
		return nil, errRoomNotFound(roomId)
	}

	if len(room.members) > 0 && !force {
		return nil, errRoomNotEmpty(roomId)
	}

	relocated := rs.evictAll(room)
	delete(rs.rooms, roomId)
	return relocated, nil
}

// EvictAll relocates every member of a room to the default room without
// deleting it, returning the relocated users.
func (rs *RoomStore) EvictAll(roomId string) ([]*types.User, *Error) {
	if roomId == DefaultRoomId {
		return nil, newError(InvalidOperation, "members cannot be evicted from the default room")
	}

	room, ok := rs.rooms[roomId]
	if !ok {
		return nil, errRoomNotFound(roomId)
	}

	return rs.evictAll(room), nil
}

func (rs *RoomStore) evictAll(room *Room) []*types.User {
	if len(room.members) == 0 {
		return nil
	}

	def := rs.rooms[DefaultRoomId]
	relocated := room.Members()
	for _, u := range relocated {
		delete(room.members, u.ConnId)
		def.members[u.ConnId] = u
		u.CurrentRoom = DefaultRoomId
	}
	return relocated
}

// AppendMessage appends to a room's history, discarding the oldest entry
// once the retention bound is reached. A message for a room that no longer
// exists is dropped: a send racing a delete resolves in favor of the delete.
func (rs *RoomStore) AppendMessage(roomId string, msg types.Message) {
	room, ok := rs.rooms[roomId]
	if !ok {
		return
	}

	if len(room.history) >= historyLimit {
		n := copy(room.history, room.history[len(room.history)-historyLimit+1:])
		room.history = room.history[:n]
	}
	room.history = append(room.history, msg)
}

// RecentHistory returns up to limit retained messages, oldest first.
func (rs *RoomStore) RecentHistory(roomId string, limit int) []types.Message {
	room, ok := rs.rooms[roomId]
	if !ok {
		return nil
	}

	if limit <= 0 || limit > len(room.history) {
		limit = len(room.history)
	}

	out := make([]types.Message, limit)
	copy(out, room.history[len(room.history)-limit:])
	return out
}

// List returns a snapshot of room summaries ordered by creation time, the
// default room first.
func (rs *RoomStore) List() []types.RoomSummary {
	summaries := make([]types.RoomSummary, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		summaries = append(summaries, r.summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Id == DefaultRoomId {
			return true
		}
		if summaries[j].Id == DefaultRoomId {
			return false
		}
		if summaries[i].Created.Equal(summaries[j].Created) {
			return summaries[i].Id < summaries[j].Id
		}
		return summaries[i].Created.Before(summaries[j].Created)
	})
	return summaries
}

func validRoomId(roomId string) bool {
	return len(roomId) >= minNameLen && len(roomId) <= maxNameLen
}

func validUsername(username string) bool {
	return len(username) >= minNameLen && len(username) <= maxNameLen
}
