package chat

import (
	"sort"

	"github.com/lanchat/relay/internal/types"
)

// SessionRegistry is the source of truth for which user is bound to which
// live connection. Like RoomStore it relies on the engine for serialization.
type SessionRegistry struct {
	users map[string]*types.User
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{users: make(map[string]*types.User)}
}

func (sr *SessionRegistry) Bind(connId string, user *types.User) {
	sr.users[connId] = user
}

// Unbind removes the connection's binding, returning the user that was
// bound, if any.
func (sr *SessionRegistry) Unbind(connId string) *types.User {
	user, ok := sr.users[connId]
	if !ok {
		return nil
	}

	delete(sr.users, connId)
	return user
}

func (sr *SessionRegistry) Get(connId string) *types.User {
	return sr.users[connId]
}

// SwitchRoom moves the user bound to connId into newRoomId as one step:
// the old room's member entry, the new room's member entry and the user's
// CurrentRoom pointer all change together, so the user is never visible in
// zero or two rooms.
func (sr *SessionRegistry) SwitchRoom(connId, newRoomId string, rooms *RoomStore) *Error {
	user, ok := sr.users[connId]
	if !ok {
		return errNotJoined()
	}

	newRoom, ok := rooms.Get(newRoomId)
	if !ok {
		return errRoomNotFound(newRoomId)
	}

	if old, ok := rooms.Get(user.CurrentRoom); ok {
		delete(old.members, connId)
	}

	newRoom.members[connId] = user
	user.CurrentRoom = newRoomId
	return nil
}

// ListByAddress returns every connected user bound to the given source
// address, ordered by join time. Used by the moderation sweep.
func (sr *SessionRegistry) ListByAddress(address string) []*types.User {
	var users []*types.User
	for _, u := range sr.users {
		if u.Address == address {
			users = append(users, u)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinTime.Equal(users[j].JoinTime) {
			return users[i].Id < users[j].Id
		}
		return users[i].JoinTime.Before(users[j].JoinTime)
	})
	return users
}

// List returns a snapshot of all connected users ordered by join time.
func (sr *SessionRegistry) List() []types.User {
	users := make([]types.User, 0, len(sr.users))
	for _, u := range sr.users {
		users = append(users, *u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinTime.Equal(users[j].JoinTime) {
			return users[i].Id < users[j].Id
		}
		return users[i].JoinTime.Before(users[j].JoinTime)
	})
	return users
}
