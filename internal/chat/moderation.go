package chat

import (
	"sort"
)

// MuteRegistry is the set of muted source addresses. Mute state is mirrored
// onto connected user records so the hot paths never consult the set.
type MuteRegistry struct {
	addrs map[string]struct{}
}

func NewMuteRegistry() *MuteRegistry {
	return &MuteRegistry{addrs: make(map[string]struct{})}
}

// Mute adds the address and sweeps currently connected users sharing it. It
// returns the set of rooms whose user-lists changed; the caller owes those
// rooms a user_list broadcast.
func (mr *MuteRegistry) Mute(address string, sessions *SessionRegistry) []string {
	mr.addrs[address] = struct{}{}
	return mr.sweep(address, true, sessions)
}

// Unmute removes the address and clears the muted flag on every connected
// user with that address.
func (mr *MuteRegistry) Unmute(address string, sessions *SessionRegistry) []string {
	delete(mr.addrs, address)
	return mr.sweep(address, false, sessions)
}

func (mr *MuteRegistry) sweep(address string, muted bool, sessions *SessionRegistry) []string {
	roomSet := make(map[string]struct{})
	for _, u := range sessions.ListByAddress(address) {
		if u.IsMuted == muted {
			continue
		}
		u.IsMuted = muted
		if u.CurrentRoom != "" {
			roomSet[u.CurrentRoom] = struct{}{}
		}
	}

	rooms := make([]string, 0, len(roomSet))
	for id := range roomSet {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (mr *MuteRegistry) IsMuted(address string) bool {
	_, ok := mr.addrs[address]
	return ok
}

func (mr *MuteRegistry) List() []string {
	addrs := make([]string, 0, len(mr.addrs))
	for a := range mr.addrs {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs
}
