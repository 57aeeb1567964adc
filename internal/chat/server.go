package chat

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/lanchat/relay/internal/ident"
	"github.com/lanchat/relay/internal/stats"
	"github.com/lanchat/relay/internal/types"
)

const (
	MetricActiveConnections = "ActiveConnections"
	MetricActiveRooms       = "ActiveRooms"
	MetricMessagesRelayed   = "MessagesRelayed"
)

// RenderFunc turns raw message content into rendered markup. A failing or
// panicking renderer degrades to the raw content.
type RenderFunc func(content string) (string, error)

// ChatServer is the coordination engine: it owns the Room Store, Session
// Registry and Moderation Registry and serializes every state mutation
// behind one lock. Blocking is confined to the transport edge; handlers
// mutate synchronously and return a result or a typed error so the socket
// and REST entry points share the same validation.
type ChatServer struct {
	log      *log.Logger
	mu       sync.Mutex
	rooms    *RoomStore
	sessions *SessionRegistry
	mutes    *MuteRegistry
	bcast    *Broadcaster
	ids      *ident.Generator
	render   RenderFunc
	stats    stats.StatsProvider
}

func NewChatServer(logger *log.Logger, ids *ident.Generator, render RenderFunc, sp stats.StatsProvider) *ChatServer {
	rooms := NewRoomStore()
	sessions := NewSessionRegistry()

	cs := &ChatServer{
		log:      logger,
		rooms:    rooms,
		sessions: sessions,
		mutes:    NewMuteRegistry(),
		bcast:    NewBroadcaster(logger, rooms, sessions),
		ids:      ids,
		render:   render,
		stats:    sp,
	}

	sp.RegisterMetric(MetricActiveConnections)
	sp.RegisterMetric(MetricActiveRooms)
	sp.RegisterMetric(MetricMessagesRelayed)

	return cs
}

// Connect registers a connection in the Connected state: reachable for
// broadcasts, no bound user yet.
func (cs *ChatServer) Connect(conn Conn) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.bcast.Register(conn)
	cs.stats.Incr(MetricActiveConnections)
}

// Join performs the join handshake: binds a user to the connection, places
// them in the requested room (default if unspecified, created on demand),
// and replays the room's recent history.
func (cs *ChatServer) Join(conn Conn, req *JoinRequest) (*types.User, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.sessions.Get(conn.ID()) != nil {
		return nil, newError(InvalidOperation, "already joined")
	}

	username := strings.TrimSpace(req.Username)
	if !validUsername(username) {
		return nil, errUsernameLength()
	}

	roomId := req.RoomId
	if roomId == "" {
		roomId = DefaultRoomId
	}

	addr := conn.RemoteAddress()
	user := &types.User{
		Id:          cs.ids.UserID(),
		Username:    username,
		ConnId:      conn.ID(),
		Address:     addr,
		JoinTime:    Now(),
		CurrentRoom: roomId,
		IsMuted:     cs.mutes.IsMuted(addr),
	}

	room, created := cs.rooms.GetOrCreate(roomId, "")
	if created {
		cs.stats.Incr(MetricActiveRooms)
	}

	cs.sessions.Bind(conn.ID(), user)
	room.members[conn.ID()] = user

	joinMsg := cs.systemMessage(types.KindJoin, roomId, username, fmt.Sprintf("%s joined the room", username))
	cs.rooms.AppendMessage(roomId, joinMsg)
	cs.bcast.ToRoom(roomId, newMessageEvent(joinMsg), "")

	cs.bcast.ToConn(conn.ID(), newHistoryEvent(roomId, cs.rooms.RecentHistory(roomId, historyLimit)))
	cs.bcast.ToRoom(roomId, cs.bcast.UserListEvent(roomId), "")
	cs.bcast.ToAll(cs.bcast.RoomListEvent())

	if user.IsMuted {
		notice := cs.systemMessage(types.KindAdmin, roomId, "admin", "your address is muted; messages you send will not be delivered")
		cs.bcast.ToConn(conn.ID(), newMessageEvent(notice))
	}

	cs.log.Printf("user %q joined room %q from %s", username, roomId, addr)
	return user, nil
}

// SwitchRoom moves a joined user into another existing room and replays
// that room's recent history to them.
func (cs *ChatServer) SwitchRoom(conn Conn, req *JoinRoomRequest) (*RoomJoined, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user := cs.sessions.Get(conn.ID())
	if user == nil {
		return nil, errNotJoined()
	}

	newRoom, ok := cs.rooms.Get(req.RoomId)
	if !ok {
		return nil, errRoomNotFound(req.RoomId)
	}

	oldRoomId := user.CurrentRoom
	if oldRoomId != "" {
		leaveMsg := cs.systemMessage(types.KindLeave, oldRoomId, user.Username, fmt.Sprintf("%s left the room", user.Username))
		cs.bcast.ToRoom(oldRoomId, newMessageEvent(leaveMsg), conn.ID())
	}

	if err := cs.sessions.SwitchRoom(conn.ID(), req.RoomId, cs.rooms); err != nil {
		return nil, err
	}

	joinMsg := cs.systemMessage(types.KindJoin, req.RoomId, user.Username, fmt.Sprintf("%s joined the room", user.Username))
	cs.rooms.AppendMessage(req.RoomId, joinMsg)
	cs.bcast.ToRoom(req.RoomId, newMessageEvent(joinMsg), "")

	cs.bcast.ToConn(conn.ID(), newHistoryEvent(req.RoomId, cs.rooms.RecentHistory(req.RoomId, historyLimit)))
	cs.bcast.ToRoom(oldRoomId, cs.bcast.UserListEvent(oldRoomId), "")
	cs.bcast.ToRoom(req.RoomId, cs.bcast.UserListEvent(req.RoomId), "")

	ack := &RoomJoined{RoomId: newRoom.Id, Name: newRoom.Name, UserCount: len(newRoom.members)}
	cs.bcast.ToConn(conn.ID(), &ServerEvent{Timestamp: Now(), RoomJoined: ack})

	return ack, nil
}

// SendMessage relays user text into a room. Empty content is dropped
// silently; a muted sender is rejected; a send racing room deletion
// resolves in favor of the deletion.
func (cs *ChatServer) SendMessage(conn Conn, req *SendMessageRequest) (*types.Message, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user := cs.sessions.Get(conn.ID())
	if user == nil {
		return nil, errNotJoined()
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, nil
	}

	if user.IsMuted {
		return nil, errMuted()
	}

	roomId := req.RoomId
	if roomId == "" {
		roomId = user.CurrentRoom
	}
	if _, ok := cs.rooms.Get(roomId); !ok {
		// room vanished between send and delivery; drop the message
		return nil, nil
	}

	rendered, isRendered := cs.renderContent(content)
	msg := types.Message{
		Id:         cs.ids.MessageID(),
		Kind:       types.KindText,
		Username:   user.Username,
		Content:    content,
		Rendered:   rendered,
		IsRendered: isRendered,
		Timestamp:  Now(),
		RoomId:     roomId,
		Address:    user.Address,
	}

	cs.rooms.AppendMessage(roomId, msg)
	cs.bcast.ToRoom(roomId, newMessageEvent(msg), "")
	cs.stats.Incr(MetricMessagesRelayed)

	return &msg, nil
}

// CreateRoom creates a room without auto-joining the caller.
func (cs *ChatServer) CreateRoom(conn Conn, req *CreateRoomRequest) (*types.RoomSummary, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user := cs.sessions.Get(conn.ID())
	if (user != nil && user.IsMuted) || cs.mutes.IsMuted(conn.RemoteAddress()) {
		return nil, errMuted()
	}

	return cs.createRoom(req.RoomId, req.RoomName)
}

// AdminCreateRoom is the REST path: same semantics minus the mute check.
func (cs *ChatServer) AdminCreateRoom(roomId, roomName string) (*types.RoomSummary, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.createRoom(roomId, roomName)
}

func (cs *ChatServer) createRoom(roomId, roomName string) (*types.RoomSummary, *Error) {
	if !validRoomId(roomId) {
		return nil, errRoomIdLength()
	}
	if _, ok := cs.rooms.Get(roomId); ok {
		return nil, errRoomExists(roomId)
	}

	room, _ := cs.rooms.GetOrCreate(roomId, roomName)
	cs.stats.Incr(MetricActiveRooms)

	summary := room.summary()
	cs.bcast.ToAll(&ServerEvent{Timestamp: Now(), RoomCreated: &summary})
	cs.bcast.ToAll(cs.bcast.RoomListEvent())

	cs.log.Printf("room %q created", roomId)
	return &summary, nil
}

// DeleteRoom is the self-service path: it never evicts members.
func (cs *ChatServer) DeleteRoom(conn Conn, req *DeleteRoomRequest) *Error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := cs.rooms.Delete(req.RoomId, false); err != nil {
		return err
	}

	cs.finishRoomDelete(req.RoomId)
	return nil
}

// AdminDeleteRoom deletes a room via the REST boundary. With force set,
// remaining members are relocated to the default room first.
func (cs *ChatServer) AdminDeleteRoom(roomId string, force bool) *Error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	relocated, err := cs.rooms.Delete(roomId, force)
	if err != nil {
		return err
	}

	cs.notifyRelocated(roomId, relocated)
	cs.finishRoomDelete(roomId)
	return nil
}

func (cs *ChatServer) finishRoomDelete(roomId string) {
	cs.bcast.ToAll(&ServerEvent{Timestamp: Now(), RoomDeleted: &RoomDeleted{RoomId: roomId}})
	cs.bcast.ToAll(cs.bcast.RoomListEvent())
	cs.stats.Decr(MetricActiveRooms)
	cs.log.Printf("room %q deleted", roomId)
}

// KickAll evicts every member of a room to the default room without
// deleting it.
func (cs *ChatServer) KickAll(roomId string) (int, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	relocated, err := cs.rooms.EvictAll(roomId)
	if err != nil {
		return 0, err
	}

	cs.notifyRelocated(roomId, relocated)
	cs.bcast.ToAll(cs.bcast.RoomListEvent())
	return len(relocated), nil
}

// notifyRelocated announces a forced eviction: each relocated member gets a
// kicked_from_room event and the default room's history, and the default
// room gets a single relocation notice in place of per-user leave messages.
func (cs *ChatServer) notifyRelocated(fromRoomId string, relocated []*types.User) {
	if len(relocated) == 0 {
		return
	}

	for _, u := range relocated {
		cs.bcast.ToConn(u.ConnId, &ServerEvent{
			Timestamp: Now(),
			Kicked:    &KickedFromRoom{RoomId: fromRoomId, MovedTo: DefaultRoomId},
		})
	}

	notice := cs.systemMessage(types.KindAdmin, DefaultRoomId, "admin",
		fmt.Sprintf("room %q was closed, %d member(s) moved to %q", fromRoomId, len(relocated), DefaultRoomId))
	cs.rooms.AppendMessage(DefaultRoomId, notice)
	cs.bcast.ToRoom(DefaultRoomId, newMessageEvent(notice), "")

	for _, u := range relocated {
		cs.bcast.ToConn(u.ConnId, newHistoryEvent(DefaultRoomId, cs.rooms.RecentHistory(DefaultRoomId, historyLimit)))
	}
	cs.bcast.ToRoom(DefaultRoomId, cs.bcast.UserListEvent(DefaultRoomId), "")
}

// Typing relays a transient presence signal to the other members of the
// room. Never persisted, never an error.
func (cs *ChatServer) Typing(conn Conn, req *TypingRequest) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user := cs.sessions.Get(conn.ID())
	if user == nil || user.IsMuted {
		return
	}

	roomId := req.RoomId
	if roomId == "" {
		roomId = user.CurrentRoom
	}

	cs.bcast.ToRoom(roomId, &ServerEvent{
		Timestamp:  Now(),
		UserTyping: &UserTyping{RoomId: roomId, Username: user.Username, IsTyping: req.IsTyping},
	}, conn.ID())
}

// GetRooms sends a fresh room_list snapshot to the requesting connection.
func (cs *ChatServer) GetRooms(conn Conn) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.bcast.ToConn(conn.ID(), cs.bcast.RoomListEvent())
}

// Disconnect is the terminal transition: it revokes all of the
// connection's state regardless of what else was in flight for it.
func (cs *ChatServer) Disconnect(conn Conn) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user := cs.sessions.Unbind(conn.ID())
	if user != nil {
		for _, room := range cs.rooms.rooms {
			delete(room.members, conn.ID())
		}

		if _, ok := cs.rooms.Get(user.CurrentRoom); ok {
			leaveMsg := cs.systemMessage(types.KindLeave, user.CurrentRoom, user.Username, fmt.Sprintf("%s left the room", user.Username))
			cs.rooms.AppendMessage(user.CurrentRoom, leaveMsg)
			cs.bcast.ToRoom(user.CurrentRoom, newMessageEvent(leaveMsg), "")
			cs.bcast.ToRoom(user.CurrentRoom, cs.bcast.UserListEvent(user.CurrentRoom), "")
		}

		cs.bcast.ToAll(cs.bcast.RoomListEvent())
		cs.log.Printf("user %q disconnected", user.Username)
	}

	cs.bcast.Unregister(conn.ID())
	cs.stats.Decr(MetricActiveConnections)
}

// MuteAddress mutes a source address and sweeps connected users so the new
// state applies without a re-join.
func (cs *ChatServer) MuteAddress(address string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, roomId := range cs.mutes.Mute(address, cs.sessions) {
		cs.bcast.ToRoom(roomId, cs.bcast.UserListEvent(roomId), "")
	}
	cs.log.Printf("muted address %s", address)
}

func (cs *ChatServer) UnmuteAddress(address string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, roomId := range cs.mutes.Unmute(address, cs.sessions) {
		cs.bcast.ToRoom(roomId, cs.bcast.UserListEvent(roomId), "")
	}
	cs.log.Printf("unmuted address %s", address)
}

func (cs *ChatServer) MutedAddresses() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.mutes.List()
}

// AdminBroadcast appends an admin message to every room and relays it to
// every member. Returns the number of rooms reached.
func (cs *ChatServer) AdminBroadcast(content string) (int, *Error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	content = strings.TrimSpace(content)
	if content == "" {
		return 0, newError(ValidationError, "broadcast content cannot be empty")
	}

	n := 0
	for _, summary := range cs.rooms.List() {
		msg := cs.systemMessage(types.KindAdmin, summary.Id, "admin", content)
		cs.rooms.AppendMessage(summary.Id, msg)
		cs.bcast.ToRoom(summary.Id, newMessageEvent(msg), "")
		n++
	}

	return n, nil
}

// Users returns a snapshot of all connected users.
func (cs *ChatServer) Users() []types.User {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.sessions.List()
}

// Rooms returns a snapshot of all room summaries.
func (cs *ChatServer) Rooms() []types.RoomSummary {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.rooms.List()
}

func (cs *ChatServer) systemMessage(kind types.MessageKind, roomId, username, content string) types.Message {
	return types.Message{
		Id:        cs.ids.MessageID(),
		Kind:      kind,
		Username:  username,
		Content:   content,
		Timestamp: Now(),
		RoomId:    roomId,
	}
}

// renderContent runs the renderer, falling back to the raw content on any
// error or panic.
func (cs *ChatServer) renderContent(content string) (rendered string, ok bool) {
	if cs.render == nil {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("renderer panic: %v", r)
			rendered, ok = "", false
		}
	}()

	out, err := cs.render(content)
	if err != nil {
		cs.log.Printf("render: %v", err)
		return "", false
	}

	return out, true
}
