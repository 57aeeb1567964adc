package chat

import (
	"testing"

	"github.com/lanchat/relay/internal/testutil"
	"github.com/lanchat/relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client around the engine without a websocket; the
// pumps are never started, events are read straight off the send queue.
func newTestClient(t *testing.T, cs *ChatServer, id, addr string) *Client {
	c := &Client{
		id:         id,
		addr:       addr,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
	cs.Connect(c)
	return c
}

func drainEvents(c *Client) []*ServerEvent {
	var events []*ServerEvent
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestClientDispatch(t *testing.T) {
	t.Run("join then send message", func(t *testing.T) {
		cs := newTestChatServer(t)
		c := newTestClient(t, cs, "c1", "10.0.0.1")

		c.dispatch(&ClientEvent{Join: &JoinRequest{Username: "alice"}})
		require.NotNil(t, cs.sessions.Get("c1"))

		c.dispatch(&ClientEvent{SendMessage: &SendMessageRequest{Content: "hello"}})

		var texts []*types.Message
		for _, ev := range drainEvents(c) {
			require.Nil(t, ev.Error, "unexpected error event: %+v", ev.Error)
			if ev.Message != nil && ev.Message.Kind == types.KindText {
				texts = append(texts, ev.Message)
			}
		}
		require.Len(t, texts, 1)
		assert.Equal(t, "hello", texts[0].Content)
	})

	t.Run("handler errors come back as error events", func(t *testing.T) {
		cs := newTestChatServer(t)
		c := newTestClient(t, cs, "c1", "10.0.0.1")

		c.dispatch(&ClientEvent{SendMessage: &SendMessageRequest{Content: "hello"}})

		events := drainEvents(c)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].Error)
		assert.Equal(t, NotAuthenticated.String(), events[0].Error.Kind)
	})

	t.Run("unknown event is rejected", func(t *testing.T) {
		cs := newTestChatServer(t)
		c := newTestClient(t, cs, "c1", "10.0.0.1")

		c.dispatch(&ClientEvent{})

		events := drainEvents(c)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].Error)
		assert.Equal(t, ValidationError.String(), events[0].Error.Kind)
	})

	t.Run("room lifecycle over the socket path", func(t *testing.T) {
		cs := newTestChatServer(t)
		c := newTestClient(t, cs, "c1", "10.0.0.1")

		c.dispatch(&ClientEvent{Join: &JoinRequest{Username: "alice"}})
		c.dispatch(&ClientEvent{CreateRoom: &CreateRoomRequest{RoomId: "team"}})
		c.dispatch(&ClientEvent{JoinRoom: &JoinRoomRequest{RoomId: "team"}})

		require.Equal(t, "team", cs.sessions.Get("c1").CurrentRoom)

		c.dispatch(&ClientEvent{DeleteRoom: &DeleteRoomRequest{RoomId: "team"}})

		events := drainEvents(c)
		last := events[len(events)-1]
		require.NotNil(t, last.Error, "expected deleting the occupied room to fail")
		assert.Equal(t, RoomNotEmpty.String(), last.Error.Kind)
	})

	t.Run("get_rooms returns a snapshot", func(t *testing.T) {
		cs := newTestChatServer(t)
		c := newTestClient(t, cs, "c1", "10.0.0.1")

		c.dispatch(&ClientEvent{GetRooms: &GetRoomsRequest{}})

		events := drainEvents(c)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].RoomList)
		assert.Len(t, events[0].RoomList.Rooms, 1)
	})
}

func TestClientQueueEvent(t *testing.T) {
	c := &Client{send: make(chan *ServerEvent, 1)}

	assert.True(t, c.QueueEvent(&ServerEvent{}))
	assert.False(t, c.QueueEvent(&ServerEvent{}), "expected a full queue to drop")

	<-c.send
	assert.True(t, c.QueueEvent(&ServerEvent{}))
}
