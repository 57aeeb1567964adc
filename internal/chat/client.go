package chat

import (
	"encoding/json"
	"log"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client adapts a websocket connection to the engine: the read pump turns
// frames into handler calls, the write pump drains the send queue. It is
// the only place the engine's state machine touches the transport.
type Client struct {
	id         string
	addr       string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(id string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         id,
		addr:       remoteHost(conn),
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

// remoteHost strips the ephemeral port so moderation keys on the address.
func remoteHost(conn *websocket.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) RemoteAddress() string {
	return c.addr
}

// QueueEvent enqueues an event for delivery without blocking. It reports
// false when the client is too far behind and the event was dropped.
func (c *Client) QueueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.chatServer.Disconnect(c)
		c.stopClient()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.QueueEvent(newErrorEvent(newError(ValidationError, "invalid message format")))
			continue
		}

		c.dispatch(&ev)
	}
}

// dispatch routes one inbound event to its handler. Handler errors are
// reported to this connection only and never terminate it.
func (c *Client) dispatch(ev *ClientEvent) {
	var err *Error

	switch {
	case ev.Join != nil:
		_, err = c.chatServer.Join(c, ev.Join)
	case ev.JoinRoom != nil:
		_, err = c.chatServer.SwitchRoom(c, ev.JoinRoom)
	case ev.SendMessage != nil:
		_, err = c.chatServer.SendMessage(c, ev.SendMessage)
	case ev.CreateRoom != nil:
		_, err = c.chatServer.CreateRoom(c, ev.CreateRoom)
	case ev.DeleteRoom != nil:
		err = c.chatServer.DeleteRoom(c, ev.DeleteRoom)
	case ev.Typing != nil:
		c.chatServer.Typing(c, ev.Typing)
	case ev.GetRooms != nil:
		c.chatServer.GetRooms(c)
	default:
		err = newError(ValidationError, "unknown event")
	}

	if err != nil {
		c.QueueEvent(newErrorEvent(err))
	}
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
