package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lanchat/relay/internal/chat"
	"github.com/lanchat/relay/internal/config"
	"github.com/lanchat/relay/internal/ident"
	"github.com/lanchat/relay/internal/stats"
	"github.com/lanchat/relay/internal/testutil"
	"github.com/lanchat/relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "operator-token"

// stubConn stands in for a websocket client on the engine side.
type stubConn struct {
	id   string
	addr string
}

func (c *stubConn) ID() string                        { return c.id }
func (c *stubConn) RemoteAddress() string             { return c.addr }
func (c *stubConn) QueueEvent(*chat.ServerEvent) bool { return true }

func newTestServer(t *testing.T) (*Server, *chat.ChatServer) {
	t.Helper()

	sp := &stats.MockStatsUpdater{}
	sp.On("RegisterMetric", mock.Anything).Return()
	sp.On("Incr", mock.Anything).Return()
	sp.On("Decr", mock.Anything).Return()

	ids, err := ident.NewGenerator(0, 1)
	require.NoError(t, err)

	logger := testutil.TestLogger(t)
	cs := chat.NewChatServer(logger, ids, nil, sp)

	signingKey := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	cfg, err := config.NewConfig("localhost:8080", testAdminToken, signingKey, []string{"http://localhost:3000"})
	require.NoError(t, err)

	return NewServer(http.NewServeMux(), logger, cs, ids, cfg), cs
}

// joinUser registers a stub connection and joins it to a room so admin
// endpoints have state to act on.
func joinUser(t *testing.T, cs *chat.ChatServer, connId, addr, username, roomId string) {
	t.Helper()
	conn := &stubConn{id: connId, addr: addr}
	cs.Connect(conn)
	_, cerr := cs.Join(conn, &chat.JoinRequest{Username: username, RoomId: roomId})
	require.Nil(t, cerr)
}

func (s *Server) do(t *testing.T, method, target, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	if authed {
		token, err := s.createAdminJwt(time.Hour)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
	}

	rr := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/healthz", "", false)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("wrong token", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/admin/login", `{"token":"wrong"}`, false)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/admin/login", `{not json`, false)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("correct token sets a session cookie", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/admin/login", `{"token":"`+testAdminToken+`"}`, false)
		require.Equal(t, http.StatusNoContent, rr.Code)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		cookie := cookies[0]
		assert.Equal(t, tokenCookieKey, cookie.Name)
		assert.True(t, cookie.HttpOnly)
		assert.NoError(t, s.verifyAdminToken(cookie.Value))
	})
}

func TestLogout(t *testing.T) {
	s, _ := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/admin/logout", "", false)
	require.Equal(t, http.StatusNoContent, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
}

func TestAdminMiddleware(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("no cookie", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/rooms", "", false)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "not-a-jwt"})
		rr := httptest.NewRecorder()
		s.httpSrv.Handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := s.createAdminJwt(-time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		rr := httptest.NewRecorder()
		s.httpSrv.Handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token passes through", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/rooms", "", true)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	})
}

func TestListRooms(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "team")

	rr := s.do(t, http.MethodGet, "/api/rooms", "", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var rooms []types.RoomSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, chat.DefaultRoomId, rooms[0].Id)
	assert.Equal(t, "team", rooms[1].Id)
	assert.Equal(t, 1, rooms[1].UserCount)
}

func TestListUsers(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "")

	rr := s.do(t, http.MethodGet, "/api/users", "", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var users []types.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "10.0.0.1", users[0].Address)
	assert.Equal(t, chat.DefaultRoomId, users[0].CurrentRoom)
}

func TestCreateRoomEndpoint(t *testing.T) {
	s, cs := newTestServer(t)

	t.Run("creates", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms", `{"room_id":"team","room_name":"Team"}`, true)
		require.Equal(t, http.StatusCreated, rr.Code)

		var room types.RoomSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room))
		assert.Equal(t, "team", room.Id)
		assert.Equal(t, "Team", room.Name)
	})

	t.Run("duplicate conflicts", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms", `{"room_id":"team"}`, true)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms", `{"room_id":"x"}`, true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms", `{not json`, true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bypasses mute checks", func(t *testing.T) {
		cs.MuteAddress("10.0.0.1")
		rr := s.do(t, http.MethodPost, "/api/rooms", `{"room_id":"other"}`, true)
		assert.Equal(t, http.StatusCreated, rr.Code)
	})
}

func TestDeleteRoomEndpoint(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "team")

	t.Run("missing id", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/rooms", "", true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/rooms?id=nope", "", true)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("occupied without force", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/rooms?id=team", "", true)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("default room", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/rooms?id="+chat.DefaultRoomId+"&force=true", "", true)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("force relocates members", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/rooms?id=team&force=true", "", true)
		require.Equal(t, http.StatusNoContent, rr.Code)

		users := cs.Users()
		require.Len(t, users, 1)
		assert.Equal(t, chat.DefaultRoomId, users[0].CurrentRoom)
	})
}

func TestKickRoomEndpoint(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "team")
	joinUser(t, cs, "c2", "10.0.0.2", "bob", "team")

	t.Run("missing id", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms/kick", "", true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("kicks everyone to the default room", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms/kick?id=team", "", true)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"kicked":2}`, rr.Body.String())

		for _, u := range cs.Users() {
			assert.Equal(t, chat.DefaultRoomId, u.CurrentRoom)
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/rooms/kick?id=nope", "", true)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestMuteEndpoints(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "")

	t.Run("mute requires an address", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/mutes", `{}`, true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("mute takes effect on connected users", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/mutes", `{"address":"10.0.0.1"}`, true)
		require.Equal(t, http.StatusNoContent, rr.Code)

		users := cs.Users()
		require.Len(t, users, 1)
		assert.True(t, users[0].IsMuted)
	})

	t.Run("list", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/mutes", "", true)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `["10.0.0.1"]`, rr.Body.String())
	})

	t.Run("unmute requires an address", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/mutes", "", true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unmute", func(t *testing.T) {
		rr := s.do(t, http.MethodDelete, "/api/mutes?address=10.0.0.1", "", true)
		require.Equal(t, http.StatusNoContent, rr.Code)

		users := cs.Users()
		require.Len(t, users, 1)
		assert.False(t, users[0].IsMuted)
	})
}

func TestBroadcastEndpoint(t *testing.T) {
	s, cs := newTestServer(t)
	joinUser(t, cs, "c1", "10.0.0.1", "alice", "team")

	t.Run("reaches every room", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/broadcast", `{"content":"maintenance at noon"}`, true)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"rooms":2}`, rr.Body.String())
	})

	t.Run("empty content", func(t *testing.T) {
		rr := s.do(t, http.MethodPost, "/api/broadcast", `{"content":"  "}`, true)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
