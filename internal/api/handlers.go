package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/lanchat/relay/internal/chat"
)

type CreateRoomRequest struct {
	RoomId   string `json:"room_id"`
	RoomName string `json:"room_name,omitempty"`
}

type MuteRequest struct {
	Address string `json:"address"`
}

type BroadcastRequest struct {
	Content string `json:"content"`
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.Users())
}

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.Rooms())
}

// createRoom is the administrative path: it bypasses the mute checks the
// socket path enforces.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, cerr := s.cs.AdminCreateRoom(req.RoomId, req.RoomName)
	if cerr != nil {
		errResp := NewChatError(cerr)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

// deleteRoom deletes a room; with ?force=true remaining members are
// relocated to the default room instead of the call being rejected.
func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if cerr := s.cs.AdminDeleteRoom(roomId, force); cerr != nil {
		errResp := NewChatError(cerr)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) kickRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	kicked, cerr := s.cs.KickAll(roomId)
	if cerr != nil {
		errResp := NewChatError(cerr)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"kicked": kicked})
}

func (s *Server) listMutes(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.MutedAddresses())
}

func (s *Server) muteAddress(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.MuteAddress(req.Address)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) unmuteAddress(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.UnmuteAddress(address)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, cerr := s.cs.AdminBroadcast(req.Content)
	if cerr != nil {
		errResp := NewChatError(cerr)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"rooms": rooms})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := chat.NewClient(s.ids.UserID(), conn, s.cs, s.log)
	s.cs.Connect(client)
	go client.Write()
	go client.Read()
}
