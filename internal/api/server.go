package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/lanchat/relay/internal/chat"
	"github.com/lanchat/relay/internal/config"
	"github.com/lanchat/relay/internal/ident"
)

// Server is the REST boundary: a secondary entry point into the engine for
// administrative mutations, sharing the engine's broadcast side effects
// with the socket path.
type Server struct {
	log            *log.Logger
	cs             *chat.ChatServer
	ids            *ident.Generator
	httpSrv        *http.Server
	signingKey     []byte
	adminTokenHash []byte
	allowedOrigins []string
}

func NewServer(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer, ids *ident.Generator, cfg *config.Config) *Server {
	s := &Server{
		log:            logger,
		cs:             cs,
		ids:            ids,
		signingKey:     cfg.SigningKey,
		adminTokenHash: cfg.AdminTokenHash,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.serveWs)

	mux.HandleFunc("POST /api/admin/login", s.login)
	mux.HandleFunc("GET /api/admin/logout", s.logout)
	mux.Handle("GET /api/users", s.adminMiddleware(s.listUsers))
	mux.Handle("GET /api/rooms", s.adminMiddleware(s.listRooms))
	mux.Handle("POST /api/rooms", s.adminMiddleware(s.createRoom))
	mux.Handle("DELETE /api/rooms", s.adminMiddleware(s.deleteRoom))
	mux.Handle("POST /api/rooms/kick", s.adminMiddleware(s.kickRoom))
	mux.Handle("GET /api/mutes", s.adminMiddleware(s.listMutes))
	mux.Handle("POST /api/mutes", s.adminMiddleware(s.muteAddress))
	mux.Handle("DELETE /api/mutes", s.adminMiddleware(s.unmuteAddress))
	mux.Handle("POST /api/broadcast", s.adminMiddleware(s.broadcast))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.httpSrv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Printf("starting server on %s\n", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
