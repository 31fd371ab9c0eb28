// internal/handlers/server.go

// Package handlers wires the HTTP surface: the game WebSocket endpoint
// and a health check. Everything stateful lives in the registry and the
// room manager; handlers only translate connections into sessions.
package handlers

import (
	"net/http"

	"github.com/kifu-games/othello-server/internal/config"
	"github.com/kifu-games/othello-server/internal/events"
	"github.com/kifu-games/othello-server/internal/middleware"
	"github.com/kifu-games/othello-server/internal/registry"
	"github.com/kifu-games/othello-server/internal/room"
	"github.com/kifu-games/othello-server/internal/session"
	"github.com/sirupsen/logrus"
)

// Server holds the shared state behind every connection.
type Server struct {
	Registry *registry.Registry
	Rooms    *room.Manager
	Handler  *session.Handler
	Log      *logrus.Logger
}

// NewServer builds the registry, the room table and the dispatcher from
// one config.
func NewServer(cfg config.Config, logger *logrus.Logger, pub *events.Publisher) *Server {
	reg := registry.New(cfg.MaxClients)
	rooms := room.NewManager(reg, room.Options{
		Capacity:       cfg.MaxRooms,
		ChatHistory:    cfg.ChatHistory,
		RematchTimeout: cfg.RematchTimeout,
		Logger:         logger,
		Events:         pub,
	})
	return &Server{
		Registry: reg,
		Rooms:    rooms,
		Handler:  &session.Handler{Rooms: rooms, Log: logger},
		Log:      logger,
	}
}

// Routes returns the server's mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(s.Log)(http.HandlerFunc(s.GameWSHandler())))
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
