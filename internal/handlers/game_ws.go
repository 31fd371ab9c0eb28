// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/kifu-games/othello-server/internal/middleware"
	"github.com/kifu-games/othello-server/internal/registry"
	"github.com/kifu-games/othello-server/internal/session"
)

// GameWSHandler upgrades the connection, registers a session, and runs
// its read loop until the client goes away. Teardown always runs: the
// session leaves the registry and any room it occupied is closed.
func (s *Server) GameWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"othello"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "othello" {
			c.Close(BadSubprotocolError, "client must speak the othello subprotocol")
			return
		}

		client := session.NewClient(c, s.Log)
		if err := s.Registry.Register(client.SessionID()); err != nil {
			if errors.Is(err, registry.ErrFull) {
				c.Close(ServerFullError, "server full, try again later")
			} else {
				c.Close(websocket.StatusInternalError, "registration failed")
			}
			return
		}
		middleware.LogWebSocketConnect(s.Log, remoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go client.WritePump(ctx)
		client.ReadLoop(ctx, s.Handler)

		// The read loop returned: the connection is gone. Stop the
		// write pump before teardown broadcasts start.
		cancel()
		s.Rooms.HandleDisconnect(client)
		middleware.LogWebSocketDisconnect(s.Log, remoteAddr, r.URL.Path, nil)
		c.Close(websocket.StatusNormalClosure, "bye")
	}
}
