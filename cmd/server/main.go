// cmd/server/main.go
package main

import (
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kifu-games/othello-server/internal/config"
	"github.com/kifu-games/othello-server/internal/events"
	"github.com/kifu-games/othello-server/internal/handlers"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// The match-event feed is optional: without REDIS_ADDR the server
	// runs standalone and finished games are only logged.
	var pub *events.Publisher
	if cfg.RedisAddr != "" {
		pub, err = events.Connect(cfg.RedisAddr, cfg.RedisDB, cfg.EventsQueue, logger)
		if err != nil {
			logger.Warnf("match-event feed unavailable, continuing without it: %v", err)
			pub = nil
		} else {
			defer pub.Close()
			logger.Infof("publishing match events to %s queue %q", cfg.RedisAddr, cfg.EventsQueue)
		}
	}

	srv := handlers.NewServer(cfg, logger, pub)

	logger.Infof("othello server listening on %s (max %d clients, %d rooms)",
		cfg.Addr, cfg.MaxClients, cfg.MaxRooms)
	if err := http.ListenAndServe(cfg.Addr, srv.Routes()); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
