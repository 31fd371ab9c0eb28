// cmd/eventlog/main.go is a small companion service that tails the
// match-event feed and emits one structured log line per finished game.
// It exists so operators can watch results without attaching anything
// heavier to the queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kifu-games/othello-server/internal/config"
	"github.com/kifu-games/othello-server/internal/events"
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

	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	cons, err := events.ConnectConsumer(addr, cfg.RedisDB, cfg.EventsQueue, logger)
	if err != nil {
		logger.Fatalf("eventlog: %v", err)
	}
	defer cons.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("eventlog tailing %s queue %q", addr, cfg.EventsQueue)
	cons.Run(ctx, func(rec events.MatchResult) {
		logger.WithFields(logrus.Fields{
			"room_id":     rec.RoomID,
			"room_name":   rec.RoomName,
			"winner":      rec.Winner,
			"black_score": rec.BlackScore,
			"white_score": rec.WhiteScore,
			"moves":       rec.Moves,
			"finished_at": rec.FinishedAt,
		}).Info("match finished")
	})
	logger.Info("eventlog shutting down")
}
