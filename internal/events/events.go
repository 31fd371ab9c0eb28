// internal/events/events.go

// Package events pushes finished-match records onto a Redis list so
// downstream consumers (stats, replay archiving) can drain them at
// their own pace. The feed is optional: a nil *Publisher is a no-op,
// and the server runs fine without Redis configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// MatchResult is the record produced for every game that reaches a
// terminal outcome.
type MatchResult struct {
	RoomID     int64  `json:"room_id"`
	RoomName   string `json:"room_name"`
	Winner     string `json:"winner"` // "black", "white" or "draw"
	BlackScore int    `json:"black_score"`
	WhiteScore int    `json:"white_score"`
	Moves      int    `json:"moves"`
	FinishedAt int64  `json:"finished_at"`
}

// Publisher owns the Redis client and the target list name.
type Publisher struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(addr string, db int, queue string, log *logrus.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Publisher{rdb: rdb, queue: queue, log: log}, nil
}

// PublishMatchResult serializes the record and RPUSHes it onto the
// queue. Safe to call on a nil Publisher.
func (p *Publisher) PublishMatchResult(ctx context.Context, rec MatchResult) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchResult: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list %q: %w", p.queue, err)
	}
	return nil
}

// PublishAsync fires PublishMatchResult on its own goroutine with a
// short deadline, so game teardown never waits on Redis. Errors are
// logged, not propagated.
func (p *Publisher) PublishAsync(rec MatchResult) {
	if p == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := p.PublishMatchResult(ctx, rec); err != nil && p.log != nil {
			p.log.Warnf("events: dropping match record for room %d: %v", rec.RoomID, err)
		}
	}()
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
