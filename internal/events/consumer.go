// internal/events/consumer.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// popTimeout bounds each BLPop so a shutdown is noticed promptly even
// when the queue is idle.
const popTimeout = 3 * time.Second

// Consumer drains finished-match records from the feed. It is the read
// side of Publisher and is used by cmd/eventlog.
type Consumer struct {
	rdb   *redis.Client
	queue string
	log   *logrus.Logger
}

// ConnectConsumer dials Redis and verifies the connection with a ping.
func ConnectConsumer(addr string, db int, queue string, log *logrus.Logger) (*Consumer, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Consumer{rdb: rdb, queue: queue, log: log}, nil
}

// Run pops records until the context is cancelled, invoking fn for each
// one. Malformed payloads are logged and skipped; the loop survives
// transient Redis errors.
func (c *Consumer) Run(ctx context.Context, fn func(MatchResult)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.rdb.BLPop(ctx, popTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Warnf("events: BLPop failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		// res[0] is the queue name, res[1] the payload.
		var rec MatchResult
		if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
			c.log.Warnf("events: discarding malformed match record: %v", err)
			continue
		}
		fn(rec)
	}
}

// Close releases the Redis client.
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
