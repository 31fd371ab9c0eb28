// internal/session/client.go

// Package session runs one handler per live connection: a read loop
// that dispatches requests into the room manager, and a write pump that
// drains the session's outbound queue to the WebSocket. Room code only
// ever enqueues; the pump is the single writer on the socket.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/kifu-games/othello-server/internal/protocol"
	"github.com/sirupsen/logrus"
)

// writeTimeout bounds a single frame write so one stalled peer cannot
// wedge its write pump forever.
const writeTimeout = 5 * time.Second

// outboundBuffer is the per-session queue depth. A client that cannot
// drain this many pending notices starts losing them.
const outboundBuffer = 32

// Client is one live connection. It implements room.Peer.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	out  chan protocol.Message
	log  *logrus.Logger
}

// NewClient wraps an accepted WebSocket connection.
func NewClient(conn *websocket.Conn, log *logrus.Logger) *Client {
	return &Client{
		id:   uuid.New(),
		conn: conn,
		out:  make(chan protocol.Message, outboundBuffer),
		log:  log,
	}
}

// SessionID returns the connection's identity for registry and room
// bookkeeping.
func (c *Client) SessionID() uuid.UUID {
	return c.id
}

// Write enqueues a message without blocking. If the session's buffer is
// full the message is dropped and logged; the read loop's disconnect
// handling is the real remedy for a peer that stopped draining.
func (c *Client) Write(msg protocol.Message) {
	select {
	case c.out <- msg:
	default:
		c.log.Warnf("session %s: outbound buffer full, dropped message type %q", c.id, msg.Type)
	}
}

// WritePump drains the outbound queue onto the socket until the context
// is cancelled or a write fails. Run it on its own goroutine.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Errorf("session %s: failed to marshal %q message: %v", c.id, msg.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					c.log.Warnf("session %s: write failed: %v", c.id, err)
				}
				return
			}
		}
	}
}

// ReadLoop blocks reading frames and dispatching them until the
// connection closes or errors. The caller performs disconnect teardown
// after it returns.
func (c *Client) ReadLoop(ctx context.Context, h *Handler) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.log.Infof("session %s: connection closed", c.id)
			case strings.Contains(err.Error(), "context canceled"):
				c.log.Infof("session %s: context canceled", c.id)
			default:
				c.log.Warnf("session %s: read error: %v", c.id, err)
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Warnf("session %s: ignoring non-text frame", c.id)
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warnf("session %s: invalid JSON: %v", c.id, err)
			c.Write(protocol.ErrorMessage("Invalid JSON message."))
			continue
		}
		h.Dispatch(c, msg)
	}
}
