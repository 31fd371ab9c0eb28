// internal/session/dispatch.go
package session

import (
	"errors"
	"fmt"

	"github.com/kifu-games/othello-server/internal/protocol"
	"github.com/kifu-games/othello-server/internal/room"
	"github.com/sirupsen/logrus"
)

// Handler routes decoded requests into the room manager and writes the
// responses back through the originating peer. It holds no per-session
// state, so one Handler serves every connection.
type Handler struct {
	Rooms *room.Manager
	Log   *logrus.Logger
}

// Dispatch handles a single request. Request-level failures are
// reported to the sender only; they never tear anything down.
func (h *Handler) Dispatch(p room.Peer, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(p, msg)
	case protocol.TypeJoinRoom:
		h.handleJoinRoom(p, msg)
	case protocol.TypeListRooms:
		p.Write(protocol.Message{
			Type:  protocol.TypeListRoomsResult,
			Rooms: h.Rooms.ListRooms(),
		})
	case protocol.TypeStartGame:
		if err := h.Rooms.StartGame(p, msg.RoomID); err != nil {
			p.Write(protocol.ErrorMessage(err.Error()))
		}
	case protocol.TypePlacePiece:
		h.handlePlacePiece(p, msg)
	case protocol.TypeRematch:
		if msg.Agree == nil {
			p.Write(protocol.ErrorMessage("rematch requires an agree field."))
			return
		}
		if err := h.Rooms.RematchVote(p, msg.RoomID, *msg.Agree); err != nil {
			p.Write(protocol.ErrorMessage(err.Error()))
		}
	case protocol.TypeChatSend:
		if msg.Text == "" {
			p.Write(protocol.ErrorMessage("empty chat message."))
			return
		}
		if err := h.Rooms.Chat(p, msg.RoomID, msg.Text); err != nil {
			p.Write(protocol.ErrorMessage(err.Error()))
		}
	case protocol.TypePing:
		p.Write(protocol.Message{Type: protocol.TypePong})
	default:
		h.Log.Warnf("session %s: unknown message type %q", p.SessionID(), msg.Type)
		p.Write(protocol.ErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

func (h *Handler) handleCreateRoom(p room.Peer, msg protocol.Message) {
	roomID, err := h.Rooms.CreateRoom(p, msg.Name)
	if err != nil {
		p.Write(protocol.Message{
			Type:    protocol.TypeCreateRoomResult,
			Success: protocol.Bool(false),
			Message: protocol.Truncate(err.Error(), protocol.MaxMessageLen),
		})
		return
	}
	p.Write(protocol.Message{
		Type:    protocol.TypeCreateRoomResult,
		Success: protocol.Bool(true),
		RoomID:  roomID,
		Message: fmt.Sprintf("Room created successfully (ID: %d).", roomID),
	})
}

func (h *Handler) handleJoinRoom(p room.Peer, msg protocol.Message) {
	replay, err := h.Rooms.JoinRoom(p, msg.RoomID)
	if err != nil {
		p.Write(protocol.Message{
			Type:    protocol.TypeJoinRoomResult,
			Success: protocol.Bool(false),
			RoomID:  msg.RoomID,
			Message: protocol.Truncate(err.Error(), protocol.MaxMessageLen),
		})
		return
	}
	p.Write(protocol.Message{
		Type:    protocol.TypeJoinRoomResult,
		Success: protocol.Bool(true),
		RoomID:  msg.RoomID,
		Message: fmt.Sprintf("Successfully joined room %d.", msg.RoomID),
	})
	// Replay stored chat to the joiner only, in original send order,
	// after the join result so the client sees them in room context.
	for _, notice := range replay {
		p.Write(notice)
	}
}

func (h *Handler) handlePlacePiece(p room.Peer, msg protocol.Message) {
	if msg.Row == nil || msg.Col == nil {
		p.Write(protocol.ErrorMessage("place_piece requires row and col."))
		return
	}
	err := h.Rooms.PlacePiece(p, msg.RoomID, *msg.Row, *msg.Col)
	if err == nil {
		return
	}
	// In-game rejections go back as invalid_move so the client keeps
	// its turn; membership problems are plain protocol errors.
	if errors.Is(err, room.ErrNotPlaying) || errors.Is(err, room.ErrNotYourTurn) || errors.Is(err, room.ErrIllegalMove) {
		p.Write(protocol.Message{
			Type:    protocol.TypeInvalidMove,
			RoomID:  msg.RoomID,
			Message: protocol.Truncate(err.Error(), protocol.MaxMessageLen),
		})
		return
	}
	p.Write(protocol.ErrorMessage(err.Error()))
}
