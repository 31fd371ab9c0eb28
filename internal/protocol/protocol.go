// internal/protocol/protocol.go

// Package protocol defines the wire contract between the server core and
// every connected client: a closed set of JSON message envelopes, each
// carrying an explicit type tag and the payload fields that type uses.
// One envelope travels per WebSocket text frame.
package protocol

import (
	"github.com/kifu-games/othello-server/internal/othello"
)

// Type tags the kind of a Message. The set is closed; anything else is
// a protocol violation.
type Type string

// Client -> server requests.
const (
	TypeCreateRoom Type = "create_room"
	TypeJoinRoom   Type = "join_room"
	TypeListRooms  Type = "list_rooms"
	TypeStartGame  Type = "start_game"
	TypePlacePiece Type = "place_piece"
	TypeRematch    Type = "rematch"
	TypeChatSend   Type = "chat_send"
	TypePing       Type = "ping"
)

// Server -> client responses and notices.
const (
	TypeCreateRoomResult Type = "create_room_result"
	TypeJoinRoomResult   Type = "join_room_result"
	TypeListRoomsResult  Type = "list_rooms_result"
	TypePlayerJoined     Type = "player_joined"
	TypeGameStart        Type = "game_start"
	TypeBoardUpdate      Type = "board_update"
	TypeInvalidMove      Type = "invalid_move"
	TypeYourTurn         Type = "your_turn"
	TypeGameOver         Type = "game_over"
	TypeRematchOffer     Type = "rematch_offer"
	TypeRematchResult    Type = "rematch_result"
	TypeRoomClosed       Type = "room_closed"
	TypeChatBroadcast    Type = "chat_broadcast"
	TypeError            Type = "error"
	TypePong             Type = "pong"
)

// Payload size bounds, enforced before any room state is touched.
const (
	MaxRoomNameLen = 32
	MaxChatLen     = 256
	MaxMessageLen  = 128
)

// Rematch negotiation outcomes carried by rematch_result.
const (
	RematchDisagreed = "disagreed"
	RematchAgreed    = "agreed"
	RematchTimeout   = "timeout"
)

// RoomSummary is one row of a list_rooms_result.
type RoomSummary struct {
	RoomID  int64  `json:"roomId"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Players int    `json:"players"`
}

// Message is the single flat envelope for every request and notice.
// Fields irrelevant to a given Type are omitted from the JSON. Row, Col,
// Agree and Success are pointers so that zero values (row 0, success
// false) survive omitempty.
type Message struct {
	Type Type `json:"type"`

	RoomID  int64  `json:"roomId,omitempty"`
	Name    string `json:"name,omitempty"`
	Row     *int   `json:"row,omitempty"`
	Col     *int   `json:"col,omitempty"`
	Agree   *bool  `json:"agree,omitempty"`
	Success *bool  `json:"success,omitempty"`

	// Message carries human-readable result/error text; Text carries
	// chat bodies.
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`

	YourColor   string `json:"yourColor,omitempty"`
	MoverColor  string `json:"moverColor,omitempty"`
	Winner      string `json:"winner,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	Reason      string `json:"reason,omitempty"`
	SenderColor string `json:"senderColor,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`

	Board *othello.Board `json:"board,omitempty"`
	Rooms []RoomSummary  `json:"rooms,omitempty"`
}

// Int and Bool build the pointer fields of a Message.
func Int(v int) *int    { return &v }
func Bool(v bool) *bool { return &v }

// Truncate clips s to at most max runes. Oversized client input is
// clipped rather than rejected, matching the fixed buffers the wire
// format descends from.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ErrorMessage builds an error notice.
func ErrorMessage(text string) Message {
	return Message{Type: TypeError, Message: Truncate(text, MaxMessageLen)}
}
