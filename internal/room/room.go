// internal/room/room.go

// Package room owns the room table and the per-room lifecycle state
// machine. Each room carries its own mutex; the table mutex is held
// only to resolve a room, never across room work. The system-wide lock
// order is registry lock, then table lock, then one room lock — a
// goroutine never holds two room locks, and never performs a blocking
// send while holding any of them (peer writes are non-blocking
// enqueues, and even those happen after the room lock is released).
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kifu-games/othello-server/internal/events"
	"github.com/kifu-games/othello-server/internal/othello"
	"github.com/kifu-games/othello-server/internal/protocol"
	"github.com/kifu-games/othello-server/internal/registry"
	"github.com/sirupsen/logrus"
)

// Peer is a connected client as seen from a room: an identity and a
// non-blocking outbound write. The session package implements it with a
// buffered channel drained by the connection's write pump.
type Peer interface {
	SessionID() uuid.UUID
	Write(msg protocol.Message)
}

// Status is a room's lifecycle state. Rooms are recycled: empty is both
// the initial and the terminal state.
type Status string

const (
	StatusEmpty      Status = "empty"
	StatusWaiting    Status = "waiting"
	StatusPlaying    Status = "playing"
	StatusGameOver   Status = "gameover"
	StatusRematching Status = "rematching"
)

// Vote is one side's rematch answer.
type Vote uint8

const (
	VoteUnset Vote = iota
	VoteAgree
	VoteDecline
)

// ChatEntry is one stored chat line. The room keeps a fixed-capacity
// ring of these and replays them to late joiners.
type ChatEntry struct {
	SenderColor othello.Color
	SenderName  string
	Text        string
	Timestamp   int64
}

// Room is one pre-allocated slot of the table. All fields are guarded
// by mu. A zero id marks a slot whose identity has been retired; every
// operation revalidates id under mu after resolving the room, because
// a close may have raced the lookup.
type Room struct {
	mu sync.Mutex

	id     int64
	name   string
	status Status

	// slotA is the creator (black), slotB the joiner (white).
	slotA Peer
	slotB Peer

	game  *othello.State
	moves int

	voteA Vote
	voteB Vote

	rematchTimer *time.Timer
	lastActive   time.Time

	chat      []ChatEntry
	chatCount int
	chatNext  int
}

// Errors reported to the session layer. Their text is what the client
// sees in result and notice messages.
var (
	ErrAlreadyInRoom = errors.New("you are already in a room")
	ErrNoCapacity    = errors.New("no free room available")
	ErrNotFound      = errors.New("room not found")
	ErrNotJoinable   = errors.New("room is full or already playing")
	ErrNotCreator    = errors.New("only the room creator can start the game")
	ErrNoOpponent    = errors.New("waiting for an opponent to join")
	ErrWrongStatus   = errors.New("cannot do that in the room's current state")
	ErrNotPlaying    = errors.New("game is not currently playing in this room")
	ErrNotYourTurn   = errors.New("it's not your turn")
	ErrIllegalMove   = errors.New("invalid move")
	ErrNotInRoom     = errors.New("you are not a member of that room")
)

// Options tunes a Manager. Zero fields fall back to the defaults the
// original deployment used.
type Options struct {
	Capacity       int
	ChatHistory    int
	RematchTimeout time.Duration
	Logger         *logrus.Logger
	Events         *events.Publisher
}

// Manager owns the fixed room table.
type Manager struct {
	mu     sync.Mutex
	rooms  []*Room          // every pre-allocated slot, for iteration
	free   []*Room          // slots currently empty
	byID   map[int64]*Room  // live rooms only
	nextID int64

	reg            *registry.Registry
	chatCap        int
	rematchTimeout time.Duration
	log            *logrus.Logger
	events         *events.Publisher
}

// NewManager pre-allocates the room table. Rooms are never allocated or
// freed afterwards, only reset.
func NewManager(reg *registry.Registry, opts Options) *Manager {
	if opts.Capacity <= 0 {
		opts.Capacity = 50
	}
	if opts.ChatHistory <= 0 {
		opts.ChatHistory = 100
	}
	if opts.RematchTimeout <= 0 {
		opts.RematchTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	m := &Manager{
		rooms:          make([]*Room, 0, opts.Capacity),
		free:           make([]*Room, 0, opts.Capacity),
		byID:           make(map[int64]*Room, opts.Capacity),
		nextID:         1,
		reg:            reg,
		chatCap:        opts.ChatHistory,
		rematchTimeout: opts.RematchTimeout,
		log:            opts.Logger,
		events:         opts.Events,
	}
	for i := 0; i < opts.Capacity; i++ {
		r := &Room{
			status: StatusEmpty,
			chat:   make([]ChatEntry, opts.ChatHistory),
		}
		m.rooms = append(m.rooms, r)
		m.free = append(m.free, r)
	}
	return m
}

// lookup resolves a live room by id. The table lock is released before
// the caller takes the room lock; callers must revalidate r.id under
// r.mu before trusting any field.
func (m *Manager) lookup(roomID int64) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[roomID]
}

// side reports which side p occupies, or None. Assumes r.mu is held.
func (r *Room) sideOfUnsafe(p Peer) othello.Color {
	id := p.SessionID()
	if r.slotA != nil && r.slotA.SessionID() == id {
		return othello.Black
	}
	if r.slotB != nil && r.slotB.SessionID() == id {
		return othello.White
	}
	return othello.None
}

// peersUnsafe copies out the occupied slots so notices can be written
// after the room lock is released. Assumes r.mu is held.
func (r *Room) peersUnsafe() []Peer {
	peers := make([]Peer, 0, 2)
	if r.slotA != nil {
		peers = append(peers, r.slotA)
	}
	if r.slotB != nil {
		peers = append(peers, r.slotB)
	}
	return peers
}

// appendChatUnsafe stores a chat line, overwriting the oldest entry
// once the ring is full. Assumes r.mu is held.
func (r *Room) appendChatUnsafe(e ChatEntry) {
	r.chat[r.chatNext] = e
	r.chatNext = (r.chatNext + 1) % len(r.chat)
	if r.chatCount < len(r.chat) {
		r.chatCount++
	}
}

// chatHistoryUnsafe returns the stored chat lines oldest-first.
// Assumes r.mu is held.
func (r *Room) chatHistoryUnsafe() []ChatEntry {
	out := make([]ChatEntry, 0, r.chatCount)
	start := 0
	if r.chatCount == len(r.chat) {
		start = r.chatNext
	}
	for i := 0; i < r.chatCount; i++ {
		out = append(out, r.chat[(start+i)%len(r.chat)])
	}
	return out
}

// stopRematchTimerUnsafe cancels a pending rematch deadline, if any.
// Assumes r.mu is held.
func (r *Room) stopRematchTimerUnsafe() {
	if r.rematchTimer != nil {
		r.rematchTimer.Stop()
		r.rematchTimer = nil
	}
}

// resetUnsafe wipes the room back to the empty state. The chat ring is
// reused, not reallocated. Assumes r.mu is held.
func (r *Room) resetUnsafe() {
	r.stopRematchTimerUnsafe()
	r.id = 0
	r.name = ""
	r.status = StatusEmpty
	r.slotA = nil
	r.slotB = nil
	r.game = nil
	r.moves = 0
	r.voteA = VoteUnset
	r.voteB = VoteUnset
	r.chatCount = 0
	r.chatNext = 0
	r.lastActive = time.Time{}
}

// winnerLabel maps a terminal outcome to its wire value.
func winnerLabel(winner othello.Color) string {
	if winner == othello.None {
		return "draw"
	}
	return winner.String()
}

// displayName is the chat label for a side.
func displayName(side othello.Color) string {
	switch side {
	case othello.Black:
		return "Black"
	case othello.White:
		return "White"
	default:
		return "System"
	}
}
