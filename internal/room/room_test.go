// internal/room/room_test.go
package room

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kifu-games/othello-server/internal/othello"
	"github.com/kifu-games/othello-server/internal/protocol"
	"github.com/kifu-games/othello-server/internal/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPeer records every message written to it so tests can assert on
// the notice stream a client would have seen.
type mockPeer struct {
	id   uuid.UUID
	mu   sync.Mutex
	msgs []protocol.Message
}

func newMockPeer() *mockPeer {
	return &mockPeer{id: uuid.New()}
}

func (p *mockPeer) SessionID() uuid.UUID { return p.id }

func (p *mockPeer) Write(msg protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *mockPeer) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}

// ofType filters the recorded stream down to one message type.
func (p *mockPeer) ofType(t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range p.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (p *mockPeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T, opts Options) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New(16)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewManager(reg, opts), reg
}

// seatRoom registers both peers and walks them through create and join.
func seatRoom(t *testing.T, m *Manager, reg *registry.Registry) (int64, *mockPeer, *mockPeer) {
	t.Helper()
	creator, joiner := newMockPeer(), newMockPeer()
	require.NoError(t, reg.Register(creator.id))
	require.NoError(t, reg.Register(joiner.id))

	roomID, err := m.CreateRoom(creator, "test room")
	require.NoError(t, err)

	_, err = m.JoinRoom(joiner, roomID)
	require.NoError(t, err)
	return roomID, creator, joiner
}

// setGame swaps in a crafted position. Used to reach late-game states
// without scripting full games.
func setGame(t *testing.T, m *Manager, roomID int64, s *othello.State) {
	t.Helper()
	r := m.lookup(roomID)
	require.NotNil(t, r)
	r.mu.Lock()
	r.game = s
	r.status = StatusPlaying
	r.mu.Unlock()
}

func TestCreateAndJoinFlow(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	creator, joiner := newMockPeer(), newMockPeer()
	require.NoError(t, reg.Register(creator.id))
	require.NoError(t, reg.Register(joiner.id))

	roomID, err := m.CreateRoom(creator, "first")
	require.NoError(t, err)
	assert.Equal(t, int64(1), roomID)

	mem, ok := reg.Lookup(creator.id)
	require.True(t, ok)
	assert.Equal(t, roomID, mem.RoomID)
	assert.Equal(t, othello.Black, mem.Side)

	// A seated session cannot create or join a second room.
	_, err = m.CreateRoom(creator, "second")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	replay, err := m.JoinRoom(joiner, roomID)
	require.NoError(t, err)
	assert.Empty(t, replay)

	mem, ok = reg.Lookup(joiner.id)
	require.True(t, ok)
	assert.Equal(t, othello.White, mem.Side)

	joined := creator.ofType(protocol.TypePlayerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, roomID, joined[0].RoomID)

	// Third session: the room is full.
	third := newMockPeer()
	require.NoError(t, reg.Register(third.id))
	_, err = m.JoinRoom(third, roomID)
	assert.ErrorIs(t, err, ErrNotJoinable)
	mem, ok = reg.Lookup(third.id)
	require.True(t, ok)
	assert.Equal(t, registry.NoRoom, mem.RoomID, "failed join must roll back the registry seat")

	_, err = m.JoinRoom(third, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRoomCapacity(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 1})
	a, b := newMockPeer(), newMockPeer()
	require.NoError(t, reg.Register(a.id))
	require.NoError(t, reg.Register(b.id))

	first, err := m.CreateRoom(a, "only")
	require.NoError(t, err)

	_, err = m.CreateRoom(b, "overflow")
	assert.ErrorIs(t, err, ErrNoCapacity)

	// Closing frees the slot; the recycled room gets a fresh id.
	m.CloseRoom(first, "test teardown")
	second, err := m.CreateRoom(b, "reuse")
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestStartGameGating(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	creator := newMockPeer()
	require.NoError(t, reg.Register(creator.id))
	roomID, err := m.CreateRoom(creator, "solo")
	require.NoError(t, err)

	assert.ErrorIs(t, m.StartGame(creator, roomID), ErrNoOpponent)

	joiner := newMockPeer()
	require.NoError(t, reg.Register(joiner.id))
	_, err = m.JoinRoom(joiner, roomID)
	require.NoError(t, err)

	assert.ErrorIs(t, m.StartGame(joiner, roomID), ErrNotCreator)
	require.NoError(t, m.StartGame(creator, roomID))
	assert.ErrorIs(t, m.StartGame(creator, roomID), ErrWrongStatus)

	starts := creator.ofType(protocol.TypeGameStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "black", starts[0].YourColor)
	require.NotNil(t, starts[0].Board)
	assert.Equal(t, othello.Black, starts[0].Board[3][4])

	starts = joiner.ofType(protocol.TypeGameStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "white", starts[0].YourColor)

	// Black opens, so only the creator has a turn notice.
	assert.Len(t, creator.ofType(protocol.TypeYourTurn), 1)
	assert.Empty(t, joiner.ofType(protocol.TypeYourTurn))
}

func TestPlacePieceFlow(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))
	creator.reset()
	joiner.reset()

	outsider := newMockPeer()
	require.NoError(t, reg.Register(outsider.id))
	assert.ErrorIs(t, m.PlacePiece(outsider, roomID, 2, 3), ErrNotInRoom)

	// White moving first is out of turn.
	assert.ErrorIs(t, m.PlacePiece(joiner, roomID, 2, 3), ErrNotYourTurn)

	require.NoError(t, m.PlacePiece(creator, roomID, 2, 3))

	for _, p := range []*mockPeer{creator, joiner} {
		updates := p.ofType(protocol.TypeBoardUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, "black", updates[0].MoverColor)
		require.NotNil(t, updates[0].Row)
		assert.Equal(t, 2, *updates[0].Row)
		require.NotNil(t, updates[0].Board)
		assert.Equal(t, othello.Black, updates[0].Board[3][3], "bracketed white piece must flip")
	}
	assert.Len(t, joiner.ofType(protocol.TypeYourTurn), 1)
	assert.Empty(t, creator.ofType(protocol.TypeYourTurn))

	// Black again: no longer black's turn.
	assert.ErrorIs(t, m.PlacePiece(creator, roomID, 2, 4), ErrNotYourTurn)

	assert.ErrorIs(t, m.PlacePiece(joiner, roomID, 0, 0), ErrIllegalMove)
	require.NoError(t, m.PlacePiece(joiner, roomID, 2, 2))
}

func TestPlacePiecePassKeepsTurnWithMover(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	// After black captures at (0,0), white's only piece is (7,1),
	// which brackets nothing, while black still has (7,2). White must
	// be passed over and black keeps the turn.
	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	s.Board[7][0] = othello.Black
	s.Board[7][1] = othello.White
	setGame(t, m, roomID, s)
	creator.reset()
	joiner.reset()

	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))

	assert.Len(t, creator.ofType(protocol.TypeYourTurn), 1)
	assert.Empty(t, joiner.ofType(protocol.TypeYourTurn))
	assert.Empty(t, creator.ofType(protocol.TypeGameOver))

	require.NoError(t, m.PlacePiece(creator, roomID, 7, 2))
}

func TestGameOverAndRematchAgree(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	// Black's capture at (0,0) removes white's last piece, ending the
	// game 3-0.
	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	setGame(t, m, roomID, s)
	creator.reset()
	joiner.reset()

	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))

	for _, p := range []*mockPeer{creator, joiner} {
		overs := p.ofType(protocol.TypeGameOver)
		require.Len(t, overs, 1)
		assert.Equal(t, "black", overs[0].Winner)
		assert.Contains(t, overs[0].Message, "3-0")
		assert.Len(t, p.ofType(protocol.TypeRematchOffer), 1)
	}

	// Moves after the end are rejected.
	assert.ErrorIs(t, m.PlacePiece(creator, roomID, 5, 5), ErrNotPlaying)

	creator.reset()
	joiner.reset()
	require.NoError(t, m.RematchVote(creator, roomID, true))
	assert.Empty(t, creator.ofType(protocol.TypeRematchResult), "one vote must not resolve the offer")

	require.NoError(t, m.RematchVote(joiner, roomID, true))
	for _, p := range []*mockPeer{creator, joiner} {
		results := p.ofType(protocol.TypeRematchResult)
		require.Len(t, results, 1)
		assert.Equal(t, protocol.RematchAgreed, results[0].Outcome)
		assert.Len(t, p.ofType(protocol.TypeGameStart), 1)
	}
	// Colors are preserved across the rematch: black opens again.
	assert.Len(t, creator.ofType(protocol.TypeYourTurn), 1)
	require.NoError(t, m.PlacePiece(creator, roomID, 2, 3))
}

func TestRematchDeclineClosesRoom(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	setGame(t, m, roomID, s)
	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))
	creator.reset()
	joiner.reset()

	require.NoError(t, m.RematchVote(joiner, roomID, false))

	for _, p := range []*mockPeer{creator, joiner} {
		results := p.ofType(protocol.TypeRematchResult)
		require.Len(t, results, 1)
		assert.Equal(t, protocol.RematchDisagreed, results[0].Outcome)
		require.Len(t, p.ofType(protocol.TypeRoomClosed), 1)
	}
	assert.Nil(t, m.lookup(roomID))

	mem, ok := reg.Lookup(creator.id)
	require.True(t, ok)
	assert.Equal(t, registry.NoRoom, mem.RoomID)
}

func TestRematchVoteRecordedOnce(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	setGame(t, m, roomID, s)
	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))
	creator.reset()
	joiner.reset()

	require.NoError(t, m.RematchVote(creator, roomID, true))
	// A second answer from the same side is ignored, not a flip.
	require.NoError(t, m.RematchVote(creator, roomID, false))
	assert.Empty(t, creator.ofType(protocol.TypeRematchResult))

	require.NoError(t, m.RematchVote(joiner, roomID, true))
	results := creator.ofType(protocol.TypeRematchResult)
	require.Len(t, results, 1)
	assert.Equal(t, protocol.RematchAgreed, results[0].Outcome)
}

func TestRematchTimeoutClosesRoom(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4, RematchTimeout: 20 * time.Millisecond})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	setGame(t, m, roomID, s)
	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))
	creator.reset()
	joiner.reset()

	require.Eventually(t, func() bool {
		return m.lookup(roomID) == nil
	}, time.Second, 5*time.Millisecond, "room should close when the rematch window lapses")

	for _, p := range []*mockPeer{creator, joiner} {
		results := p.ofType(protocol.TypeRematchResult)
		require.Len(t, results, 1)
		assert.Equal(t, protocol.RematchTimeout, results[0].Outcome)
		assert.Len(t, p.ofType(protocol.TypeRoomClosed), 1)
	}
}

func TestRematchTimerStoppedByResolution(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4, RematchTimeout: 20 * time.Millisecond})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))

	s := &othello.State{Turn: othello.Black}
	s.Board[0][1] = othello.White
	s.Board[0][2] = othello.Black
	setGame(t, m, roomID, s)
	require.NoError(t, m.PlacePiece(creator, roomID, 0, 0))

	require.NoError(t, m.RematchVote(creator, roomID, true))
	require.NoError(t, m.RematchVote(joiner, roomID, true))
	creator.reset()

	time.Sleep(60 * time.Millisecond)
	assert.NotNil(t, m.lookup(roomID), "an agreed rematch must defuse the timeout")
	assert.Empty(t, creator.ofType(protocol.TypeRoomClosed))
}

func TestChatBroadcastAndReplay(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4, ChatHistory: 2})
	creator := newMockPeer()
	require.NoError(t, reg.Register(creator.id))
	roomID, err := m.CreateRoom(creator, "chatty")
	require.NoError(t, err)

	outsider := newMockPeer()
	require.NoError(t, reg.Register(outsider.id))
	assert.ErrorIs(t, m.Chat(outsider, roomID, "hi"), ErrNotInRoom)

	require.NoError(t, m.Chat(creator, roomID, "first"))
	require.NoError(t, m.Chat(creator, roomID, "second"))
	require.NoError(t, m.Chat(creator, roomID, "third"))

	lines := creator.ofType(protocol.TypeChatBroadcast)
	require.Len(t, lines, 3)
	assert.Equal(t, "Black", lines[0].SenderName)
	assert.Equal(t, "black", lines[0].SenderColor)

	// The ring holds two entries, so the joiner replays the newest two
	// oldest-first.
	joiner := newMockPeer()
	require.NoError(t, reg.Register(joiner.id))
	replay, err := m.JoinRoom(joiner, roomID)
	require.NoError(t, err)
	require.Len(t, replay, 2)
	assert.Equal(t, protocol.TypeChatBroadcast, replay[0].Type)
	assert.Equal(t, "second", replay[0].Text)
	assert.Equal(t, "third", replay[1].Text)

	creator.reset()
	require.NoError(t, m.Chat(joiner, roomID, "hello"))
	got := creator.ofType(protocol.TypeChatBroadcast)
	require.Len(t, got, 1)
	assert.Equal(t, "White", got[0].SenderName)

	// Oversized bodies are clipped, not rejected.
	require.NoError(t, m.Chat(joiner, roomID, strings.Repeat("x", protocol.MaxChatLen+50)))
	got = creator.ofType(protocol.TypeChatBroadcast)
	require.Len(t, got, 2)
	assert.Len(t, []rune(got[1].Text), protocol.MaxChatLen)
}

func TestCloseRoomIdempotent(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)

	m.CloseRoom(roomID, "shutting down")
	m.CloseRoom(roomID, "shutting down")

	for _, p := range []*mockPeer{creator, joiner} {
		closed := p.ofType(protocol.TypeRoomClosed)
		require.Len(t, closed, 1, "double close must not re-notify")
		assert.Equal(t, roomID, closed[0].RoomID)
		assert.Equal(t, "shutting down", closed[0].Reason)
	}
	assert.Nil(t, m.lookup(roomID))
}

func TestHandleDisconnect(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	roomID, creator, joiner := seatRoom(t, m, reg)
	require.NoError(t, m.StartGame(creator, roomID))
	creator.reset()

	m.HandleDisconnect(joiner)

	closed := creator.ofType(protocol.TypeRoomClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "Opponent disconnected.", closed[0].Reason)
	assert.Nil(t, m.lookup(roomID))

	_, ok := reg.Lookup(joiner.id)
	assert.False(t, ok, "disconnected session must leave the registry")
	mem, ok := reg.Lookup(creator.id)
	require.True(t, ok)
	assert.Equal(t, registry.NoRoom, mem.RoomID)

	// A session that never joined anything tears down cleanly too.
	loner := newMockPeer()
	require.NoError(t, reg.Register(loner.id))
	m.HandleDisconnect(loner)
	_, ok = reg.Lookup(loner.id)
	assert.False(t, ok)
}

func TestListRooms(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	assert.Empty(t, m.ListRooms())

	a, b, c := newMockPeer(), newMockPeer(), newMockPeer()
	for _, p := range []*mockPeer{a, b, c} {
		require.NoError(t, reg.Register(p.id))
	}

	first, err := m.CreateRoom(a, "alpha")
	require.NoError(t, err)
	second, err := m.CreateRoom(b, "beta")
	require.NoError(t, err)
	_, err = m.JoinRoom(c, first)
	require.NoError(t, err)

	rooms := m.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, first, rooms[0].RoomID)
	assert.Equal(t, "alpha", rooms[0].Name)
	assert.Equal(t, 2, rooms[0].Players)
	assert.Equal(t, string(StatusWaiting), rooms[0].Status)
	assert.Equal(t, second, rooms[1].RoomID)
	assert.Equal(t, 1, rooms[1].Players)
}

func TestRoomNameTruncated(t *testing.T) {
	m, reg := newTestManager(t, Options{Capacity: 4})
	p := newMockPeer()
	require.NoError(t, reg.Register(p.id))

	_, err := m.CreateRoom(p, strings.Repeat("n", protocol.MaxRoomNameLen+10))
	require.NoError(t, err)

	rooms := m.ListRooms()
	require.Len(t, rooms, 1)
	assert.Len(t, []rune(rooms[0].Name), protocol.MaxRoomNameLen)
}

func TestErrorsAreDistinguishable(t *testing.T) {
	// The session layer maps in-game rejections to invalid_move and
	// membership problems to plain errors; the sentinels must stay
	// distinct for that to work.
	gameErrs := []error{ErrNotPlaying, ErrNotYourTurn, ErrIllegalMove}
	otherErrs := []error{ErrNotFound, ErrNotInRoom, ErrAlreadyInRoom}
	for _, g := range gameErrs {
		for _, o := range otherErrs {
			assert.False(t, errors.Is(g, o))
		}
	}
}
