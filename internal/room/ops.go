// internal/room/ops.go
package room

import (
	"fmt"
	"sort"
	"time"

	"github.com/kifu-games/othello-server/internal/events"
	"github.com/kifu-games/othello-server/internal/othello"
	"github.com/kifu-games/othello-server/internal/protocol"
	"github.com/kifu-games/othello-server/internal/registry"
)

// CreateRoom allocates a free slot, seats the creator as black, and
// returns the new monotonically increasing room id. The table lock is
// held only for the reservation; the room is published for lookup only
// after its fields are fully initialized.
func (m *Manager) CreateRoom(p Peer, name string) (int64, error) {
	if mem, ok := m.reg.Lookup(p.SessionID()); ok && mem.RoomID != registry.NoRoom {
		return 0, ErrAlreadyInRoom
	}

	name = protocol.Truncate(name, protocol.MaxRoomNameLen)

	m.mu.Lock()
	if len(m.free) == 0 {
		m.mu.Unlock()
		return 0, ErrNoCapacity
	}
	r := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	r.mu.Lock()
	r.id = id
	r.name = name
	r.status = StatusWaiting
	r.slotA = p
	r.slotB = nil
	r.voteA = VoteUnset
	r.voteB = VoteUnset
	r.lastActive = time.Now()
	r.mu.Unlock()

	m.mu.Lock()
	m.byID[id] = r
	m.mu.Unlock()

	m.reg.SetRoom(p.SessionID(), id, othello.Black)
	m.log.Infof("room %d (%q) created by session %s as black", id, name, p.SessionID())
	return id, nil
}

// JoinRoom seats p as white in a waiting room. On success the creator
// is notified and the room's chat history is returned oldest-first so
// the session layer can replay it to the joiner after the join result.
func (m *Manager) JoinRoom(p Peer, roomID int64) ([]protocol.Message, error) {
	if mem, ok := m.reg.Lookup(p.SessionID()); ok && mem.RoomID != registry.NoRoom {
		return nil, ErrAlreadyInRoom
	}

	r := m.lookup(roomID)
	if r == nil {
		return nil, ErrNotFound
	}

	// Seat the registry first: if the room closes concurrently, its
	// teardown will clear this entry. The reverse order could leave a
	// seated session the teardown never saw.
	m.reg.SetRoom(p.SessionID(), roomID, othello.White)

	r.mu.Lock()
	if r.id != roomID {
		r.mu.Unlock()
		m.reg.ClearRoom(p.SessionID())
		return nil, ErrNotFound
	}
	if r.status != StatusWaiting || r.slotB != nil {
		r.mu.Unlock()
		m.reg.ClearRoom(p.SessionID())
		return nil, ErrNotJoinable
	}
	r.slotB = p
	r.lastActive = time.Now()
	creator := r.slotA
	history := r.chatHistoryUnsafe()
	r.mu.Unlock()

	if creator != nil {
		creator.Write(protocol.Message{Type: protocol.TypePlayerJoined, RoomID: roomID})
	}

	replay := make([]protocol.Message, 0, len(history))
	for _, e := range history {
		replay = append(replay, chatNotice(roomID, e))
	}
	m.log.Infof("session %s joined room %d as white", p.SessionID(), roomID)
	return replay, nil
}

// ListRooms snapshots every live room. Rooms are locked one at a time,
// never two at once.
func (m *Manager) ListRooms() []protocol.RoomSummary {
	m.mu.Lock()
	live := make([]*Room, 0, len(m.byID))
	for _, r := range m.byID {
		live = append(live, r)
	}
	m.mu.Unlock()

	out := make([]protocol.RoomSummary, 0, len(live))
	for _, r := range live {
		r.mu.Lock()
		if r.status != StatusEmpty {
			players := 0
			if r.slotA != nil {
				players++
			}
			if r.slotB != nil {
				players++
			}
			out = append(out, protocol.RoomSummary{
				RoomID:  r.id,
				Name:    r.name,
				Status:  string(r.status),
				Players: players,
			})
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// StartGame begins play: creator-only, opponent seated, room waiting.
// Both sides receive the fresh board and their color, then black gets
// the first turn notice.
func (m *Manager) StartGame(p Peer, roomID int64) error {
	r := m.lookup(roomID)
	if r == nil {
		return ErrNotFound
	}

	r.mu.Lock()
	if r.id != roomID {
		r.mu.Unlock()
		return ErrNotFound
	}
	if r.slotA == nil || r.slotA.SessionID() != p.SessionID() {
		r.mu.Unlock()
		return ErrNotCreator
	}
	if r.slotB == nil {
		r.mu.Unlock()
		return ErrNoOpponent
	}
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return ErrWrongStatus
	}

	r.game = othello.New()
	r.moves = 0
	r.status = StatusPlaying
	r.lastActive = time.Now()
	board := r.game.Board
	a, b := r.slotA, r.slotB
	r.mu.Unlock()

	m.sendGameStart(roomID, a, b, &board)
	m.log.Infof("game started in room %d", roomID)
	return nil
}

// sendGameStart delivers the start notice to both sides with their
// assigned colors, then the first turn notice to black.
func (m *Manager) sendGameStart(roomID int64, black, white Peer, board *othello.Board) {
	black.Write(protocol.Message{
		Type:      protocol.TypeGameStart,
		RoomID:    roomID,
		YourColor: othello.Black.String(),
		Board:     board,
	})
	white.Write(protocol.Message{
		Type:      protocol.TypeGameStart,
		RoomID:    roomID,
		YourColor: othello.White.String(),
		Board:     board,
	})
	black.Write(protocol.Message{Type: protocol.TypeYourTurn, RoomID: roomID})
}

// PlacePiece validates and applies one move. On success the new board
// is broadcast; then either the game ends (gameover, rematch offer,
// match record published) or the turn advances with pass semantics:
// a blocked opponent returns the turn to the mover.
func (m *Manager) PlacePiece(p Peer, roomID int64, row, col int) error {
	// Resolve the caller's side before touching any room state so the
	// registry lock and the room lock are never held together.
	mem, ok := m.reg.Lookup(p.SessionID())
	if !ok || mem.RoomID != roomID {
		return ErrNotInRoom
	}
	side := mem.Side

	r := m.lookup(roomID)
	if r == nil {
		return ErrNotFound
	}

	r.mu.Lock()
	if r.id != roomID {
		r.mu.Unlock()
		return ErrNotFound
	}
	if r.status != StatusPlaying || r.game == nil {
		r.mu.Unlock()
		return ErrNotPlaying
	}
	if side == othello.None || side != r.game.Turn {
		r.mu.Unlock()
		return ErrNotYourTurn
	}
	if !r.game.IsLegal(side, row, col) {
		r.mu.Unlock()
		return fmt.Errorf("%w at (%d, %d)", ErrIllegalMove, row, col)
	}

	r.game.Apply(side, row, col)
	r.moves++
	r.lastActive = time.Now()
	board := r.game.Board
	peers := r.peersUnsafe()

	update := protocol.Message{
		Type:       protocol.TypeBoardUpdate,
		RoomID:     roomID,
		MoverColor: side.String(),
		Row:        protocol.Int(row),
		Col:        protocol.Int(col),
		Board:      &board,
	}

	over, winner := r.game.Outcome()
	if over {
		r.status = StatusGameOver
		r.voteA = VoteUnset
		r.voteB = VoteUnset
		m.armRematchTimerUnsafe(r)

		black, white := r.game.Count()
		moves := r.moves
		name := r.name
		r.mu.Unlock()

		for _, peer := range peers {
			peer.Write(update)
		}
		m.finishGame(roomID, name, winner, black, white, moves, peers)
		return nil
	}

	// Pass semantics: if the opponent has no legal move the turn stays
	// with the mover. Both sides being blocked is exactly the terminal
	// condition handled above; seeing it here is an internal
	// inconsistency, so log it and advance nothing.
	var turnTarget Peer
	opp := side.Opponent()
	switch {
	case r.game.HasAnyMove(opp):
		r.game.Turn = opp
		if opp == othello.Black {
			turnTarget = r.slotA
		} else {
			turnTarget = r.slotB
		}
	case r.game.HasAnyMove(side):
		r.game.Turn = side
		turnTarget = p
		m.log.Infof("room %d: %s has no valid moves, turn stays with %s", roomID, opp, side)
	default:
		m.log.Errorf("room %d: neither side can move but the game did not report a terminal outcome", roomID)
	}
	r.mu.Unlock()

	for _, peer := range peers {
		peer.Write(update)
	}
	if turnTarget != nil {
		turnTarget.Write(protocol.Message{Type: protocol.TypeYourTurn, RoomID: roomID})
	}
	return nil
}

// finishGame broadcasts the terminal notices and publishes the match
// record. Called with no locks held.
func (m *Manager) finishGame(roomID int64, name string, winner othello.Color, black, white, moves int, peers []Peer) {
	label := winnerLabel(winner)
	var summary string
	switch winner {
	case othello.Black:
		summary = fmt.Sprintf("Game over! Black wins %d-%d.", black, white)
	case othello.White:
		summary = fmt.Sprintf("Game over! White wins %d-%d.", white, black)
	default:
		summary = fmt.Sprintf("Game over! It's a draw, %d-%d.", black, white)
	}

	gameOver := protocol.Message{
		Type:    protocol.TypeGameOver,
		RoomID:  roomID,
		Winner:  label,
		Message: summary,
	}
	offer := protocol.Message{Type: protocol.TypeRematchOffer, RoomID: roomID}
	for _, peer := range peers {
		peer.Write(gameOver)
		peer.Write(offer)
	}

	m.events.PublishAsync(events.MatchResult{
		RoomID:     roomID,
		RoomName:   name,
		Winner:     label,
		BlackScore: black,
		WhiteScore: white,
		Moves:      moves,
		FinishedAt: time.Now().Unix(),
	})
	m.log.Infof("game over in room %d: %s", roomID, summary)
}

// RematchVote records the caller's vote exactly once. Any decline
// closes the room; mutual agreement restarts the game with a fresh
// board and black to move; a lone vote waits under the rematch timer.
func (m *Manager) RematchVote(p Peer, roomID int64, agree bool) error {
	r := m.lookup(roomID)
	if r == nil {
		return ErrNotFound
	}

	r.mu.Lock()
	if r.id != roomID {
		r.mu.Unlock()
		return ErrNotFound
	}
	if r.status != StatusGameOver && r.status != StatusRematching {
		r.mu.Unlock()
		return ErrWrongStatus
	}

	vote := VoteAgree
	if !agree {
		vote = VoteDecline
	}
	switch r.sideOfUnsafe(p) {
	case othello.Black:
		if r.voteA != VoteUnset {
			r.mu.Unlock()
			return nil // already answered, ignore
		}
		r.voteA = vote
	case othello.White:
		if r.voteB != VoteUnset {
			r.mu.Unlock()
			return nil
		}
		r.voteB = vote
	default:
		r.mu.Unlock()
		return ErrNotInRoom
	}

	r.status = StatusRematching
	r.lastActive = time.Now()
	voteA, voteB := r.voteA, r.voteB
	peers := r.peersUnsafe()

	switch {
	case voteA == VoteDecline || voteB == VoteDecline:
		r.stopRematchTimerUnsafe()
		r.mu.Unlock()

		result := protocol.Message{
			Type:    protocol.TypeRematchResult,
			RoomID:  roomID,
			Outcome: protocol.RematchDisagreed,
		}
		for _, peer := range peers {
			peer.Write(result)
		}
		m.log.Infof("rematch declined in room %d", roomID)
		m.CloseRoom(roomID, "Rematch declined by a player.")

	case voteA == VoteAgree && voteB == VoteAgree:
		r.stopRematchTimerUnsafe()
		r.game = othello.New()
		r.moves = 0
		r.status = StatusPlaying
		r.voteA = VoteUnset
		r.voteB = VoteUnset
		r.lastActive = time.Now()
		board := r.game.Board
		a, b := r.slotA, r.slotB
		r.mu.Unlock()

		result := protocol.Message{
			Type:    protocol.TypeRematchResult,
			RoomID:  roomID,
			Outcome: protocol.RematchAgreed,
		}
		for _, peer := range peers {
			peer.Write(result)
		}
		m.sendGameStart(roomID, a, b, &board)
		m.log.Infof("rematch agreed in room %d, new game started", roomID)

	default:
		// One vote in, the other still unset: wait for the opponent or
		// the rematch timer.
		r.mu.Unlock()
		m.log.Debugf("room %d: waiting for opponent's rematch response", roomID)
	}
	return nil
}

// armRematchTimerUnsafe schedules the vote deadline when a game ends.
// Assumes r.mu is held. The timer identity is rechecked on expiry so a
// stale timer from an earlier game in the same slot cannot fire.
func (m *Manager) armRematchTimerUnsafe(r *Room) {
	r.stopRematchTimerUnsafe()
	roomID := r.id
	var timer *time.Timer
	timer = time.AfterFunc(m.rematchTimeout, func() {
		m.expireRematch(r, roomID, timer)
	})
	r.rematchTimer = timer
}

// expireRematch fires when the rematch window elapses without a
// resolution: both sides get a timeout result and the room closes.
func (m *Manager) expireRematch(r *Room, roomID int64, timer *time.Timer) {
	r.mu.Lock()
	if r.rematchTimer != timer || r.id != roomID ||
		(r.status != StatusGameOver && r.status != StatusRematching) {
		r.mu.Unlock()
		return
	}
	r.rematchTimer = nil
	peers := r.peersUnsafe()
	r.mu.Unlock()

	result := protocol.Message{
		Type:    protocol.TypeRematchResult,
		RoomID:  roomID,
		Outcome: protocol.RematchTimeout,
	}
	for _, peer := range peers {
		peer.Write(result)
	}
	m.log.Infof("rematch window expired in room %d", roomID)
	m.CloseRoom(roomID, "Rematch window expired.")
}

// Chat appends the line to the room's ring buffer and broadcasts it to
// both sides with the sender's color and display label.
func (m *Manager) Chat(p Peer, roomID int64, text string) error {
	mem, ok := m.reg.Lookup(p.SessionID())
	if !ok || mem.RoomID != roomID {
		return ErrNotInRoom
	}

	r := m.lookup(roomID)
	if r == nil {
		return ErrNotFound
	}

	entry := ChatEntry{
		SenderColor: mem.Side,
		SenderName:  displayName(mem.Side),
		Text:        protocol.Truncate(text, protocol.MaxChatLen),
		Timestamp:   time.Now().Unix(),
	}

	r.mu.Lock()
	if r.id != roomID {
		r.mu.Unlock()
		return ErrNotFound
	}
	r.appendChatUnsafe(entry)
	peers := r.peersUnsafe()
	r.mu.Unlock()

	notice := chatNotice(roomID, entry)
	for _, peer := range peers {
		peer.Write(notice)
	}
	return nil
}

func chatNotice(roomID int64, e ChatEntry) protocol.Message {
	return protocol.Message{
		Type:        protocol.TypeChatBroadcast,
		RoomID:      roomID,
		SenderColor: e.SenderColor.String(),
		SenderName:  e.SenderName,
		Text:        e.Text,
		Timestamp:   e.Timestamp,
	}
}

// CloseRoom retires the room id, notifies whichever sides are still
// seated, clears their registry entries, and returns the slot to the
// free list. Idempotent: a second close of the same id is a no-op.
func (m *Manager) CloseRoom(roomID int64, reason string) {
	m.mu.Lock()
	r := m.byID[roomID]
	if r == nil {
		m.mu.Unlock()
		return
	}
	delete(m.byID, roomID)
	m.mu.Unlock()

	r.mu.Lock()
	peers := r.peersUnsafe()
	r.resetUnsafe()
	r.mu.Unlock()

	m.mu.Lock()
	m.free = append(m.free, r)
	m.mu.Unlock()

	closed := protocol.Message{
		Type:   protocol.TypeRoomClosed,
		RoomID: roomID,
		Reason: protocol.Truncate(reason, protocol.MaxMessageLen),
	}
	for _, peer := range peers {
		peer.Write(closed)
		m.reg.ClearRoom(peer.SessionID())
	}
	m.log.Infof("room %d closed: %s", roomID, reason)
}

// HandleDisconnect tears down whatever the vanished session was part
// of: it is removed from its slot, the peer (if any) learns the room is
// closed, and the registry entry is dropped. Safe to call for sessions
// that never joined a room.
func (m *Manager) HandleDisconnect(p Peer) {
	id := p.SessionID()
	mem, ok := m.reg.Lookup(id)
	m.reg.Unregister(id)
	if !ok || mem.RoomID == registry.NoRoom {
		return
	}

	r := m.lookup(mem.RoomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.id != mem.RoomID {
		r.mu.Unlock()
		return
	}
	peerRemains := false
	switch {
	case r.slotA != nil && r.slotA.SessionID() == id:
		r.slotA = nil
		peerRemains = r.slotB != nil
	case r.slotB != nil && r.slotB.SessionID() == id:
		r.slotB = nil
		peerRemains = r.slotA != nil
	}
	r.mu.Unlock()

	reason := "A player disconnected."
	if peerRemains {
		reason = "Opponent disconnected."
	}
	m.log.Infof("session %s disconnected from room %d", id, mem.RoomID)
	m.CloseRoom(mem.RoomID, reason)
}
