// internal/registry/registry.go

// Package registry tracks every live connection and its current room
// membership. The table is capacity-bounded and guarded by a single
// mutex; per-room state lives in the room package under its own locks.
//
// Lock order across the server is registry before room. No registry
// method calls into the room package, so holding the registry lock
// never acquires a room lock.
package registry

import (
	"errors"

	"github.com/google/uuid"
	"github.com/kifu-games/othello-server/internal/othello"
	"sync"
)

// ErrFull is returned by Register once the table is saturated.
var ErrFull = errors.New("registry: client table full")

// NoRoom marks a session that is in the lobby rather than a room.
const NoRoom int64 = -1

// Membership is a session's current seat: which room (NoRoom if none)
// and which side.
type Membership struct {
	RoomID int64
	Side   othello.Color
}

// Registry is the bounded client table.
type Registry struct {
	mu       sync.Mutex
	capacity int
	clients  map[uuid.UUID]Membership
}

// New returns an empty registry holding at most capacity sessions.
func New(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		clients:  make(map[uuid.UUID]Membership, capacity),
	}
}

// Register adds a freshly accepted connection in the lobby state.
// Registering an id twice is an internal error and is treated as a
// plain overwrite of the lobby state.
func (reg *Registry) Register(id uuid.UUID) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.clients[id]; !ok && len(reg.clients) >= reg.capacity {
		return ErrFull
	}
	reg.clients[id] = Membership{RoomID: NoRoom, Side: othello.None}
	return nil
}

// Unregister drops the connection from the table. Unknown ids are
// ignored so disconnect teardown stays idempotent.
func (reg *Registry) Unregister(id uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.clients, id)
}

// Lookup returns the session's membership and whether it is registered.
func (reg *Registry) Lookup(id uuid.UUID) (Membership, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.clients[id]
	return m, ok
}

// SetRoom seats a registered session in a room with the given side.
// Returns false if the session is not registered.
func (reg *Registry) SetRoom(id uuid.UUID, roomID int64, side othello.Color) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.clients[id]; !ok {
		return false
	}
	reg.clients[id] = Membership{RoomID: roomID, Side: side}
	return true
}

// ClearRoom returns a session to the lobby state. Unknown ids are
// ignored; room teardown may race with the session unregistering.
func (reg *Registry) ClearRoom(id uuid.UUID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.clients[id]; ok {
		reg.clients[id] = Membership{RoomID: NoRoom, Side: othello.None}
	}
}

// Len reports the number of registered sessions.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}
