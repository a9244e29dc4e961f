package runtime

import (
	"chat-hub/contract"
	"chat-hub/domain"
	apperrors "chat-hub/errors"
	"sync"
	"time"
)

type Set map[domain.ConnectionID]struct{}

type session struct {
	identity    string
	room        string // empty means not joined anywhere
	sink        contract.EventSink
	connectedAt time.Time
}

// Registry is the live connection directory. It maps connection IDs to
// their identity, current room and outbound sink, plus a room index for
// fast fan-out. A single RWMutex covers both maps so no reader ever sees
// a connection half-moved between rooms.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnectionID]*session
	roomMembers map[string]Set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnectionID]*session),
		roomMembers: make(map[string]Set),
	}
}

// Register adds a new connection with no room. Connection IDs are issued
// by the transport and must be unique for the lifetime of the process;
// a duplicate registration is refused so a stale socket can never steal
// a live one's sink.
func (r *Registry) Register(conn domain.ConnectionID, identity string, sink contract.EventSink, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn]; ok {
		return apperrors.ErrDuplicateConnection
	}
	r.sessions[conn] = &session{identity: identity, sink: sink, connectedAt: at}
	return nil
}

// Unregister removes a connection and its room membership in one step.
// Unknown connections are ignored so transport teardown is idempotent.
func (r *Registry) Unregister(conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return
	}
	delete(r.sessions, conn)
	r.dropFromRoom(conn, s.room)
}

// SetRoom moves a connection into a room, leaving its previous room if it
// had one. A connection is a member of at most one room at any time.
func (r *Registry) SetRoom(conn domain.ConnectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return
	}
	r.dropFromRoom(conn, s.room)
	s.room = room

	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][conn] = struct{}{}
}

func (r *Registry) ClearRoom(conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return
	}
	r.dropFromRoom(conn, s.room)
	s.room = ""
}

// dropFromRoom removes the connection from the room index and cleans up
// empty member sets to prevent the map growing over time.
// Caller must hold the write lock.
func (r *Registry) dropFromRoom(conn domain.ConnectionID, room string) {
	if room == "" {
		return
	}
	if members, ok := r.roomMembers[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}

// Identities returns the distinct identity names across all connections.
// Two sockets sharing one account contribute a single entry.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.sessions))
	var identities []string
	for _, s := range r.sessions {
		if _, ok := seen[s.identity]; ok {
			continue
		}
		seen[s.identity] = struct{}{}
		identities = append(identities, s.identity)
	}
	return identities
}

func (r *Registry) Identity(conn domain.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn]
	if !ok {
		return "", false
	}
	return s.identity, true
}

func (r *Registry) Room(conn domain.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn]
	if !ok || s.room == "" {
		return "", false
	}
	return s.room, true
}

func (r *Registry) Sink(conn domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// SinksForRoom resolves the room index into active sinks. It performs a
// two-step lookup: member connection IDs first, then their sinks from the
// session directory. Returns nil for an unknown or empty room.
func (r *Registry) SinksForRoom(room string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for conn := range members {
		if s, exists := r.sessions[conn]; exists {
			activeSinks = append(activeSinks, s.sink)
		}
	}
	return activeSinks
}

// SinksForIdentity returns the sinks of every connection logged in under
// the given identity. Direct messages go to all of them.
func (r *Registry) SinksForIdentity(identity string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var activeSinks []contract.EventSink
	for _, s := range r.sessions {
		if s.identity == identity {
			activeSinks = append(activeSinks, s.sink)
		}
	}
	return activeSinks
}

func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var activeSinks []contract.EventSink
	for _, s := range r.sessions {
		activeSinks = append(activeSinks, s.sink)
	}
	return activeSinks
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
