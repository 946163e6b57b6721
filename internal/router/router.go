// Package router maintains which live connections receive broadcasts for a
// room. Subscriptions are transient and connection-scoped; persisted room
// membership is checked by the caller before subscribing.
package router

import (
	"sync"

	"github.com/google/uuid"
)

// Router keeps both directions of the subscription relation so that room
// fan-out and connection teardown are each a single map lookup.
type Router struct {
	mu     sync.RWMutex
	byRoom map[uuid.UUID]map[uuid.UUID]struct{}
	byConn map[uuid.UUID]map[uuid.UUID]struct{}
}

func New() *Router {
	return &Router{
		byRoom: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byConn: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Subscribe adds connID to the room's broadcast set. Subscribing twice has
// the same effect as once.
func (r *Router) Subscribe(connID, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.byRoom[roomID]
	if !ok {
		room = make(map[uuid.UUID]struct{})
		r.byRoom[roomID] = room
	}
	room[connID] = struct{}{}

	conn, ok := r.byConn[connID]
	if !ok {
		conn = make(map[uuid.UUID]struct{})
		r.byConn[connID] = conn
	}
	conn[roomID] = struct{}{}
}

// Unsubscribe removes connID from the room's broadcast set. Unsubscribing an
// absent pair is a no-op.
func (r *Router) Unsubscribe(connID, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connID, roomID)
}

// UnsubscribeAll removes the connection from every room it was subscribed
// to. Invoked on connection teardown so broadcasts never target dead
// connections.
func (r *Router) UnsubscribeAll(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.byConn[connID] {
		r.remove(connID, roomID)
	}
}

func (r *Router) remove(connID, roomID uuid.UUID) {
	if room, ok := r.byRoom[roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	if conn, ok := r.byConn[connID]; ok {
		delete(conn, roomID)
		if len(conn) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// MembersOf returns a snapshot of the connections subscribed to a room.
func (r *Router) MembersOf(roomID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.byRoom[roomID]
	members := make([]uuid.UUID, 0, len(room))
	for connID := range room {
		members = append(members, connID)
	}
	return members
}

// Rooms returns a snapshot of the rooms a connection is subscribed to.
func (r *Router) Rooms(connID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn := r.byConn[connID]
	rooms := make([]uuid.UUID, 0, len(conn))
	for roomID := range conn {
		rooms = append(rooms, roomID)
	}
	return rooms
}
