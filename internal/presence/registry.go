// Package presence tracks which users are reachable over how many live
// connections. It is the single source of truth for online/offline
// transitions: the first connection of a user fires the online edge, losing
// the last one fires the offline edge, and nothing in between fires at all.
package presence

import (
	"sync"

	"github.com/google/uuid"
)

type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// RegisterConnection adds connID to the user's connection set and reports
// whether this was the offline-to-online transition. Registering a
// connection id that is already present is a no-op and never fires a second
// transition.
func (r *Registry) RegisterConnection(userID, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.conns[userID] = set
	}

	wasEmpty := len(set) == 0
	set[connID] = struct{}{}
	return wasEmpty
}

// UnregisterConnection removes connID and reports whether the user's set
// became empty (the online-to-offline transition). Unknown connection ids
// are a no-op returning false; disconnect races are expected and benign.
func (r *Registry) UnregisterConnection(userID, connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}

	delete(set, connID)
	if len(set) == 0 {
		// Drop the entry entirely to bound memory.
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection. The
// snapshot may be momentarily stale under concurrent mutation.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnectionCount returns the number of live connections for a user.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}
