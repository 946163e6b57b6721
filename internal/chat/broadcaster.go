package chat

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Etchbanna/Kallemny-Production/internal/model"
	"github.com/Etchbanna/Kallemny-Production/internal/router"
)

// Broadcaster fans a routed event out to the connections subscribed to its
// target. Delivery is best-effort per connection: each send is a
// non-blocking push into that connection's outbox, so one slow or dead
// receiver never stalls the rest or the originating action.
type Broadcaster struct {
	router *router.Router

	mu       sync.RWMutex
	outboxes map[uuid.UUID]chan<- model.Event

	log *slog.Logger
}

func NewBroadcaster(rt *router.Router, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		router:   rt,
		outboxes: make(map[uuid.UUID]chan<- model.Event),
		log:      log.With(slog.String("component", "broadcaster")),
	}
}

// Attach registers a connection's outbox as a delivery target.
func (b *Broadcaster) Attach(connID uuid.UUID, outbox chan<- model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outboxes[connID] = outbox
}

func (b *Broadcaster) Detach(connID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.outboxes, connID)
}

// Dispatch routes an event envelope to its target set.
func (b *Broadcaster) Dispatch(evt model.Event) {
	switch evt.Scope {
	case model.ScopeAll:
		b.ToAll(evt)
	case model.ScopeRoom:
		b.ToRoomExcept(evt.RoomID, evt, evt.ExcludeConnID)
	default:
		b.log.Warn("dropping event with unknown scope",
			"event", evt.Name,
			"scope", evt.Scope)
	}
}

func (b *Broadcaster) ToRoom(roomID uuid.UUID, evt model.Event) {
	b.ToRoomExcept(roomID, evt, uuid.Nil)
}

// ToRoomExcept sends to every connection subscribed to the room, skipping
// exclude. Pass uuid.Nil to exclude nothing.
func (b *Broadcaster) ToRoomExcept(roomID uuid.UUID, evt model.Event, exclude uuid.UUID) {
	for _, connID := range b.router.MembersOf(roomID) {
		if connID == exclude {
			continue
		}
		b.send(connID, evt)
	}
}

// ToAll sends to every attached connection.
func (b *Broadcaster) ToAll(evt model.Event) {
	b.mu.RLock()
	connIDs := make([]uuid.UUID, 0, len(b.outboxes))
	for connID := range b.outboxes {
		connIDs = append(connIDs, connID)
	}
	b.mu.RUnlock()

	for _, connID := range connIDs {
		b.send(connID, evt)
	}
}

func (b *Broadcaster) send(connID uuid.UUID, evt model.Event) {
	b.mu.RLock()
	outbox, ok := b.outboxes[connID]
	b.mu.RUnlock()
	if !ok {
		// Connection went away between the router snapshot and delivery.
		return
	}

	select {
	case outbox <- evt:
	default:
		b.log.Warn("dropping event for slow connection",
			"event", evt.Name,
			"conn_id", connID.String())
	}
}
