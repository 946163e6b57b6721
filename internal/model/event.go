// Package model defines the wire-level event and action types shared by the
// hub, the broker, and the websocket transport.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbound event names. These match what connected clients listen for.
const (
	EventUserOnline     = "UserOnline"
	EventUserOffline    = "UserOffline"
	EventReceiveMessage = "ReceiveMessage"
	EventUserTyping     = "UserTyping"
	EventMessagesRead   = "MessagesRead"
	EventError          = "Error"
)

// Scope selects the set of connections an event fans out to.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeRoom Scope = "room"
)

// Event is the routed envelope carried through the broker between the
// persist step and the fan-out step. Data holds the already-encoded payload
// so the envelope survives a NATS round trip unchanged.
type Event struct {
	Name          string          `json:"event"`
	Scope         Scope           `json:"scope"`
	RoomID        uuid.UUID       `json:"room_id,omitzero"`
	ExcludeConnID uuid.UUID       `json:"exclude_conn_id,omitzero"`
	Data          json.RawMessage `json:"data"`
}

// Frame is the shape written to a websocket connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (e Event) Frame() Frame {
	return Frame{Event: e.Name, Data: e.Data}
}

func BroadcastEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("model: could not encode %s payload: %w", name, err)
	}
	return Event{Name: name, Scope: ScopeAll, Data: data}, nil
}

func RoomEvent(name string, roomID uuid.UUID, payload any) (Event, error) {
	evt, err := BroadcastEvent(name, payload)
	if err != nil {
		return Event{}, err
	}
	evt.Scope = ScopeRoom
	evt.RoomID = roomID
	return evt, nil
}

// RoomEventExcept targets a room while skipping one connection. Used for
// typing indicators and read receipts, which must not echo back to the
// acting connection.
func RoomEventExcept(name string, roomID, exclude uuid.UUID, payload any) (Event, error) {
	evt, err := RoomEvent(name, roomID, payload)
	if err != nil {
		return Event{}, err
	}
	evt.ExcludeConnID = exclude
	return evt, nil
}

// UserPresence announces an online/offline transition to every connection.
type UserPresence struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// MessageResponse is a persisted chat message with its sender resolved.
type MessageResponse struct {
	ID             uuid.UUID `json:"id"`
	Content        string    `json:"content"`
	SenderUsername string    `json:"senderUsername"`
	SenderID       uuid.UUID `json:"senderId"`
	SentAt         time.Time `json:"sentAt"`
	ChatRoomID     uuid.UUID `json:"chatRoomId"`
}

type TypingIndicator struct {
	UserID     uuid.UUID `json:"userId"`
	Username   string    `json:"username"`
	ChatRoomID uuid.UUID `json:"chatRoomId"`
	IsTyping   bool      `json:"isTyping"`
}

type ReadReceipt struct {
	ChatRoomID uuid.UUID `json:"chatRoomId"`
	UserID     uuid.UUID `json:"userId"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
