// Package chat is the session layer: it reacts to connection lifecycle
// events and inbound actions, validates membership, persists state changes,
// and hands events to the broadcaster.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"

	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/model"
	"github.com/Etchbanna/Kallemny-Production/internal/presence"
	"github.com/Etchbanna/Kallemny-Production/internal/router"
)

// ErrNotAMember rejects actions on rooms the user has no persisted
// membership in. The connection stays open.
var ErrNotAMember = errors.New("not a member of this chat room")

type sanitizer interface {
	Sanitize(s string) string
}

// Store is the slice of the durable store the hub consumes.
type Store interface {
	GetMembershipsForUser(ctx context.Context, userID pgtype.UUID) ([]pgtype.UUID, error)
	IsMember(ctx context.Context, arg database.IsMemberParams) (bool, error)
	CreateMessage(ctx context.Context, arg database.CreateMessageParams) (database.Message, error)
	GetUnreadMessages(ctx context.Context, arg database.GetUnreadMessagesParams) ([]database.Message, error)
	MarkMessagesRead(ctx context.Context, messageIDs []pgtype.UUID) error
	SetUserOnline(ctx context.Context, arg database.SetUserOnlineParams) error
}

// Publisher hands a routed event to the delivery pipeline. The broker
// implements it against JetStream; tests loop events straight back into
// Delivered.
type Publisher interface {
	Publish(ctx context.Context, evt model.Event) error
}

type Hub struct {
	db          Store
	publisher   Publisher
	presence    *presence.Registry
	router      *router.Router
	broadcaster *Broadcaster
	sanitizer   sanitizer
	log         *slog.Logger

	// Delivered receives envelopes from the broker consumer; Run drains it
	// into the broadcaster.
	Delivered chan model.Event
}

func NewHub(db Store, pub Publisher, log *slog.Logger, eventBufferSize int) *Hub {
	rt := router.New()
	return &Hub{
		db:          db,
		publisher:   pub,
		presence:    presence.NewRegistry(),
		router:      rt,
		broadcaster: NewBroadcaster(rt, log),
		sanitizer:   bluemonday.StrictPolicy(),
		log:         log.With(slog.String("component", "hub")),
		Delivered:   make(chan model.Event, eventBufferSize),
	}
}

// Run drains delivered events into the broadcaster until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case evt := <-h.Delivered:
			h.broadcaster.Dispatch(evt)
		case <-ctx.Done():
			return
		}
	}
}

// IsOnline reports whether the user currently has at least one live
// connection on this hub.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.presence.IsOnline(userID)
}

// Connect wires a freshly authenticated connection into the hub: loads the
// user's room memberships, registers presence, and subscribes the
// connection to every membership room. The user's first connection flips
// the persisted online flag and announces UserOnline to everyone.
func (h *Hub) Connect(ctx context.Context, c *Client) error {
	rooms, err := h.db.GetMembershipsForUser(ctx, pgUUID(c.UserID))
	if err != nil {
		return fmt.Errorf("hub: failed to load memberships: %w", err)
	}

	h.broadcaster.Attach(c.ConnID, c.Outbox)

	if first := h.presence.RegisterConnection(c.UserID, c.ConnID); first {
		h.announcePresence(ctx, c, true)
	}

	for _, roomID := range rooms {
		h.router.Subscribe(c.ConnID, uuid.UUID(roomID.Bytes))
	}

	h.log.Info("client connected",
		"user_id", c.UserID.String(),
		"username", c.Username,
		"rooms", len(rooms))
	return nil
}

// Disconnect tears a connection down. Losing the user's last connection
// flips the persisted online flag and announces UserOffline.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	h.broadcaster.Detach(c.ConnID)
	h.router.UnsubscribeAll(c.ConnID)

	if last := h.presence.UnregisterConnection(c.UserID, c.ConnID); last {
		h.announcePresence(ctx, c, false)
	}

	h.log.Info("client disconnected",
		"user_id", c.UserID.String(),
		"username", c.Username)
}

// announcePresence persists the transition, then broadcasts it. The store
// write comes first so a presence event is never announced before the
// corresponding store state exists; on store failure the broadcast is
// skipped.
func (h *Hub) announcePresence(ctx context.Context, c *Client, online bool) {
	now := time.Now().UTC()
	err := h.db.SetUserOnline(ctx, database.SetUserOnlineParams{
		UserID:   pgUUID(c.UserID),
		IsOnline: online,
		LastSeen: pgTime(now),
	})
	if err != nil {
		h.log.Error("failed to persist presence transition",
			"user_id", c.UserID.String(),
			"online", online,
			"error", err)
		return
	}

	name := model.EventUserOnline
	if !online {
		name = model.EventUserOffline
	}
	evt, err := model.BroadcastEvent(name, model.UserPresence{
		UserID:   c.UserID,
		Username: c.Username,
		IsOnline: online,
		LastSeen: now,
	})
	if err != nil {
		h.log.Error("failed to build presence event", "error", err)
		return
	}
	if err := h.publisher.Publish(ctx, evt); err != nil {
		h.log.Error("failed to publish presence event", "error", err)
	}
}

// SendMessage persists a message and broadcasts it to the room. The whole
// room group receives it, the sender's own connections included.
func (h *Hub) SendMessage(ctx context.Context, c *Client, roomID uuid.UUID, content string) error {
	content = h.sanitizer.Sanitize(content)

	ok, err := h.db.IsMember(ctx, database.IsMemberParams{
		UserID:     pgUUID(c.UserID),
		ChatRoomID: pgUUID(roomID),
	})
	if err != nil {
		return fmt.Errorf("hub: membership check failed: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}

	msg, err := h.db.CreateMessage(ctx, database.CreateMessageParams{
		MessageID:  pgUUID(uuid.New()),
		ChatRoomID: pgUUID(roomID),
		SenderID:   pgUUID(c.UserID),
		Content:    content,
		SentAt:     pgTime(time.Now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("hub: failed to persist message: %w", err)
	}

	evt, err := model.RoomEvent(model.EventReceiveMessage, roomID, model.MessageResponse{
		ID:             uuid.UUID(msg.MessageID.Bytes),
		Content:        msg.Content,
		SenderUsername: c.Username,
		SenderID:       c.UserID,
		SentAt:         msg.SentAt.Time,
		ChatRoomID:     roomID,
	})
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, evt)
}

// JoinChatRoom subscribes the connection to a room it is a persisted
// member of. Subscribing twice is harmless.
func (h *Hub) JoinChatRoom(ctx context.Context, c *Client, roomID uuid.UUID) error {
	ok, err := h.db.IsMember(ctx, database.IsMemberParams{
		UserID:     pgUUID(c.UserID),
		ChatRoomID: pgUUID(roomID),
	})
	if err != nil {
		return fmt.Errorf("hub: membership check failed: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}

	h.router.Subscribe(c.ConnID, roomID)
	return nil
}

// LeaveChatRoom drops the live subscription for this connection only.
// Persisted membership is untouched, so the user is re-subscribed on next
// connect ("leave for this session" semantics).
func (h *Hub) LeaveChatRoom(c *Client, roomID uuid.UUID) {
	h.router.Unsubscribe(c.ConnID, roomID)
}

// SendTypingIndicator broadcasts typing state to the room, excluding the
// typist's own connection. Typing is best-effort UX: a non-member's
// indicator is silently dropped.
func (h *Hub) SendTypingIndicator(ctx context.Context, c *Client, roomID uuid.UUID, isTyping bool) error {
	ok, err := h.db.IsMember(ctx, database.IsMemberParams{
		UserID:     pgUUID(c.UserID),
		ChatRoomID: pgUUID(roomID),
	})
	if err != nil || !ok {
		if err != nil {
			h.log.Warn("membership check failed for typing indicator", "error", err)
		}
		return nil
	}

	evt, err := model.RoomEventExcept(model.EventUserTyping, roomID, c.ConnID, model.TypingIndicator{
		UserID:     c.UserID,
		Username:   c.Username,
		ChatRoomID: roomID,
		IsTyping:   isTyping,
	})
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, evt)
}

// MarkMessagesAsRead flips is_read on the room's unread messages not
// authored by the caller, then broadcasts a read receipt to the room
// excluding the reader. A sender cannot mark their own messages read.
func (h *Hub) MarkMessagesAsRead(ctx context.Context, c *Client, roomID uuid.UUID) error {
	msgs, err := h.db.GetUnreadMessages(ctx, database.GetUnreadMessagesParams{
		ChatRoomID:    pgUUID(roomID),
		ExcludeSender: pgUUID(c.UserID),
	})
	if err != nil {
		return fmt.Errorf("hub: failed to load unread messages: %w", err)
	}

	if len(msgs) > 0 {
		ids := lo.Map(msgs, func(m database.Message, _ int) pgtype.UUID { return m.MessageID })
		if err := h.db.MarkMessagesRead(ctx, ids); err != nil {
			return fmt.Errorf("hub: failed to mark messages read: %w", err)
		}
	}

	evt, err := model.RoomEventExcept(model.EventMessagesRead, roomID, c.ConnID, model.ReadReceipt{
		ChatRoomID: roomID,
		UserID:     c.UserID,
	})
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, evt)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
