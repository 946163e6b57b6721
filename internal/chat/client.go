package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Etchbanna/Kallemny-Production/internal/model"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Client is one live transport session for a user. A user may own several
// concurrently (devices, tabs); each gets its own connection id.
type Client struct {
	ConnID   uuid.UUID
	UserID   uuid.UUID
	Username string

	conn   *websocket.Conn
	hub    *Hub
	Outbox chan model.Event

	messageLim *rate.Limiter
	typingLim  *rate.Limiter
	log        *slog.Logger
}

func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID, username string, outboxSize int) *Client {
	connID := uuid.New()
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
		conn:     conn,
		hub:      hub,
		Outbox:   make(chan model.Event, outboxSize),
		log: slog.Default().With(
			slog.String("conn_id", connID.String()),
			slog.String("username", username)),
	}
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) SetTypingLimiter(requests int, window time.Duration) {
	c.typingLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

// WritePump drains the outbox into the websocket stream, pinging the peer
// between events to keep intermediaries from invalidating the connection.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-c.Outbox:
			data, err := json.Marshal(evt.Frame())
			if err != nil {
				c.log.Error("failed to encode frame", "event", evt.Name, "error", err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Warn("failed to write frame", "error", err)
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

// ReadPump decodes inbound action frames and drives the hub until the
// connection drops. It owns the disconnect: whatever ends the read loop,
// the hub is told exactly once.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.hub.Disconnect(disconnectCtx, c)
		cancel()
		c.conn.CloseNow()
	}()

	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var act model.Action
		if err := json.Unmarshal(data, &act); err != nil {
			c.log.Warn("failed to decode action frame", "error", err)
			continue
		}

		c.dispatch(ctx, act)
	}
}

func (c *Client) dispatch(ctx context.Context, act model.Action) {
	var err error
	switch act.Action {
	case model.ActionSendMessage:
		if c.messageLim != nil && !c.messageLim.Allow() {
			c.sendError("Rate limit exceeded. Slow down.")
			return
		}
		err = c.hub.SendMessage(ctx, c, act.ChatRoomID, act.Content)

	case model.ActionJoinRoom:
		err = c.hub.JoinChatRoom(ctx, c, act.ChatRoomID)

	case model.ActionLeaveRoom:
		c.hub.LeaveChatRoom(c, act.ChatRoomID)

	case model.ActionTyping:
		if c.typingLim != nil && !c.typingLim.Allow() {
			return
		}
		err = c.hub.SendTypingIndicator(ctx, c, act.ChatRoomID, act.IsTyping)

	case model.ActionMarkRead:
		err = c.hub.MarkMessagesAsRead(ctx, c, act.ChatRoomID)

	default:
		c.log.Warn("unknown action", "action", act.Action)
		return
	}

	switch {
	case errors.Is(err, ErrNotAMember):
		c.sendError("You are not a member of this chat room")
	case err != nil:
		c.log.Error("action failed", "action", act.Action, "error", err)
		c.sendError("Something went wrong. Try again.")
	}
}

// sendError pushes an error frame to this connection only. Errors never go
// through the broker; they concern nobody else.
func (c *Client) sendError(msg string) {
	data, err := json.Marshal(model.ErrorMessage{Message: msg})
	if err != nil {
		return
	}
	select {
	case c.Outbox <- model.Event{Name: model.EventError, Data: data}:
	default:
	}
}
