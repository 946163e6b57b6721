package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
	"github.com/Etchbanna/Kallemny-Production/internal/chat"
	"github.com/Etchbanna/Kallemny-Production/internal/config"
)

// Client action limits apply over a one minute window.
const rateWindow = time.Minute

// ServeWs upgrades an authenticated request to a websocket session and
// wires it into the hub.
func ServeWs(hub *chat.Hub, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := auth.GetIdentityFromContext(ctx)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := chat.NewClient(conn, hub, identity.UserID, identity.Username, cfg.ClientBufferSize)
		client.SetMessageLimiter(cfg.MessagesPerMinute, rateWindow)
		client.SetTypingLimiter(cfg.TypingPerMinute, rateWindow)

		if err := hub.Connect(ctx, client); err != nil {
			slog.Error("failed to connect client", "error", err)
			conn.Close(websocket.StatusInternalError, "connect failed")
			return
		}

		slog.InfoContext(ctx, "upgraded connection",
			slog.String("username", identity.Username))

		// Block on the read loop; the request context is cancelled the
		// moment this handler returns.
		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}
}
