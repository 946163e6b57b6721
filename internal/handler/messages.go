package handler

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/model"
)

// ListMessages returns one page of a room's history in chronological
// order. Pagination is skip/take over the newest-first ordering, so
// skip=0 is always the most recent page. Members only.
func ListMessages(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := auth.GetIdentityFromContext(ctx)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid room id.")
			return
		}

		skip := queryInt(r, "skip", 0)
		take := queryInt(r, "take", 50)

		isMember, err := db.IsMember(ctx, database.IsMemberParams{
			UserID:     pgtype.UUID{Bytes: identity.UserID, Valid: true},
			ChatRoomID: pgtype.UUID{Bytes: roomID, Valid: true},
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("membership check failed", "error", err)
			return
		}
		if !isMember {
			respondError(w, http.StatusForbidden, "You are not a member of this chat room")
			return
		}

		rows, err := db.ListRoomMessages(ctx, database.ListRoomMessagesParams{
			ChatRoomID: pgtype.UUID{Bytes: roomID, Valid: true},
			Skip:       int32(skip),
			Take:       int32(take),
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to list messages", "error", err)
			return
		}

		resp := lo.Map(rows, func(row database.ListRoomMessagesRow, _ int) model.MessageResponse {
			return model.MessageResponse{
				ID:             uuid.UUID(row.MessageID.Bytes),
				Content:        row.Content,
				SenderUsername: row.SenderUsername,
				SenderID:       uuid.UUID(row.SenderID.Bytes),
				SentAt:         row.SentAt.Time,
				ChatRoomID:     uuid.UUID(row.ChatRoomID.Bytes),
			}
		})
		lo.Reverse(resp)
		if resp == nil {
			resp = []model.MessageResponse{}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// queryInt reads a non-negative int query parameter, falling back on
// anything unusable. Values are capped at MaxInt32 so the int32 conversion
// for the store never wraps negative.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > math.MaxInt32 {
		return fallback
	}
	return n
}
