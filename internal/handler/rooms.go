package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/room"
)

type createRoomRequest struct {
	Name        string      `json:"name"`
	IsGroup     bool        `json:"isGroup"`
	OtherUserID *uuid.UUID  `json:"otherUserId,omitempty"`
	UserIDs     []uuid.UUID `json:"userIds,omitempty"`
}

// ChatRoomResponse describes a room from the caller's perspective.
type ChatRoomResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	CreatedAt time.Time `json:"createdAt"`
	UserNames []string  `json:"userNames,omitempty"`
}

// CreateRoom creates a chat room. A non-group request naming another user
// resolves to the existing direct room between the pair when one exists;
// a group request adds the creator plus every listed user as members.
func CreateRoom(rooms *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := auth.GetIdentityFromContext(ctx)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		var req createRoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			respondError(w, http.StatusBadRequest, "Room name is required.")
			return
		}

		var created database.ChatRoom
		switch {
		case !req.IsGroup && req.OtherUserID != nil:
			created, err = rooms.CreateOrGetDirect(ctx, identity.UserID, *req.OtherUserID, req.Name)
		case req.IsGroup:
			created, err = rooms.CreateGroup(ctx, identity.UserID, req.Name, req.UserIDs)
		default:
			// Non-group room with no counterpart: a room of one.
			created, err = rooms.CreateSolo(ctx, identity.UserID, req.Name)
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to create chat room.")
			slog.Error("failed to create room", "error", err)
			return
		}

		respondJSON(w, http.StatusOK, ChatRoomResponse{
			ID:        uuid.UUID(created.RoomID.Bytes),
			Name:      created.Name,
			IsGroup:   created.IsGroup,
			CreatedAt: created.CreatedAt.Time,
		})
	}
}

// ListRooms returns every room the caller is a member of, with the member
// usernames resolved.
func ListRooms(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		identity, err := auth.GetIdentityFromContext(ctx)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}

		rows, err := db.ListRoomsForUser(ctx, pgtype.UUID{Bytes: identity.UserID, Valid: true})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to list rooms", "error", err)
			return
		}

		resp := lo.Map(rows, func(row database.ListRoomsForUserRow, _ int) ChatRoomResponse {
			return ChatRoomResponse{
				ID:        uuid.UUID(row.RoomID.Bytes),
				Name:      row.Name,
				IsGroup:   row.IsGroup,
				CreatedAt: row.CreatedAt.Time,
				UserNames: row.MemberNames,
			}
		})
		if resp == nil {
			resp = []ChatRoomResponse{}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
