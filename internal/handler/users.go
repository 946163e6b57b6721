package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/model"
)

// ListUsers returns every registered user with their persisted presence
// state. The directory view clients build their contact list from.
func ListUsers(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := db.ListUsers(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to list users", "error", err)
			return
		}

		resp := lo.Map(users, func(u database.User, _ int) model.UserPresence {
			return model.UserPresence{
				UserID:   uuid.UUID(u.UserID.Bytes),
				Username: u.Username,
				IsOnline: u.IsOnline,
				LastSeen: u.LastSeen.Time,
			}
		})
		if resp == nil {
			resp = []model.UserPresence{}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
