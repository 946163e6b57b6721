package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
	"github.com/Etchbanna/Kallemny-Production/internal/database"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by both Register and Login.
type AuthResponse struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	UserID   uuid.UUID `json:"userId"`
}

// Register creates a new account and returns a signed token for it.
// Username and email must both be unused.
func Register(db *database.DB, tokenSecret, issuer string, tokenTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.Username == "" || req.Email == "" {
			respondError(w, http.StatusBadRequest, "Username and email are required.")
			return
		}
		if len(req.Password) < 6 {
			respondError(w, http.StatusBadRequest, "Password must be at least 6 characters.")
			return
		}

		if _, err := db.GetUserByUsername(ctx, req.Username); err == nil {
			respondError(w, http.StatusConflict, "Username is already taken.")
			return
		} else if !errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to check username", "error", err)
			return
		}

		if _, err := db.GetUserByEmail(ctx, req.Email); err == nil {
			respondError(w, http.StatusConflict, "Email is already registered.")
			return
		} else if !errors.Is(err, pgx.ErrNoRows) {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to check email", "error", err)
			return
		}

		hashedPw, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error.")
			slog.Error("failed to hash password", "error", err)
			return
		}

		user, err := db.CreateUser(ctx, database.CreateUserParams{
			UserID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Username:       req.Username,
			Email:          req.Email,
			HashedPassword: hashedPw,
			CreatedAt:      pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Database error.")
			slog.Error("failed to create user", "error", err)
			return
		}

		identity := auth.Identity{
			UserID:   uuid.UUID(user.UserID.Bytes),
			Username: user.Username,
		}
		token, err := auth.MakeJWT(identity, tokenSecret, issuer, tokenTTL)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error.")
			slog.Error("failed to sign token", "error", err)
			return
		}

		slog.InfoContext(ctx, "user registered",
			slog.String("username", user.Username))

		respondJSON(w, http.StatusCreated, AuthResponse{
			Token:    token,
			Username: identity.Username,
			UserID:   identity.UserID,
		})
	}
}

// Login verifies credentials and returns a signed token. The same message
// covers an unknown username and a wrong password.
func Login(db *database.DB, tokenSecret, issuer string, tokenTTL time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		user, err := db.GetUserByUsername(ctx, req.Username)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				slog.Error("failed to retrieve user", "error", err)
			}
			respondError(w, http.StatusUnauthorized, "Invalid username or password.")
			return
		}

		ok, err := auth.CheckPasswordHash(req.Password, user.HashedPassword)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error.")
			slog.Error("cannot verify password, hash may be corrupted", "error", err)
			return
		}
		if !ok {
			respondError(w, http.StatusUnauthorized, "Invalid username or password.")
			return
		}

		identity := auth.Identity{
			UserID:   uuid.UUID(user.UserID.Bytes),
			Username: user.Username,
		}
		token, err := auth.MakeJWT(identity, tokenSecret, issuer, tokenTTL)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Server error.")
			slog.Error("failed to sign token", "error", err)
			return
		}

		slog.InfoContext(ctx, "user logged in",
			slog.String("username", user.Username))

		respondJSON(w, http.StatusOK, AuthResponse{
			Token:    token,
			Username: identity.Username,
			UserID:   identity.UserID,
		})
	}
}
