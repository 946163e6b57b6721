package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
)

// Middleware validates the client's JWT and attaches the resulting identity
// to the request context. Browser websocket clients cannot set headers on
// the upgrade request, so an access_token query parameter is accepted as a
// fallback.
func Middleware(tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = r.URL.Query().Get("access_token")
			}
			if tokenString == "" {
				unauthorized(w)
				return
			}

			identity, err := auth.ValidateJWT(tokenString, tokenSecret)
			if err != nil {
				slog.DebugContext(r.Context(), "rejected token",
					"path", r.URL.Path,
					"error", err)
				unauthorized(w)
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), auth.IdentityKey, identity))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}
