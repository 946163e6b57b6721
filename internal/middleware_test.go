package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etchbanna/Kallemny-Production/internal/auth"
)

const testSecret = "test-secret"

func protected(t *testing.T, want auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := auth.GetIdentityFromContext(r.Context())
		require.NoError(t, err)
		assert.Equal(t, want, got)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareBearerHeader(t *testing.T) {
	identity := auth.Identity{UserID: uuid.New(), Username: "nour"}
	token, err := auth.MakeJWT(identity, testSecret, "kallemny", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Middleware(testSecret)(protected(t, identity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareQueryFallback(t *testing.T) {
	identity := auth.Identity{UserID: uuid.New(), Username: "nour"}
	token, err := auth.MakeJWT(identity, testSecret, "kallemny", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	rec := httptest.NewRecorder()

	Middleware(testSecret)(protected(t, identity)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareRejects(t *testing.T) {
	identity := auth.Identity{UserID: uuid.New(), Username: "nour"}
	wrongSecret, err := auth.MakeJWT(identity, "some-other-secret", "kallemny", time.Minute)
	require.NoError(t, err)
	expired, err := auth.MakeJWT(identity, testSecret, "kallemny", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"malformed header", func(r *http.Request) {
			r.Header.Set("Authorization", "Token abc")
		}},
		{"wrong secret", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+wrongSecret)
		}},
		{"expired token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+expired)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			Middleware(testSecret)(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
			assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())
		})
	}
}
