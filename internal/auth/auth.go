// Package auth handles password hashing and the JWT identity attached to
// every authenticated connection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ContextKey string

const IdentityKey ContextKey = "identity"

// Identity is the authenticated {userId, username} pair the core trusts
// without re-verifying credentials.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

func HashPassword(password string) (string, error) {
	hashedPw, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("internal/auth: pw hash failed: %w", err)
	}

	return hashedPw, nil
}

func CheckPasswordHash(password, hash string) (bool, error) {
	isMatch, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return false, fmt.Errorf("internal/auth: pw and hash comparison failed: %w", err)
	}

	return isMatch, nil
}

// MakeJWT mints a signed token carrying the user id as subject and the
// username as a private claim.
func MakeJWT(id Identity, tokenSecret, issuer string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		Username: id.Username,
	})

	return token.SignedString([]byte(tokenSecret))
}

func ValidateJWT(tokenString, tokenSecret string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return Identity{}, errors.New("internal/auth: subject claim is missing")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("internal/auth: subject is not a user id: %w", err)
	}

	return Identity{UserID: userID, Username: claims.Username}, nil
}

// GetIdentityFromContext returns the identity the auth middleware attached
// to the request context.
func GetIdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	if !ok {
		return Identity{}, errors.New("internal/auth: no identity in context")
	}
	return id, nil
}
