package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createUser = `
INSERT INTO users (user_id, username, email, hashed_password, is_online, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5)
RETURNING user_id, username, email, hashed_password, is_online, last_seen, created_at
`

type CreateUserParams struct {
	UserID         pgtype.UUID
	Username       string
	Email          string
	HashedPassword string
	CreatedAt      pgtype.Timestamptz
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.UserID, arg.Username, arg.Email, arg.HashedPassword, arg.CreatedAt)
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT user_id, username, email, hashed_password, is_online, last_seen, created_at
FROM users WHERE user_id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, userID pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, userID)
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt)
	return u, err
}

const getUserByUsername = `
SELECT user_id, username, email, hashed_password, is_online, last_seen, created_at
FROM users WHERE username = $1
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByUsername, username)
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT user_id, username, email, hashed_password, is_online, last_seen, created_at
FROM users WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword,
		&u.IsOnline, &u.LastSeen, &u.CreatedAt)
	return u, err
}

const listUsers = `
SELECT user_id, username, email, hashed_password, is_online, last_seen, created_at
FROM users ORDER BY username
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Username, &u.Email, &u.HashedPassword,
			&u.IsOnline, &u.LastSeen, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const setUserOnline = `
UPDATE users SET is_online = $2, last_seen = $3 WHERE user_id = $1
`

type SetUserOnlineParams struct {
	UserID   pgtype.UUID
	IsOnline bool
	LastSeen pgtype.Timestamptz
}

func (q *Queries) SetUserOnline(ctx context.Context, arg SetUserOnlineParams) error {
	_, err := q.db.Exec(ctx, setUserOnline, arg.UserID, arg.IsOnline, arg.LastSeen)
	return err
}
