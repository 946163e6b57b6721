package database

import "github.com/jackc/pgx/v5/pgtype"

type User struct {
	UserID         pgtype.UUID
	Username       string
	Email          string
	HashedPassword string
	IsOnline       bool
	LastSeen       pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
}

type ChatRoom struct {
	RoomID    pgtype.UUID
	Name      string
	IsGroup   bool
	CreatedBy pgtype.UUID
	CreatedAt pgtype.Timestamptz
	DirectKey pgtype.Text
}

type Message struct {
	MessageID  pgtype.UUID
	ChatRoomID pgtype.UUID
	SenderID   pgtype.UUID
	Content    string
	SentAt     pgtype.Timestamptz
	IsRead     bool
}
