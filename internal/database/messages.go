package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createMessage = `
INSERT INTO messages (message_id, chat_room_id, sender_id, content, sent_at, is_read)
VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING message_id, chat_room_id, sender_id, content, sent_at, is_read
`

type CreateMessageParams struct {
	MessageID  pgtype.UUID
	ChatRoomID pgtype.UUID
	SenderID   pgtype.UUID
	Content    string
	SentAt     pgtype.Timestamptz
}

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRow(ctx, createMessage,
		arg.MessageID, arg.ChatRoomID, arg.SenderID, arg.Content, arg.SentAt)
	var m Message
	err := row.Scan(&m.MessageID, &m.ChatRoomID, &m.SenderID, &m.Content, &m.SentAt, &m.IsRead)
	return m, err
}

const listRoomMessages = `
SELECT m.message_id, m.chat_room_id, m.sender_id, m.content, m.sent_at, m.is_read, u.username
FROM messages m
JOIN users u ON u.user_id = m.sender_id
WHERE m.chat_room_id = $1
ORDER BY m.sent_at DESC, m.message_id DESC
OFFSET $2 LIMIT $3
`

type ListRoomMessagesParams struct {
	ChatRoomID pgtype.UUID
	Skip       int32
	Take       int32
}

type ListRoomMessagesRow struct {
	MessageID      pgtype.UUID
	ChatRoomID     pgtype.UUID
	SenderID       pgtype.UUID
	Content        string
	SentAt         pgtype.Timestamptz
	IsRead         bool
	SenderUsername string
}

// ListRoomMessages returns one page of room history, newest first. Callers
// reverse the page for chronological display.
func (q *Queries) ListRoomMessages(ctx context.Context, arg ListRoomMessagesParams) ([]ListRoomMessagesRow, error) {
	rows, err := q.db.Query(ctx, listRoomMessages, arg.ChatRoomID, arg.Skip, arg.Take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListRoomMessagesRow
	for rows.Next() {
		var r ListRoomMessagesRow
		if err := rows.Scan(&r.MessageID, &r.ChatRoomID, &r.SenderID, &r.Content,
			&r.SentAt, &r.IsRead, &r.SenderUsername); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getUnreadMessages = `
SELECT message_id, chat_room_id, sender_id, content, sent_at, is_read
FROM messages
WHERE chat_room_id = $1 AND sender_id <> $2 AND NOT is_read
ORDER BY sent_at, message_id
`

type GetUnreadMessagesParams struct {
	ChatRoomID pgtype.UUID
	// ExcludeSender filters out the reader's own messages; a sender cannot
	// mark their own messages read.
	ExcludeSender pgtype.UUID
}

func (q *Queries) GetUnreadMessages(ctx context.Context, arg GetUnreadMessagesParams) ([]Message, error) {
	rows, err := q.db.Query(ctx, getUnreadMessages, arg.ChatRoomID, arg.ExcludeSender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.ChatRoomID, &m.SenderID, &m.Content,
			&m.SentAt, &m.IsRead); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

const markMessagesRead = `
UPDATE messages SET is_read = TRUE WHERE message_id = ANY($1)
`

func (q *Queries) MarkMessagesRead(ctx context.Context, messageIDs []pgtype.UUID) error {
	_, err := q.db.Exec(ctx, markMessagesRead, messageIDs)
	return err
}
