package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createRoom = `
INSERT INTO chat_rooms (room_id, name, is_group, created_by, created_at, direct_key)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING room_id, name, is_group, created_by, created_at, direct_key
`

type CreateRoomParams struct {
	RoomID    pgtype.UUID
	Name      string
	IsGroup   bool
	CreatedBy pgtype.UUID
	CreatedAt pgtype.Timestamptz
	DirectKey pgtype.Text
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (ChatRoom, error) {
	row := q.db.QueryRow(ctx, createRoom,
		arg.RoomID, arg.Name, arg.IsGroup, arg.CreatedBy, arg.CreatedAt, arg.DirectKey)
	var r ChatRoom
	err := row.Scan(&r.RoomID, &r.Name, &r.IsGroup, &r.CreatedBy, &r.CreatedAt, &r.DirectKey)
	return r, err
}

const getRoomByDirectKey = `
SELECT room_id, name, is_group, created_by, created_at, direct_key
FROM chat_rooms WHERE direct_key = $1
`

// GetRoomByDirectKey resolves the unique non-group room for an unordered
// user pair, identified by its normalized pair key.
func (q *Queries) GetRoomByDirectKey(ctx context.Context, directKey pgtype.Text) (ChatRoom, error) {
	row := q.db.QueryRow(ctx, getRoomByDirectKey, directKey)
	var r ChatRoom
	err := row.Scan(&r.RoomID, &r.Name, &r.IsGroup, &r.CreatedBy, &r.CreatedAt, &r.DirectKey)
	return r, err
}

const addMembership = `
INSERT INTO chat_room_users (user_id, chat_room_id, joined_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, chat_room_id) DO NOTHING
`

type AddMembershipParams struct {
	UserID     pgtype.UUID
	ChatRoomID pgtype.UUID
	JoinedAt   pgtype.Timestamptz
}

func (q *Queries) AddMembership(ctx context.Context, arg AddMembershipParams) error {
	_, err := q.db.Exec(ctx, addMembership, arg.UserID, arg.ChatRoomID, arg.JoinedAt)
	return err
}

const getMembershipsForUser = `
SELECT chat_room_id FROM chat_room_users WHERE user_id = $1
`

func (q *Queries) GetMembershipsForUser(ctx context.Context, userID pgtype.UUID) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, getMembershipsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roomIDs []pgtype.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		roomIDs = append(roomIDs, id)
	}
	return roomIDs, rows.Err()
}

const isMember = `
SELECT EXISTS (
	SELECT 1 FROM chat_room_users WHERE user_id = $1 AND chat_room_id = $2
)
`

type IsMemberParams struct {
	UserID     pgtype.UUID
	ChatRoomID pgtype.UUID
}

func (q *Queries) IsMember(ctx context.Context, arg IsMemberParams) (bool, error) {
	row := q.db.QueryRow(ctx, isMember, arg.UserID, arg.ChatRoomID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listRoomsForUser = `
SELECT cr.room_id, cr.name, cr.is_group, cr.created_at,
	ARRAY(
		SELECT u.username
		FROM chat_room_users cu
		JOIN users u ON u.user_id = cu.user_id
		WHERE cu.chat_room_id = cr.room_id
		ORDER BY u.username
	) AS member_names
FROM chat_rooms cr
JOIN chat_room_users me ON me.chat_room_id = cr.room_id
WHERE me.user_id = $1
ORDER BY cr.created_at
`

type ListRoomsForUserRow struct {
	RoomID      pgtype.UUID
	Name        string
	IsGroup     bool
	CreatedAt   pgtype.Timestamptz
	MemberNames []string
}

func (q *Queries) ListRoomsForUser(ctx context.Context, userID pgtype.UUID) ([]ListRoomsForUserRow, error) {
	rows, err := q.db.Query(ctx, listRoomsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListRoomsForUserRow
	for rows.Next() {
		var r ListRoomsForUserRow
		if err := rows.Scan(&r.RoomID, &r.Name, &r.IsGroup, &r.CreatedAt, &r.MemberNames); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// CreateRoomWithMembers creates a room and its initial memberships in one
// transaction so a half-created room is never observable.
func (d *DB) CreateRoomWithMembers(ctx context.Context, arg CreateRoomParams, memberIDs []pgtype.UUID) (ChatRoom, error) {
	var room ChatRoom
	err := d.inTx(ctx, func(q *Queries) error {
		var err error
		room, err = q.CreateRoom(ctx, arg)
		if err != nil {
			return err
		}
		for _, userID := range memberIDs {
			err = q.AddMembership(ctx, AddMembershipParams{
				UserID:     userID,
				ChatRoomID: room.RoomID,
				JoinedAt:   arg.CreatedAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return room, err
}
