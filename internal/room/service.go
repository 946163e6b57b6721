// Package room creates chat rooms and their initial memberships. Direct
// (two-member, non-group) rooms are unique per unordered user pair and are
// reused rather than duplicated.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/singleflight"

	"github.com/Etchbanna/Kallemny-Production/internal/database"
)

// Store is the slice of the durable store the room service consumes.
type Store interface {
	GetRoomByDirectKey(ctx context.Context, directKey pgtype.Text) (database.ChatRoom, error)
	CreateRoomWithMembers(ctx context.Context, arg database.CreateRoomParams, memberIDs []pgtype.UUID) (database.ChatRoom, error)
}

type Service struct {
	db  Store
	log *slog.Logger

	// direct collapses concurrent requests for the same unordered pair so
	// only one of them races the unique index.
	direct singleflight.Group
}

func NewService(db Store, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With(slog.String("component", "rooms")),
	}
}

// DirectKey normalizes an unordered user pair into the unique lookup key
// for their direct room.
func DirectKey(a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

// CreateOrGetDirect returns the direct room for {creator, other}, creating
// it together with both memberships if it does not exist yet. Concurrent
// calls for the same pair observe the same room: in-process calls collapse
// via singleflight, cross-process races bounce off the unique direct_key
// index and re-fetch.
func (s *Service) CreateOrGetDirect(ctx context.Context, creator, other uuid.UUID, name string) (database.ChatRoom, error) {
	key := DirectKey(creator, other)

	v, err, _ := s.direct.Do(key, func() (any, error) {
		directKey := pgtype.Text{String: key, Valid: true}

		existing, err := s.db.GetRoomByDirectKey(ctx, directKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room: direct room lookup failed: %w", err)
		}

		created, err := s.db.CreateRoomWithMembers(ctx, database.CreateRoomParams{
			RoomID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Name:      name,
			IsGroup:   false,
			CreatedBy: pgtype.UUID{Bytes: creator, Valid: true},
			CreatedAt: pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
			DirectKey: directKey,
		}, []pgtype.UUID{
			{Bytes: creator, Valid: true},
			{Bytes: other, Valid: true},
		})
		if err == nil {
			return created, nil
		}

		// Another process won the race; the room exists now.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			s.log.Debug("direct room already created elsewhere", "direct_key", key)
			return s.db.GetRoomByDirectKey(ctx, directKey)
		}
		return nil, fmt.Errorf("room: direct room creation failed: %w", err)
	})
	if err != nil {
		return database.ChatRoom{}, err
	}
	return v.(database.ChatRoom), nil
}

// CreateSolo creates a non-group room with the creator as its only member,
// for a non-group request that names no counterpart. No pair key exists, so
// no dedupe applies.
func (s *Service) CreateSolo(ctx context.Context, creator uuid.UUID, name string) (database.ChatRoom, error) {
	created, err := s.db.CreateRoomWithMembers(ctx, database.CreateRoomParams{
		RoomID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:      name,
		IsGroup:   false,
		CreatedBy: pgtype.UUID{Bytes: creator, Valid: true},
		CreatedAt: pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
	}, []pgtype.UUID{{Bytes: creator, Valid: true}})
	if err != nil {
		return database.ChatRoom{}, fmt.Errorf("room: room creation failed: %w", err)
	}
	return created, nil
}

// CreateGroup creates a group room with the creator and the invited users
// as members. The creator is always a member exactly once, even when
// listed among the invitees.
func (s *Service) CreateGroup(ctx context.Context, creator uuid.UUID, name string, memberIDs []uuid.UUID) (database.ChatRoom, error) {
	members := []pgtype.UUID{{Bytes: creator, Valid: true}}
	for _, id := range memberIDs {
		if id == creator {
			continue
		}
		members = append(members, pgtype.UUID{Bytes: id, Valid: true})
	}

	created, err := s.db.CreateRoomWithMembers(ctx, database.CreateRoomParams{
		RoomID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:      name,
		IsGroup:   true,
		CreatedBy: pgtype.UUID{Bytes: creator, Valid: true},
		CreatedAt: pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
	}, members)
	if err != nil {
		return database.ChatRoom{}, fmt.Errorf("room: group room creation failed: %w", err)
	}
	return created, nil
}
