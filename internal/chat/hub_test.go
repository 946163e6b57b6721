package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Etchbanna/Kallemny-Production/internal/database"
	"github.com/Etchbanna/Kallemny-Production/internal/model"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	mu          sync.Mutex
	memberships map[uuid.UUID][]uuid.UUID // userID -> roomIDs
	messages    []database.Message
	unread      []database.Message
	markedRead  []pgtype.UUID
	online      map[uuid.UUID]bool

	failSetOnline     bool
	failCreateMessage bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memberships: make(map[uuid.UUID][]uuid.UUID),
		online:      make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) addMembership(userID, roomID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[userID] = append(f.memberships[userID], roomID)
}

func (f *fakeStore) GetMembershipsForUser(_ context.Context, userID pgtype.UUID) ([]pgtype.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rooms []pgtype.UUID
	for _, roomID := range f.memberships[uuid.UUID(userID.Bytes)] {
		rooms = append(rooms, pgtype.UUID{Bytes: roomID, Valid: true})
	}
	return rooms, nil
}

func (f *fakeStore) IsMember(_ context.Context, arg database.IsMemberParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, roomID := range f.memberships[uuid.UUID(arg.UserID.Bytes)] {
		if roomID == uuid.UUID(arg.ChatRoomID.Bytes) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, arg database.CreateMessageParams) (database.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateMessage {
		return database.Message{}, errors.New("store down")
	}
	msg := database.Message{
		MessageID:  arg.MessageID,
		ChatRoomID: arg.ChatRoomID,
		SenderID:   arg.SenderID,
		Content:    arg.Content,
		SentAt:     arg.SentAt,
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) GetUnreadMessages(_ context.Context, arg database.GetUnreadMessagesParams) ([]database.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Message
	for _, m := range f.unread {
		if m.ChatRoomID == arg.ChatRoomID && m.SenderID != arg.ExcludeSender {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkMessagesRead(_ context.Context, messageIDs []pgtype.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, messageIDs...)
	return nil
}

func (f *fakeStore) SetUserOnline(_ context.Context, arg database.SetUserOnlineParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetOnline {
		return errors.New("store down")
	}
	f.online[uuid.UUID(arg.UserID.Bytes)] = arg.IsOnline
	return nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// loopbackPublisher feeds published events straight back into the hub's
// delivery channel, standing in for the broker round trip.
type loopbackPublisher struct {
	deliver chan model.Event
}

func (p *loopbackPublisher) Publish(_ context.Context, evt model.Event) error {
	p.deliver <- evt
	return nil
}

func newTestHub(t *testing.T, db Store) *Hub {
	t.Helper()
	lb := &loopbackPublisher{}
	hub := NewHub(db, lb, slog.Default(), 64)
	lb.deliver = hub.Delivered

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, userID uuid.UUID, username string) *Client {
	t.Helper()
	c := NewClient(nil, hub, userID, username, 16)
	require.NoError(t, hub.Connect(context.Background(), c))
	return c
}

func waitEvent(t *testing.T, c *Client) model.Event {
	t.Helper()
	select {
	case evt := <-c.Outbox:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

// waitEventNamed discards events until one with the given name arrives. A
// freshly attached connection can still see events published just before it
// connected (the delivery loop drains asynchronously), so tests that span a
// reconnect select by name instead of assuming a clean outbox.
func waitEventNamed(t *testing.T, c *Client, name string) model.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-c.Outbox:
			if evt.Name == name {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
			return model.Event{}
		}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case evt := <-c.Outbox:
		t.Fatalf("unexpected event %q", evt.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPresenceEdges(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	alice := uuid.New()
	observer := connect(t, hub, uuid.New(), "observer")
	waitEvent(t, observer) // observer's own UserOnline

	c1 := connect(t, hub, alice, "alice")
	evt := waitEvent(t, observer)
	assert.Equal(t, model.EventUserOnline, evt.Name)

	var presence model.UserPresence
	require.NoError(t, json.Unmarshal(evt.Data, &presence))
	assert.Equal(t, alice, presence.UserID)
	assert.True(t, presence.IsOnline)
	assert.True(t, hub.IsOnline(alice))

	// A second connection fires no second online event.
	c2 := connect(t, hub, alice, "alice")
	assertNoEvent(t, observer)

	// Dropping one of two connections fires nothing.
	hub.Disconnect(context.Background(), c1)
	assertNoEvent(t, observer)
	assert.True(t, hub.IsOnline(alice))

	// Dropping the last one fires UserOffline.
	hub.Disconnect(context.Background(), c2)
	evt = waitEvent(t, observer)
	assert.Equal(t, model.EventUserOffline, evt.Name)
	assert.False(t, hub.IsOnline(alice))

	db.mu.Lock()
	assert.False(t, db.online[alice])
	db.mu.Unlock()
}

func TestPresenceStoreFailureSkipsBroadcast(t *testing.T) {
	db := newFakeStore()
	db.failSetOnline = true
	hub := newTestHub(t, db)

	c := connect(t, hub, uuid.New(), "alice")
	assertNoEvent(t, c)
}

func TestSendMessage(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID, bobID := uuid.New(), uuid.New()
	db.addMembership(aliceID, room)
	db.addMembership(bobID, room)

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice) // own UserOnline
	bob := connect(t, hub, bobID, "bob")
	waitEvent(t, alice) // bob's UserOnline
	waitEvent(t, bob)   // own UserOnline

	require.NoError(t, hub.SendMessage(context.Background(), alice, room, "hello <b>bob</b>"))

	// The whole room group receives it, the sender included.
	for _, c := range []*Client{alice, bob} {
		evt := waitEvent(t, c)
		assert.Equal(t, model.EventReceiveMessage, evt.Name)

		var msg model.MessageResponse
		require.NoError(t, json.Unmarshal(evt.Data, &msg))
		assert.Equal(t, aliceID, msg.SenderID)
		assert.Equal(t, "alice", msg.SenderUsername)
		assert.Equal(t, room, msg.ChatRoomID)
		// Markup is stripped before persisting.
		assert.Equal(t, "hello bob", msg.Content)
	}
	assert.Equal(t, 1, db.messageCount())
}

func TestSendMessageNonMember(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	memberID := uuid.New()
	db.addMembership(memberID, room)

	member := connect(t, hub, memberID, "member")
	waitEvent(t, member)
	outsider := connect(t, hub, uuid.New(), "outsider")
	waitEvent(t, member) // outsider's UserOnline
	waitEvent(t, outsider)

	err := hub.SendMessage(context.Background(), outsider, room, "let me in")
	assert.ErrorIs(t, err, ErrNotAMember)

	// Nothing persisted, nothing broadcast.
	assert.Equal(t, 0, db.messageCount())
	assertNoEvent(t, member)
}

func TestSendMessageStoreFailure(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID := uuid.New()
	db.addMembership(aliceID, room)

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice)

	db.mu.Lock()
	db.failCreateMessage = true
	db.mu.Unlock()

	err := hub.SendMessage(context.Background(), alice, room, "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAMember)
	assertNoEvent(t, alice)
}

func TestTypingIndicatorExcludesTypist(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID, bobID := uuid.New(), uuid.New()
	db.addMembership(aliceID, room)
	db.addMembership(bobID, room)

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice)
	bob := connect(t, hub, bobID, "bob")
	waitEvent(t, alice)
	waitEvent(t, bob)

	require.NoError(t, hub.SendTypingIndicator(context.Background(), alice, room, true))

	evt := waitEvent(t, bob)
	assert.Equal(t, model.EventUserTyping, evt.Name)

	var ti model.TypingIndicator
	require.NoError(t, json.Unmarshal(evt.Data, &ti))
	assert.Equal(t, aliceID, ti.UserID)
	assert.True(t, ti.IsTyping)

	assertNoEvent(t, alice)
}

func TestTypingIndicatorNonMemberIsSilent(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	memberID := uuid.New()
	db.addMembership(memberID, room)

	member := connect(t, hub, memberID, "member")
	waitEvent(t, member)
	outsider := connect(t, hub, uuid.New(), "outsider")
	waitEvent(t, member)
	waitEvent(t, outsider)

	require.NoError(t, hub.SendTypingIndicator(context.Background(), outsider, room, true))
	assertNoEvent(t, member)
}

func TestMarkMessagesAsRead(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID, bobID := uuid.New(), uuid.New()
	db.addMembership(aliceID, room)
	db.addMembership(bobID, room)

	// Two unread from bob, one unread authored by alice herself.
	fromBob1 := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	fromBob2 := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	fromAlice := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	db.unread = []database.Message{
		{MessageID: fromBob1, ChatRoomID: pgtype.UUID{Bytes: room, Valid: true}, SenderID: pgtype.UUID{Bytes: bobID, Valid: true}},
		{MessageID: fromBob2, ChatRoomID: pgtype.UUID{Bytes: room, Valid: true}, SenderID: pgtype.UUID{Bytes: bobID, Valid: true}},
		{MessageID: fromAlice, ChatRoomID: pgtype.UUID{Bytes: room, Valid: true}, SenderID: pgtype.UUID{Bytes: aliceID, Valid: true}},
	}

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice)
	bob := connect(t, hub, bobID, "bob")
	waitEvent(t, alice)
	waitEvent(t, bob)

	require.NoError(t, hub.MarkMessagesAsRead(context.Background(), alice, room))

	// Only bob's messages flip; alice cannot mark her own read.
	db.mu.Lock()
	assert.ElementsMatch(t, []pgtype.UUID{fromBob1, fromBob2}, db.markedRead)
	db.mu.Unlock()

	evt := waitEvent(t, bob)
	assert.Equal(t, model.EventMessagesRead, evt.Name)

	var receipt model.ReadReceipt
	require.NoError(t, json.Unmarshal(evt.Data, &receipt))
	assert.Equal(t, aliceID, receipt.UserID)
	assert.Equal(t, room, receipt.ChatRoomID)

	// The reader's own connection does not get the receipt back.
	assertNoEvent(t, alice)
}

func TestMarkMessagesAsReadNothingUnread(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID, bobID := uuid.New(), uuid.New()
	db.addMembership(aliceID, room)
	db.addMembership(bobID, room)

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice)
	bob := connect(t, hub, bobID, "bob")
	waitEvent(t, alice)
	waitEvent(t, bob)

	require.NoError(t, hub.MarkMessagesAsRead(context.Background(), alice, room))

	// The receipt still goes out even with nothing to flip.
	evt := waitEvent(t, bob)
	assert.Equal(t, model.EventMessagesRead, evt.Name)
	db.mu.Lock()
	assert.Empty(t, db.markedRead)
	db.mu.Unlock()
}

func TestJoinAndLeaveChatRoom(t *testing.T) {
	db := newFakeStore()
	hub := newTestHub(t, db)

	room := uuid.New()
	aliceID, bobID := uuid.New(), uuid.New()
	db.addMembership(aliceID, room)

	alice := connect(t, hub, aliceID, "alice")
	waitEvent(t, alice)
	bob := connect(t, hub, bobID, "bob")
	waitEvent(t, alice)
	waitEvent(t, bob)

	// Non-member cannot join.
	assert.ErrorIs(t, hub.JoinChatRoom(context.Background(), bob, room), ErrNotAMember)

	// Membership granted later: join starts delivery.
	db.addMembership(bobID, room)
	require.NoError(t, hub.JoinChatRoom(context.Background(), bob, room))
	require.NoError(t, hub.SendMessage(context.Background(), alice, room, "hi"))
	waitEvent(t, alice)
	assert.Equal(t, model.EventReceiveMessage, waitEvent(t, bob).Name)

	// Leave drops delivery for this session only.
	hub.LeaveChatRoom(bob, room)
	require.NoError(t, hub.SendMessage(context.Background(), alice, room, "again"))
	waitEvent(t, alice)
	assertNoEvent(t, bob)

	// Membership survives: a reconnect re-subscribes. The new connection
	// may see bob's own UserOffline/UserOnline churn first.
	hub.Disconnect(context.Background(), bob)
	bob2 := connect(t, hub, bobID, "bob")
	waitEvent(t, alice) // offline + online presence churn
	waitEvent(t, alice)
	require.NoError(t, hub.SendMessage(context.Background(), alice, room, "back"))
	waitEvent(t, alice)

	evt := waitEventNamed(t, bob2, model.EventReceiveMessage)
	var msg model.MessageResponse
	require.NoError(t, json.Unmarshal(evt.Data, &msg))
	assert.Equal(t, "back", msg.Content)
}
