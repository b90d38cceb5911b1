package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hyprchat/relay/internal/database"
	"github.com/hyprchat/relay/internal/stats"
	"github.com/hyprchat/relay/internal/testutil"
)

func newTestChatServer(t *testing.T, db database.ChatStore) *ChatServer {
	t.Helper()

	cs, err := NewChatServer(testutil.TestLogger(t), db, stats.NewRelaxedMock(), Options{RegistrationOpen: true})
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// addFakeClient registers a connection without a transport; events land
// in its buffered send queue.
func addFakeClient(cs *ChatServer, id, username, room string) *Client {
	c := NewClient(id, nil, cs, cs.log)
	c.username = username
	c.room = room
	cs.RegisterClient(c)
	return c
}

func recvEvent(t *testing.T, c *Client) *ServerEvent {
	t.Helper()
	select {
	case event := <-c.send:
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("conn %s: expected an event, got none", c.id)
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case event := <-c.send:
		t.Fatalf("conn %s: expected no event, got %q", c.id, event.Type)
	default:
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockChatStore{}
	su := &stats.MockStatsProvider{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return().Times(3)

	cs, err := NewChatServer(testutil.TestLogger(t), db, su, Options{})
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs.registry, "expected registry to be initialized")
	assert.NotNil(t, cs.auth, "expected auth gate to be initialized")
	assert.NotNil(t, cs.rooms, "expected room manager to be initialized")
	assert.Equal(t, database.DefaultHistoryLimit, cs.historyLimit, "expected default history limit")
	assert.Equal(t, defaultOpTimeout, cs.opTimeout, "expected default op timeout")

	for _, typ := range []string{TypeLogin, TypeCreateRoom, TypeJoin, TypeChat, TypeRenameRoom, TypeDeleteRoom} {
		assert.Contains(t, cs.handlers, typ, "expected handler for %q", typ)
	}
}

func TestBroadcastRoomPartition(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})

	alice := addFakeClient(cs, "c1", "alice", "general")
	bob := addFakeClient(cs, "c2", "bob", "general")
	carol := addFakeClient(cs, "c3", "carol", "dev")
	anon := addFakeClient(cs, "c4", "", "")

	event := Chat("alice", "hi", Now())
	cs.BroadcastRoom("general", event)

	assert.Equal(t, event, recvEvent(t, alice))
	assert.Equal(t, event, recvEvent(t, bob))
	assertNoEvent(t, carol)
	assertNoEvent(t, anon)
}

func TestBroadcastAll(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})

	alice := addFakeClient(cs, "c1", "alice", "general")
	anon := addFakeClient(cs, "c2", "", "")

	event := RoomCreated("ops")
	cs.BroadcastAll(event)

	assert.Equal(t, event, recvEvent(t, alice))
	assert.Equal(t, event, recvEvent(t, anon), "unauthenticated connections still receive announcements")
}

func TestBroadcastSkipsFullQueue(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})

	stuck := NewClient("stuck", nil, cs, cs.log)
	stuck.username = "alice"
	stuck.room = "general"
	stuck.send = make(chan *ServerEvent) // unbuffered and never drained
	cs.RegisterClient(stuck)

	healthy := addFakeClient(cs, "ok", "bob", "general")

	event := Chat("bob", "hello", Now())
	cs.BroadcastRoom("general", event)

	assert.Equal(t, event, recvEvent(t, healthy), "one dead connection must not abort delivery to the rest")
}

func TestSendChatAppendsBeforeBroadcast(t *testing.T) {
	db := &database.MockChatStore{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db)
	alice := addFakeClient(cs, "c1", "alice", "general")
	bob := addFakeClient(cs, "c2", "bob", "general")

	appended := false
	db.On("AppendMessage", mock.Anything, "general", "alice", "hi", mock.Anything).
		Run(func(args mock.Arguments) {
			assertNoEvent(t, bob) // nothing may be delivered until the append is durable
			appended = true
		}).
		Return(int64(7), nil)

	msg, err := cs.SendChat(alice, "general", "hi")
	assert.NoError(t, err)
	assert.True(t, appended, "expected append to have run")
	assert.Equal(t, int64(7), msg.Id, "expected store-assigned id")

	event := recvEvent(t, bob)
	assert.Equal(t, TypeChat, event.Type)
	assert.Equal(t, "alice", event.User)
	assert.Equal(t, "hi", event.Text)
	assert.NotNil(t, event.Timestamp, "relayed chat must carry the timestamp")

	// the sender is in the room too
	assert.Equal(t, event, recvEvent(t, alice))
}

func TestSendChatPersistenceFailure(t *testing.T) {
	db := &database.MockChatStore{}
	db.On("AppendMessage", mock.Anything, "general", "alice", "hi", mock.Anything).
		Return(int64(0), errors.New("disk full"))

	cs := newTestChatServer(t, db)
	alice := addFakeClient(cs, "c1", "alice", "general")

	_, err := cs.SendChat(alice, "general", "hi")
	assert.Error(t, err, "expected persistence failure surfaced")
	assertNoEvent(t, alice)
}

func TestJoinDeliversHistoryPrivately(t *testing.T) {
	db := &database.MockChatStore{}
	ts := Now()
	db.On("GetHistory", mock.Anything, "general", database.DefaultHistoryLimit).Return([]database.Message{
		{Id: 1, Room: "general", User: "alice", Text: "hi", Timestamp: ts},
	}, nil)

	cs := newTestChatServer(t, db)
	alice := addFakeClient(cs, "c1", "alice", "general")
	bob := addFakeClient(cs, "c2", "bob", "")

	cs.Join(bob, "general")
	assert.Equal(t, "general", bob.Room(), "expected current room set")

	event := recvEvent(t, bob)
	assert.Equal(t, TypeHistory, event.Type)
	assert.Equal(t, []HistoryEntry{{User: "alice", Text: "hi", Timestamp: ts}}, event.Data)

	// history replay is private to the joining connection
	assertNoEvent(t, alice)
}

func TestJoinHistoryFailure(t *testing.T) {
	db := &database.MockChatStore{}
	db.On("GetHistory", mock.Anything, "general", mock.Anything).
		Return([]database.Message{}, errors.New("timeout"))

	cs := newTestChatServer(t, db)
	bob := addFakeClient(cs, "c1", "bob", "")

	cs.Join(bob, "general")
	assert.Equal(t, "general", bob.Room(), "room is set even when the replay fails")
	assertNoEvent(t, bob)
}

func TestDispatchLogin(t *testing.T) {
	db := &database.MockChatStore{}
	db.On("GetUser", mock.Anything, "alice").Return(database.User{}, database.ErrNotFound)
	db.On("CreateUser", mock.Anything, "alice", mock.Anything).Return(nil)
	db.On("ListRooms", mock.Anything).Return([]string{"dev", "general"}, nil)

	cs := newTestChatServer(t, db)
	c := addFakeClient(cs, "c1", "", "")

	cs.dispatch(c, &ClientEvent{Type: TypeLogin, User: "alice", Password: "pw"})

	assert.Equal(t, "alice", c.Username(), "expected identity bound on success")

	event := recvEvent(t, c)
	assert.Equal(t, TypeAuth, event.Type)
	assert.Equal(t, StatusSuccess, event.Status)

	event = recvEvent(t, c)
	assert.Equal(t, TypeRoomsList, event.Type)
	assert.Equal(t, []string{"dev", "general"}, event.Rooms)
}

func TestDispatchLoginRejected(t *testing.T) {
	db := &database.MockChatStore{}
	db.On("GetUser", mock.Anything, "mallory").Return(database.User{}, database.ErrNotFound)

	cs := newTestChatServer(t, db)
	cs.SetRegistrationOpen(false)
	c := addFakeClient(cs, "c1", "", "")

	cs.dispatch(c, &ClientEvent{Type: TypeLogin, User: "mallory", Password: "pw"})

	assert.Equal(t, "", c.Username(), "expected no identity bound")
	event := recvEvent(t, c)
	assert.Equal(t, TypeAuth, event.Type)
	assert.Equal(t, StatusError, event.Status)
	assert.Equal(t, ErrRegistrationClosed.Error(), event.Message)

	db.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchSecondLogin(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})
	c := addFakeClient(cs, "c1", "alice", "general")

	cs.dispatch(c, &ClientEvent{Type: TypeLogin, User: "alice", Password: "pw"})

	event := recvEvent(t, c)
	assert.Equal(t, TypeAuth, event.Type)
	assert.Equal(t, StatusError, event.Status)
	assert.Equal(t, ErrAlreadyAuthenticated.Error(), event.Message)
	assert.Equal(t, "alice", c.Username(), "identity is immutable for the connection's life")
}

func TestDispatchRequiresAuthentication(t *testing.T) {
	db := &database.MockChatStore{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db)
	c := addFakeClient(cs, "c1", "", "")

	cs.dispatch(c, &ClientEvent{Type: TypeChat, Room: "general", Text: "hi"})
	cs.dispatch(c, &ClientEvent{Type: TypeJoin, Room: "general"})
	cs.dispatch(c, &ClientEvent{Type: TypeDeleteRoom, Room: "general"})

	assertNoEvent(t, c)
	db.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "GetHistory", mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "DeleteRoom", mock.Anything, mock.Anything)
}

func TestDispatchUnknownType(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})
	c := addFakeClient(cs, "c1", "alice", "general")

	cs.dispatch(c, &ClientEvent{Type: "teleport"})
	assertNoEvent(t, c)
}

func TestDispatchChatUsesCurrentRoom(t *testing.T) {
	db := &database.MockChatStore{}
	defer db.AssertExpectations(t)
	db.On("AppendMessage", mock.Anything, "dev", "alice", "hi", mock.Anything).Return(int64(1), nil)

	cs := newTestChatServer(t, db)
	c := addFakeClient(cs, "c1", "alice", "dev")

	// no room on the frame: fall back to the connection's current room
	cs.dispatch(c, &ClientEvent{Type: TypeChat, Text: "hi"})

	event := recvEvent(t, c)
	assert.Equal(t, TypeChat, event.Type)
}

func TestKick(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})

	alice := addFakeClient(cs, "c1", "alice", "general")
	bob := addFakeClient(cs, "c2", "bob", "general")

	assert.True(t, cs.Kick("alice"), "expected a connection kicked")

	event := recvEvent(t, alice)
	assert.Equal(t, TypeChat, event.Type)
	assert.Equal(t, SystemUser, event.User, "expected a system notice before the close")

	select {
	case <-alice.stop:
		// connection told to stop
	default:
		t.Error("expected kicked connection's stop channel closed")
	}

	assertNoEvent(t, bob)
	assert.False(t, cs.Kick("carol"), "expected false for a user with no connection")
}

func TestShutdownStopsAllClients(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatStore{})

	a := addFakeClient(cs, "c1", "alice", "general")
	b := addFakeClient(cs, "c2", "", "")

	assert.NoError(t, cs.Shutdown(context.Background()))

	for _, c := range []*Client{a, b} {
		select {
		case <-c.stop:
		default:
			t.Errorf("conn %s: expected stop channel closed", c.id)
		}
	}
}
