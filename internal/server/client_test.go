package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyprchat/relay/internal/testutil"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient("test-conn", nil, nil, testutil.TestLogger(t))
}

func TestSetUsernameOnce(t *testing.T) {
	c := newTestClient(t)

	assert.Equal(t, "", c.Username())
	assert.True(t, c.setUsername("alice"))
	assert.Equal(t, "alice", c.Username())

	assert.False(t, c.setUsername("bob"), "identity must not be rebindable")
	assert.Equal(t, "alice", c.Username())
}

func TestMigrateRoom(t *testing.T) {
	c := newTestClient(t)
	c.setRoom("ops")

	assert.False(t, c.migrateRoom("dev", "devops"), "migration only applies to the named room")
	assert.Equal(t, "ops", c.Room())

	assert.True(t, c.migrateRoom("ops", "infra"))
	assert.Equal(t, "infra", c.Room())
}

func TestQueueEventDropsWhenFull(t *testing.T) {
	c := newTestClient(t)
	c.send = make(chan *ServerEvent, 2)

	assert.True(t, c.queueEvent(RoomCreated("a")))
	assert.True(t, c.queueEvent(RoomCreated("b")))
	assert.False(t, c.queueEvent(RoomCreated("c")), "a full queue drops instead of blocking")

	assert.Equal(t, RoomCreated("a"), <-c.send)
	assert.Equal(t, RoomCreated("b"), <-c.send)
	assert.Len(t, c.send, 0)
}

func TestStopClientIdempotent(t *testing.T) {
	c := newTestClient(t)

	c.stopClient()
	c.stopClient() // a second stop must not panic on the closed channel

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel closed")
	}
}

func TestKickQueuesNoticeThenStops(t *testing.T) {
	c := newTestClient(t)

	c.Kick("you are out")

	event := <-c.send
	assert.Equal(t, TypeChat, event.Type)
	assert.Equal(t, SystemUser, event.User)
	assert.Equal(t, "you are out", event.Text)

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel closed after kick")
	}
}
