package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/hyprchat/relay/internal/database"
	"github.com/hyprchat/relay/internal/stats"
)

const (
	defaultOpTimeout = 5 * time.Second

	metricActiveConnections = "ActiveConnections"
	metricMessagesRelayed   = "MessagesRelayed"
	metricKickedClients     = "KickedClients"
)

type handlerFunc func(*Client, *ClientEvent)

// Options tune the relay; zero values get sensible defaults.
type Options struct {
	RegistrationOpen bool
	HistoryLimit     int
	// OpTimeout bounds each store operation so a stalled database
	// cannot stall a connection forever.
	OpTimeout time.Duration
}

// ChatServer routes chat events between connections and the store. It
// owns the registry, the auth gate and the room manager, and is the
// broadcast engine for both.
type ChatServer struct {
	log      *log.Logger
	store    database.ChatStore
	registry *Registry
	auth     *AuthGate
	rooms    *RoomManager
	stats    stats.StatsProvider

	handlers     map[string]handlerFunc
	historyLimit int
	opTimeout    time.Duration
}

func NewChatServer(logger *log.Logger, store database.ChatStore, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = database.DefaultHistoryLimit
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}

	cs := &ChatServer{
		log:          logger,
		store:        store,
		registry:     NewRegistry(),
		auth:         NewAuthGate(store, opts.RegistrationOpen),
		stats:        su,
		historyLimit: opts.HistoryLimit,
		opTimeout:    opts.OpTimeout,
	}
	cs.rooms = NewRoomManager(store, cs.registry, cs, logger)

	cs.handlers = map[string]handlerFunc{
		TypeLogin:      cs.handleLogin,
		TypeCreateRoom: cs.handleCreateRoom,
		TypeJoin:       cs.handleJoin,
		TypeChat:       cs.handleChat,
		TypeRenameRoom: cs.handleRenameRoom,
		TypeDeleteRoom: cs.handleDeleteRoom,
	}

	for _, name := range []string{metricActiveConnections, metricMessagesRelayed, metricKickedClients} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Registry() *Registry {
	return cs.registry
}

func (cs *ChatServer) Rooms() *RoomManager {
	return cs.rooms
}

func (cs *ChatServer) SetRegistrationOpen(open bool) {
	cs.auth.SetRegistrationOpen(open)
}

// OnlineUsernames lists the distinct authenticated users with a live
// connection.
func (cs *ChatServer) OnlineUsernames() []string {
	return cs.registry.ListOnlineUsernames()
}

func (cs *ChatServer) RegistrationOpen() bool {
	return cs.auth.RegistrationOpen()
}

// opCtx bounds a store operation. A timeout surfaces as a persistence
// failure on that one action, not a stuck connection.
func (cs *ChatServer) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cs.opTimeout)
}

// RegisterClient adds a freshly upgraded connection to the registry.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registry.Add(c)
	cs.stats.Incr(metricActiveConnections)
	cs.log.Printf("conn %s: registered", c.id)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.registry.Remove(c)
	cs.stats.Decr(metricActiveConnections)
	cs.log.Printf("conn %s: removed", c.id)
}

// dispatch routes one inbound event. Unknown types are dropped and
// logged; non-login events from unauthenticated connections likewise.
func (cs *ChatServer) dispatch(c *Client, event *ClientEvent) {
	handler, ok := cs.handlers[event.Type]
	if !ok {
		cs.log.Printf("conn %s: unknown event type %q", c.id, event.Type)
		return
	}

	if event.Type != TypeLogin && c.Username() == "" {
		cs.log.Printf("conn %s: dropping %q from unauthenticated connection", c.id, event.Type)
		return
	}

	handler(c, event)
}

func (cs *ChatServer) handleLogin(c *Client, event *ClientEvent) {
	if c.Username() != "" {
		c.queueEvent(AuthError(ErrAlreadyAuthenticated.Error()))
		return
	}

	ctx, cancel := cs.opCtx()
	defer cancel()

	user, err := cs.auth.Login(ctx, event.User, event.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRegistrationClosed), errors.Is(err, ErrBadCredentials):
			c.queueEvent(AuthError(err.Error()))
		default:
			cs.log.Printf("conn %s: login: %v", c.id, err)
			c.queueEvent(AuthError("login failed"))
		}
		return
	}

	if !c.setUsername(user.Username) {
		c.queueEvent(AuthError(ErrAlreadyAuthenticated.Error()))
		return
	}

	cs.log.Printf("conn %s: authenticated as %q", c.id, user.Username)
	c.queueEvent(AuthSuccess())

	rooms, err := cs.store.ListRooms(ctx)
	if err != nil {
		cs.log.Printf("conn %s: list rooms: %v", c.id, err)
		return
	}
	c.queueEvent(RoomsList(rooms))
}

func (cs *ChatServer) handleCreateRoom(c *Client, event *ClientEvent) {
	if event.Room == "" {
		return
	}

	ctx, cancel := cs.opCtx()
	defer cancel()

	if err := cs.rooms.Create(ctx, event.Room); err != nil {
		cs.log.Printf("conn %s: create room %q: %v", c.id, event.Room, err)
	}
}

func (cs *ChatServer) handleJoin(c *Client, event *ClientEvent) {
	if event.Room == "" {
		return
	}

	cs.Join(c, event.Room)
}

func (cs *ChatServer) handleChat(c *Client, event *ClientEvent) {
	room := event.Room
	if room == "" {
		room = c.Room()
	}
	if room == "" || event.Text == "" {
		return
	}

	if _, err := cs.SendChat(c, room, event.Text); err != nil {
		cs.log.Printf("conn %s: send chat: %v", c.id, err)
	}
}

func (cs *ChatServer) handleRenameRoom(c *Client, event *ClientEvent) {
	ctx, cancel := cs.opCtx()
	defer cancel()

	if err := cs.rooms.Rename(ctx, event.OldRoom, event.NewRoom); err != nil {
		cs.log.Printf("conn %s: rename room %q -> %q: %v", c.id, event.OldRoom, event.NewRoom, err)
	}
}

func (cs *ChatServer) handleDeleteRoom(c *Client, event *ClientEvent) {
	ctx, cancel := cs.opCtx()
	defer cancel()

	if err := cs.rooms.Delete(ctx, event.Room); err != nil {
		cs.log.Printf("conn %s: delete room %q: %v", c.id, event.Room, err)
	}
}

// BroadcastAll delivers an event to every connection. Delivery is best
// effort per connection; one full or dead client never aborts the rest.
func (cs *ChatServer) BroadcastAll(event *ServerEvent) {
	cs.registry.ForEach(func(c *Client) {
		c.queueEvent(event)
	})
}

// BroadcastRoom delivers an event to every connection whose current
// room matches.
func (cs *ChatServer) BroadcastRoom(room string, event *ServerEvent) {
	cs.registry.ForEach(func(c *Client) {
		if c.Room() == room {
			c.queueEvent(event)
		}
	})
}

// SendChat appends the message durably, then fans it out to the room.
// The append completes before the broadcast is issued, so a history
// fetch immediately after delivery includes the message just seen.
func (cs *ChatServer) SendChat(c *Client, room, text string) (database.Message, error) {
	ctx, cancel := cs.opCtx()
	defer cancel()

	user := c.Username()
	ts := Now()

	id, err := cs.store.AppendMessage(ctx, room, user, text, ts)
	if err != nil {
		return database.Message{}, err
	}

	cs.stats.Incr(metricMessagesRelayed)
	cs.BroadcastRoom(room, Chat(user, text, ts))

	return database.Message{
		Id:        id,
		Room:      room,
		User:      user,
		Text:      text,
		Timestamp: ts,
	}, nil
}

// Join sets the connection's current room and replays that room's
// history privately to it. History is never broadcast.
func (cs *ChatServer) Join(c *Client, room string) {
	c.setRoom(room)

	ctx, cancel := cs.opCtx()
	defer cancel()

	messages, err := cs.store.GetHistory(ctx, room, cs.historyLimit)
	if err != nil {
		cs.log.Printf("conn %s: history for %q: %v", c.id, room, err)
		return
	}

	entries := make([]HistoryEntry, len(messages))
	for i, msg := range messages {
		entries[i] = HistoryEntry{
			User:      msg.User,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		}
	}

	c.queueEvent(History(entries))
}

// Kick notifies every connection authenticated as username and closes
// it. Returns whether any connection was kicked.
func (cs *ChatServer) Kick(username string) bool {
	kicked := false
	cs.registry.ForEach(func(c *Client) {
		if c.Username() == username {
			c.Kick("You have been disconnected by the administrator.")
			kicked = true
		}
	})

	if kicked {
		cs.stats.Incr(metricKickedClients)
	}
	return kicked
}

// Shutdown closes every live connection.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")
	cs.registry.ForEach(func(c *Client) {
		c.stopClient()
	})

	return ctx.Err()
}
