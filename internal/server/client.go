package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live connection. Session state (username, current
// room) lives here, never on the transport handle; the registry owns
// the set of clients.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once

	mu       sync.RWMutex
	username string
	room     string
}

func NewClient(id string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

// Username returns the authenticated identity, or "" before login.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// setUsername binds the identity for the life of the connection. It
// returns false if an identity is already bound.
func (c *Client) setUsername(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.username != "" {
		return false
	}
	c.username = name
	return true
}

// Room returns the connection's current room, or "" before any join.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

// migrateRoom swaps the current room from old to new. Used when a room
// the client is sitting in gets renamed.
func (c *Client) migrateRoom(old, new string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != old {
		return false
	}
	c.room = new
	return true
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("conn %s: write exiting", c.id)
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeEvent(event) {
				return
			}
		case <-c.stop:
			// Flush anything already queued (e.g. a kick notice) before
			// closing the transport.
			for {
				select {
				case event := <-c.send:
					if !c.writeEvent(event) {
						return
					}
				default:
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeEvent(event *ServerEvent) bool {
	bytes, err := json.Marshal(event)
	if err != nil {
		c.log.Println("failed to serialize event:", err)
		return true
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("conn %s: write: %v", c.id, err)
		}
		return false
	}

	return true
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("conn %s: read exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("conn %s: read: %v", c.id, err)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			// Malformed input is dropped; the connection stays open.
			c.log.Printf("conn %s: malformed event: %v", c.id, err)
			continue
		}

		c.chatServer.dispatch(c, &event)
	}
}

// queueEvent delivers an event to this connection's send queue. A full
// queue drops the event rather than blocking the sender.
func (c *Client) queueEvent(event *ServerEvent) bool {
	select {
	case c.send <- event:
	default:
		c.log.Printf("conn %s: send queue full, dropping event", c.id)
		return false
	}

	return true
}

// Kick queues a system notice and closes the connection.
func (c *Client) Kick(notice string) {
	c.queueEvent(SystemNotice(notice))
	c.stopClient()
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.removeClient(c)
	c.stopClient()
}
