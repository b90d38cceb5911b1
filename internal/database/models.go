package database

import "time"

// User is a chat account. Password holds a bcrypt hash of the
// credential supplied at registration.
type User struct {
	Username string
	Password string
}

// Message is a single durable chat line. Id is assigned by the store
// and is the authoritative ordering key within a room.
type Message struct {
	Id        int64
	Room      string
	User      string
	Text      string
	Timestamp time.Time
}
