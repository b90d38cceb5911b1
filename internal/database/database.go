package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user or room does not exist.
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit caps GetHistory when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// ChatStore is the durable persistence layer for users, rooms and
// messages. Implementations serialize conflicting writes internally
// (via transactions); they carry no relay logic of their own. All
// writes are durable before the call returns.
type ChatStore interface {
	Bootstrap(ctx context.Context) error

	GetUser(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, username, password string) error
	DeleteUser(ctx context.Context, username string) error
	ListUsernames(ctx context.Context) ([]string, error)

	ListRooms(ctx context.Context) ([]string, error)
	UpsertRoom(ctx context.Context, name string) error
	RenameRoom(ctx context.Context, oldName, newName string) error
	DeleteRoom(ctx context.Context, name string) error

	AppendMessage(ctx context.Context, room, user, text string, ts time.Time) (int64, error)
	DeleteMessagesInRoom(ctx context.Context, room string) error
	ReassignMessages(ctx context.Context, oldRoom, newRoom string) error
	GetHistory(ctx context.Context, room string, limit int) ([]Message, error)

	Close() error
}

// SeedRooms are created at bootstrap if absent. The first two are also
// the rooms the relay refuses to rename or delete.
var SeedRooms = []string{"general", "dev"}
