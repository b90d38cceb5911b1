package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/hyprchat/relay/internal/database"
)

// ErrProtectedRoom is returned for rename/delete of a seed room. The
// system this replaces left that check to the client; the relay does
// not trust the UI, so it is enforced here.
var ErrProtectedRoom = errors.New("room is protected")

// broadcaster is the fan-out surface RoomManager needs; ChatServer
// implements it. Keeping it an interface lets room tests run against a
// recording fake.
type broadcaster interface {
	BroadcastAll(event *ServerEvent)
}

// RoomManager owns create/rename/delete. Rename and delete touch both
// the store and every affected live connection, then announce the
// change to all clients.
type RoomManager struct {
	store    database.ChatStore
	registry *Registry
	bc       broadcaster
	log      *log.Logger
}

func NewRoomManager(store database.ChatStore, registry *Registry, bc broadcaster, logger *log.Logger) *RoomManager {
	return &RoomManager{
		store:    store,
		registry: registry,
		bc:       bc,
		log:      logger,
	}
}

func protectedRoom(name string) bool {
	return slices.Contains(database.SeedRooms, name)
}

// Create upserts the room and announces it to every connection.
// Creating an existing room is a no-op upsert but is still announced.
func (rm *RoomManager) Create(ctx context.Context, name string) error {
	if err := rm.store.UpsertRoom(ctx, name); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	rm.bc.BroadcastAll(RoomCreated(name))
	return nil
}

// Rename moves the room row and its message history to the new name in
// one store transaction, migrates the current room of connections
// sitting in the old room, and announces the re-derived room list to
// everyone. Renaming a nonexistent room is a logged no-op.
func (rm *RoomManager) Rename(ctx context.Context, oldName, newName string) error {
	if protectedRoom(oldName) {
		return ErrProtectedRoom
	}
	if newName == "" || oldName == newName {
		return nil
	}

	if err := rm.store.RenameRoom(ctx, oldName, newName); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rm.log.Printf("rename: room %q not found", oldName)
			return nil
		}
		return fmt.Errorf("rename room: %w", err)
	}

	// Connections sitting in the old room would otherwise keep sending
	// under a name that no longer exists; move them along with the rows.
	rm.registry.ForEach(func(c *Client) {
		c.migrateRoom(oldName, newName)
	})

	rooms, err := rm.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	rm.bc.BroadcastAll(RoomsList(rooms))
	return nil
}

// Delete removes the room and its history, then announces the deletion
// to every connection. Connections currently in the room are not
// migrated; clients fall back to the default room on their own.
// Deleting a nonexistent room is a logged no-op.
func (rm *RoomManager) Delete(ctx context.Context, name string) error {
	if protectedRoom(name) {
		return ErrProtectedRoom
	}

	if err := rm.store.DeleteRoom(ctx, name); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rm.log.Printf("delete: room %q not found", name)
			return nil
		}
		return fmt.Errorf("delete room: %w", err)
	}

	rm.bc.BroadcastAll(RoomDeleted(name))
	return nil
}
