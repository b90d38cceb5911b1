package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PgChatStore is the Postgres-backed ChatStore.
type PgChatStore struct {
	conn *sql.DB
}

func NewPgChatStore(dsn string) (*PgChatStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatStore{conn: db}, nil
}

func (db *PgChatStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	room TEXT NOT NULL,
	"user" TEXT NOT NULL,
	text TEXT NOT NULL,
	"timestamp" TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (db *PgChatStore) Bootstrap(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	for _, name := range SeedRooms {
		if err := db.UpsertRoom(ctx, name); err != nil {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
	}
	return nil
}

func (db *PgChatStore) GetUser(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT username, password FROM users WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(&u.Username, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *PgChatStore) CreateUser(ctx context.Context, username, password string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password) VALUES ($1, $2)",
		username,
		password,
	)

	return err
}

func (db *PgChatStore) DeleteUser(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM users WHERE username = $1",
		username,
	)

	return err
}

func (db *PgChatStore) ListUsernames(ctx context.Context) ([]string, error) {
	return db.listStrings(ctx, "SELECT username FROM users ORDER BY username")
}

func (db *PgChatStore) ListRooms(ctx context.Context) ([]string, error) {
	return db.listStrings(ctx, "SELECT name FROM rooms ORDER BY name")
}

func (db *PgChatStore) listStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names = make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

func (db *PgChatStore) UpsertRoom(ctx context.Context, name string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO rooms (name) VALUES ($1) ON CONFLICT (name) DO NOTHING",
		name,
	)

	return err
}

// RenameRoom updates the room row and reassigns its messages in a
// single transaction, so history never references a room name that no
// longer exists.
func (db *PgChatStore) RenameRoom(ctx context.Context, oldName, newName string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, "UPDATE rooms SET name = $1 WHERE name = $2", newName, oldName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE messages SET room = $1 WHERE room = $2`, newName, oldName)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// DeleteRoom removes the room row and cascades to its messages in a
// single transaction.
func (db *PgChatStore) DeleteRoom(ctx context.Context, name string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE name = $1", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room = $1", name)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func (db *PgChatStore) AppendMessage(ctx context.Context, room, user, text string, ts time.Time) (int64, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO messages (room, "user", text, "timestamp") VALUES ($1, $2, $3, $4) RETURNING id`,
		room,
		user,
		text,
		ts,
	)

	var id int64
	err := row.Scan(&id)
	return id, err
}

func (db *PgChatStore) DeleteMessagesInRoom(ctx context.Context, room string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE room = $1", room)
	return err
}

func (db *PgChatStore) ReassignMessages(ctx context.Context, oldRoom, newRoom string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET room = $1 WHERE room = $2",
		newRoom,
		oldRoom,
	)

	return err
}

func (db *PgChatStore) GetHistory(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, room, "user", text, "timestamp" FROM messages `+
			`WHERE room = $1 ORDER BY "timestamp" ASC, id ASC LIMIT $2`,
		room,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.Room, &msg.User, &msg.Text, &msg.Timestamp); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
