package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqliteTimeLayout is a fixed-width UTC layout so lexicographic ORDER BY
// on the timestamp column matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SqliteChatStore is the SQLite-backed ChatStore. The original system
// ran on a single SQLite file; this implementation keeps that option
// for local deployments and tests.
type SqliteChatStore struct {
	conn *sql.DB
}

func NewSqliteChatStore(path string) (*SqliteChatStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite supports a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &SqliteChatStore{conn: db}, nil
}

func (db *SqliteChatStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room TEXT NOT NULL,
	user TEXT NOT NULL,
	text TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
`

func (db *SqliteChatStore) Bootstrap(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	for _, name := range SeedRooms {
		if err := db.UpsertRoom(ctx, name); err != nil {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
	}
	return nil
}

func (db *SqliteChatStore) GetUser(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT username, password FROM users WHERE username = ? LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(&u.Username, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func (db *SqliteChatStore) CreateUser(ctx context.Context, username, password string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username,
		password,
	)

	return err
}

func (db *SqliteChatStore) DeleteUser(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM users WHERE username = ?",
		username,
	)

	return err
}

func (db *SqliteChatStore) ListUsernames(ctx context.Context) ([]string, error) {
	return db.listStrings(ctx, "SELECT username FROM users ORDER BY username")
}

func (db *SqliteChatStore) ListRooms(ctx context.Context) ([]string, error) {
	return db.listStrings(ctx, "SELECT name FROM rooms ORDER BY name")
}

func (db *SqliteChatStore) listStrings(ctx context.Context, query string) ([]string, error) {
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

func (db *SqliteChatStore) UpsertRoom(ctx context.Context, name string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO rooms (name) VALUES (?)",
		name,
	)

	return err
}

func (db *SqliteChatStore) RenameRoom(ctx context.Context, oldName, newName string) error {
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
	res, err = tx.ExecContext(ctx, "UPDATE rooms SET name = ? WHERE name = ?", newName, oldName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.ExecContext(ctx, "UPDATE messages SET room = ? WHERE room = ?", newName, oldName)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func (db *SqliteChatStore) DeleteRoom(ctx context.Context, name string) error {
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
	res, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room = ?", name)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func (db *SqliteChatStore) AppendMessage(ctx context.Context, room, user, text string, ts time.Time) (int64, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO messages (room, user, text, timestamp) VALUES (?, ?, ?, ?)",
		room,
		user,
		text,
		ts.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (db *SqliteChatStore) DeleteMessagesInRoom(ctx context.Context, room string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE room = ?", room)
	return err
}

func (db *SqliteChatStore) ReassignMessages(ctx context.Context, oldRoom, newRoom string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET room = ? WHERE room = ?",
		newRoom,
		oldRoom,
	)

	return err
}

func (db *SqliteChatStore) GetHistory(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, room, user, text, timestamp FROM messages "+
			"WHERE room = ? ORDER BY timestamp ASC, id ASC LIMIT ?",
		room,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var (
			msg Message
			ts  string
		)
		if err := rows.Scan(&msg.Id, &msg.Room, &msg.User, &msg.Text, &ts); err != nil {
			return nil, err
		}

		msg.Timestamp, err = time.Parse(sqliteTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
