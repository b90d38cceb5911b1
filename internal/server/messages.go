package server

import (
	"time"
)

// Event types on the wire. Each frame is a self-contained JSON object
// discriminated by its "type" field.
const (
	TypeLogin       = "login"
	TypeAuth        = "auth"
	TypeRoomsList   = "rooms_list"
	TypeCreateRoom  = "create_room"
	TypeRoomCreated = "room_created"
	TypeJoin        = "join"
	TypeHistory     = "history"
	TypeChat        = "chat"
	TypeRenameRoom  = "rename_room"
	TypeDeleteRoom  = "delete_room"
	TypeRoomDeleted = "room_deleted"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SystemUser is the sender of relay-generated chat notices.
const SystemUser = "system"

// ClientEvent is an inbound frame. Only the fields relevant to the
// event's type are set.
type ClientEvent struct {
	Type     string `json:"type"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Room     string `json:"room,omitempty"`
	Text     string `json:"text,omitempty"`
	OldRoom  string `json:"oldRoom,omitempty"`
	NewRoom  string `json:"newRoom,omitempty"`
}

// ServerEvent is an outbound frame.
type ServerEvent struct {
	Type      string         `json:"type"`
	Status    string         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Rooms     []string       `json:"rooms,omitempty"`
	Room      string         `json:"room,omitempty"`
	Data      []HistoryEntry `json:"data,omitempty"`
	User      string         `json:"user,omitempty"`
	Text      string         `json:"text,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// HistoryEntry is one line of a room's replayed history.
type HistoryEntry struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func AuthSuccess() *ServerEvent {
	return &ServerEvent{
		Type:   TypeAuth,
		Status: StatusSuccess,
	}
}

func AuthError(message string) *ServerEvent {
	return &ServerEvent{
		Type:    TypeAuth,
		Status:  StatusError,
		Message: message,
	}
}

func RoomsList(rooms []string) *ServerEvent {
	return &ServerEvent{
		Type:  TypeRoomsList,
		Rooms: rooms,
	}
}

func RoomCreated(room string) *ServerEvent {
	return &ServerEvent{
		Type: TypeRoomCreated,
		Room: room,
	}
}

func RoomDeleted(room string) *ServerEvent {
	return &ServerEvent{
		Type: TypeRoomDeleted,
		Room: room,
	}
}

func History(entries []HistoryEntry) *ServerEvent {
	return &ServerEvent{
		Type: TypeHistory,
		Data: entries,
	}
}

func Chat(user, text string, ts time.Time) *ServerEvent {
	ts = ts.UTC()
	return &ServerEvent{
		Type:      TypeChat,
		User:      user,
		Text:      text,
		Timestamp: &ts,
	}
}

// SystemNotice is a chat event from the relay itself, used for admin
// kick notifications. It carries no timestamp.
func SystemNotice(text string) *ServerEvent {
	return &ServerEvent{
		Type: TypeChat,
		User: SystemUser,
		Text: text,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
