package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) Bootstrap(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChatStore) GetUser(ctx context.Context, username string) (User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockChatStore) CreateUser(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *MockChatStore) DeleteUser(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *MockChatStore) ListUsernames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChatStore) ListRooms(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockChatStore) UpsertRoom(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockChatStore) RenameRoom(ctx context.Context, oldName, newName string) error {
	args := m.Called(ctx, oldName, newName)
	return args.Error(0)
}

func (m *MockChatStore) DeleteRoom(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockChatStore) AppendMessage(ctx context.Context, room, user, text string, ts time.Time) (int64, error) {
	args := m.Called(ctx, room, user, text, ts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatStore) DeleteMessagesInRoom(ctx context.Context, room string) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockChatStore) ReassignMessages(ctx context.Context, oldRoom, newRoom string) error {
	args := m.Called(ctx, oldRoom, newRoom)
	return args.Error(0)
}

func (m *MockChatStore) GetHistory(ctx context.Context, room string, limit int) ([]Message, error) {
	args := m.Called(ctx, room, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockChatStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
