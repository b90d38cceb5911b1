package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/hyprchat/relay/internal/database"
)

var (
	ErrBadCredentials       = errors.New("incorrect password")
	ErrRegistrationClosed   = errors.New("registration closed by admin")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// AuthGate validates login requests against the store. Unknown
// usernames are registered on first login while the registration
// policy is open.
//
// Passwords are stored as bcrypt hashes. The system this replaces kept
// them in plaintext; the wire protocol is unchanged, only the stored
// form differs.
type AuthGate struct {
	store database.ChatStore

	// allowRegistration gates creation of new user rows only; it never
	// affects logins for existing users.
	allowRegistration atomic.Bool
}

func NewAuthGate(store database.ChatStore, registrationOpen bool) *AuthGate {
	g := &AuthGate{store: store}
	g.allowRegistration.Store(registrationOpen)
	return g
}

func (g *AuthGate) SetRegistrationOpen(open bool) {
	g.allowRegistration.Store(open)
}

func (g *AuthGate) RegistrationOpen() bool {
	return g.allowRegistration.Load()
}

// Login authenticates username/password, creating the account if it
// does not exist and registration is open. Returns the stored user on
// success.
func (g *AuthGate) Login(ctx context.Context, username, password string) (database.User, error) {
	user, err := g.store.GetUser(ctx, username)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return database.User{}, fmt.Errorf("get user: %w", err)
		}

		if !g.allowRegistration.Load() {
			return database.User{}, ErrRegistrationClosed
		}

		hash, err := hashPassword(password)
		if err != nil {
			return database.User{}, fmt.Errorf("hash password: %w", err)
		}

		if err := g.store.CreateUser(ctx, username, hash); err != nil {
			return database.User{}, fmt.Errorf("create user: %w", err)
		}

		return database.User{Username: username, Password: hash}, nil
	}

	if !verifyPassword(user.Password, password) {
		return database.User{}, ErrBadCredentials
	}

	return user, nil
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
