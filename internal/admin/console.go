// Package admin is the out-of-band operator control channel. Commands
// run against the same registry and store the relay uses, relying on
// their own synchronization, so they interleave safely with connection
// events.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/hyprchat/relay/internal/database"
)

// ErrExit is returned by Exec when the operator asks to shut down.
var ErrExit = errors.New("exit requested")

const clearScreen = "\x1b[2J\x1b[H"

// relay is the slice of the chat server the console drives.
type relay interface {
	Kick(username string) bool
	SetRegistrationOpen(open bool)
	RegistrationOpen() bool
	OnlineUsernames() []string
}

type Console struct {
	log       *log.Logger
	store     database.ChatStore
	cs        relay
	opTimeout time.Duration
}

func NewConsole(logger *log.Logger, store database.ChatStore, cs relay, opTimeout time.Duration) *Console {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Console{
		log:       logger,
		store:     store,
		cs:        cs,
		opTimeout: opTimeout,
	}
}

// Exec runs a single command line and returns the printable result.
// It is the whole command surface; Run is only a prompt around it.
func (c *Console) Exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	cmd := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	switch cmd {
	case "list":
		usernames, err := c.store.ListUsernames(ctx)
		if err != nil {
			return "", fmt.Errorf("list users: %w", err)
		}
		if len(usernames) == 0 {
			return "no registered users", nil
		}
		return strings.Join(usernames, "\n"), nil

	case "online":
		online := c.cs.OnlineUsernames()
		if len(online) == 0 {
			return "online: nobody", nil
		}
		return "online: " + strings.Join(online, ", "), nil

	case "reg":
		switch arg {
		case "on":
			c.cs.SetRegistrationOpen(true)
		case "off":
			c.cs.SetRegistrationOpen(false)
		case "":
			// fall through to report current state
		default:
			return "usage: reg on|off", nil
		}
		if c.cs.RegistrationOpen() {
			return "registration: open", nil
		}
		return "registration: closed", nil

	case "kick":
		if arg == "" {
			return "usage: kick <username>", nil
		}
		if c.cs.Kick(arg) {
			return fmt.Sprintf("%s has been kicked", arg), nil
		}
		return fmt.Sprintf("%s is not connected", arg), nil

	case "del":
		if arg == "" {
			return "usage: del <username>", nil
		}
		// Disconnect first so the user gets the notice, then drop the
		// account. Their historical messages stay.
		c.cs.Kick(arg)
		if err := c.store.DeleteUser(ctx, arg); err != nil {
			return "", fmt.Errorf("delete user: %w", err)
		}
		return fmt.Sprintf("%s has been deleted", arg), nil

	case "cls":
		return clearScreen, nil

	case "exit":
		return "", ErrExit

	default:
		return fmt.Sprintf("unknown command %q", cmd), nil
	}
}

// Run drives an interactive prompt until the operator exits or ctx is
// canceled. It returns nil on a clean exit request.
func (c *Console) Run(ctx context.Context, out io.Writer) error {
	rl := liner.NewLiner()
	defer rl.Close()
	rl.SetCtrlCAborts(true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := rl.Prompt("admin> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		if strings.TrimSpace(line) != "" {
			rl.AppendHistory(line)
		}

		output, err := c.Exec(ctx, line)
		if err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			c.log.Printf("admin: %v", err)
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		if output != "" {
			fmt.Fprintln(out, output)
		}
	}
}
