package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger for relay components under test. Output
// goes to stdout rather than t.Log so goroutines that outlive a test
// (client pumps, stats updater) can still log safely.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(os.Stdout, "[relay-test] ", log.LstdFlags)
}
