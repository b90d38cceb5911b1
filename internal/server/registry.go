package server

import (
	"slices"
	"sync"
)

// Registry is the set of live connections. It guards membership with
// its own lock; each client's session fields carry their own.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
	}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

// ForEach calls fn for every registered client. The membership set is
// snapshotted under the read lock and fn runs outside it, so fn may
// add or remove clients without deadlocking. No ordering is guaranteed.
func (r *Registry) ForEach(fn func(*Client)) {
	for _, c := range r.snapshot() {
		fn(c)
	}
}

func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// FindByUsername returns an authenticated client for the given
// username, or nil if none is connected.
func (r *Registry) FindByUsername(name string) *Client {
	for _, c := range r.snapshot() {
		if c.Username() == name {
			return c
		}
	}
	return nil
}

func (r *Registry) CountOnline() int {
	n := 0
	for _, c := range r.snapshot() {
		if c.Username() != "" {
			n++
		}
	}
	return n
}

// ListOnlineUsernames returns the distinct authenticated usernames,
// sorted. A user with several connections appears once.
func (r *Registry) ListOnlineUsernames() []string {
	var names []string
	for _, c := range r.snapshot() {
		if name := c.Username(); name != "" {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return slices.Compact(names)
}
