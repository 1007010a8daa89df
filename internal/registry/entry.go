package registry

import (
	"execd-go/internal/config"
	"execd-go/internal/remote"
)

// Handle is a non-owning reference to a registry entry. A handle stays
// usable after its entry is removed from the active list; lookups on a
// retired entry report it as not active instead of failing.
type Handle uint64

// Entry wraps one server configuration plus its live connection state.
// Entries live in the registry arena; callers only ever hold handles.
type Entry struct {
	handle    Handle
	config    config.ServerConfig
	conn      remote.Connection
	destroyed bool
}

// Handle returns the entry's identifier.
func (e *Entry) Handle() Handle {
	return e.handle
}

// Name returns the entry's current server name.
func (e *Entry) Name() string {
	return e.config.Name
}

// Config returns a copy of the entry's server configuration.
func (e *Entry) Config() config.ServerConfig {
	return e.config
}

// Connection returns the entry's live connection.
func (e *Entry) Connection() remote.Connection {
	return e.conn
}
