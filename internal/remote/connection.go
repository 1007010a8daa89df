// Package remote models the live connection state of a registry entry.
// Transport and protocol semantics are out of scope; connections here
// track state transitions so open/close operations have real effects.
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"execd-go/internal/config"
)

// State represents the runtime state of a server connection (in-memory only)
type State int

const (
	// StateDisconnected indicates the server is not connected
	StateDisconnected State = iota
	// StateConnecting indicates a connection attempt is in progress
	StateConnecting
	// StateReady indicates the connection is open and usable
	StateReady
	// StateError indicates the last connection attempt failed
	StateError
)

// String returns the string representation of the connection state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateReady:
		return "Ready"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Info holds a snapshot of the current connection state.
type Info struct {
	State       State     `json:"state"`
	LastError   error     `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Connection is the live connection of one registry entry.
type Connection interface {
	// Open establishes the connection. Opening an already open
	// connection is a no-op.
	Open(ctx context.Context) error
	// Close tears the connection down. Closing a closed connection
	// is a no-op.
	Close() error
	// Info returns a snapshot of the connection state.
	Info() Info
}

// Factory builds the connection for a server configuration.
type Factory func(cfg *config.ServerConfig, logger *zap.Logger) Connection

// NewConnection is the default connection factory.
func NewConnection(cfg *config.ServerConfig, logger *zap.Logger) Connection {
	return &conn{
		cfg:    cfg,
		logger: logger.With(zap.String("server", cfg.Name)),
	}
}

type conn struct {
	cfg    *config.ServerConfig
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	lastError   error
	connectedAt time.Time
}

func (c *conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReady {
		return nil
	}

	c.state = StateConnecting
	c.logger.Debug("Opening connection",
		zap.String("connection", c.cfg.Connection),
		zap.String("address", c.cfg.Address()))

	if err := ctx.Err(); err != nil {
		c.fail(err)
		return err
	}

	if !c.cfg.IsLocal() && c.cfg.Host == "" {
		err := fmt.Errorf("server %s has no host configured", c.cfg.Name)
		c.fail(err)
		return err
	}

	c.state = StateReady
	c.lastError = nil
	c.connectedAt = time.Now()
	c.logger.Info("Connection ready")
	return nil
}

func (c *conn) fail(err error) {
	c.state = StateError
	c.lastError = err
	c.logger.Warn("Connection attempt failed", zap.Error(err))
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return nil
	}

	c.state = StateDisconnected
	c.connectedAt = time.Time{}
	c.logger.Debug("Connection closed")
	return nil
}

func (c *conn) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Info{
		State:       c.state,
		LastError:   c.lastError,
		ConnectedAt: c.connectedAt,
	}
}
