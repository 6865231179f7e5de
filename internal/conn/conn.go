// ABOUTME: Transport abstraction and shared types for the connection layer
// ABOUTME: Defines the state enum, lifecycle errors, and manager configuration

package conn

import (
	"context"
	"errors"
	"time"
)

// Connection lifecycle errors
var (
	// ErrConnectTimeout indicates a connect attempt did not complete
	// within the configured timeout.
	ErrConnectTimeout = errors.New("connect timed out")

	// ErrRetriesExhausted indicates the reconnect attempt cap was
	// reached. The manager is closed and will not retry further.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrManagerClosed indicates the manager was explicitly
	// disconnected and cannot be reused.
	ErrManagerClosed = errors.New("connection manager closed")

	// ErrNotConnected indicates a write was attempted with no
	// connection open.
	ErrNotConnected = errors.New("not connected")
)

// StateName identifies the manager's position in its lifecycle.
type StateName int

const (
	StateDisconnected StateName = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

// String returns a human-readable state name.
func (s StateName) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one open physical connection. Implementations must tolerate
// Close being called concurrently with ReadMessage.
type Conn interface {
	// WriteMessage sends one frame. Callers serialize writes.
	WriteMessage(data []byte) error
	// ReadMessage blocks until the next frame or a read error.
	ReadMessage() ([]byte, error)
	// Close tears down the connection, attempting a clean close frame.
	Close() error
}

// Transport dials the streaming endpoint. The websocket implementation
// is the production transport; tests substitute an in-memory fake.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Default lifecycle tuning, overridable through Config.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultMaxAttempts       = 5
)

// Config tunes one manager. URL is the fully resolved per-work
// streaming endpoint.
type Config struct {
	URL               string
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}
