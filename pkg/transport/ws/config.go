package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/apistol78/traktor-sub009/pkg/protocol"
)

// Config holds configuration for a Hub.
type Config struct {
	// Name is announced to every connected node.
	Name string

	// Primary marks this node as the session's primary.
	// Default: false
	Primary bool

	// HandshakeTimeout bounds the name exchange after connecting.
	// Default: 5 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout is the maximum time to wait when writing a frame.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// ReadTimeout closes a connection that has been silent this long.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// MaxMessageSize is the read limit per frame.
	// Default: protocol.MaxMessageSize
	MaxMessageSize int64

	// SendQueue is the number of outbound frames buffered per connection.
	// Send fails with peers.ErrNotReady when it is full.
	// Default: 256
	SendQueue int

	// MaxInbox is the number of inbound frames buffered for Receive.
	// Further frames are dropped.
	// Default: 4096
	MaxInbox int

	// DialInitialInterval and DialMaxInterval bound the exponential backoff
	// between dial attempts.
	// Default: 100ms, 5s
	DialInitialInterval time.Duration
	DialMaxInterval     time.Duration

	// DialMaxTries limits dial attempts. Zero retries until the context ends.
	// Default: 0
	DialMaxTries uint

	// CheckOrigin validates the Origin header of incoming connections.
	// Default: accept all.
	CheckOrigin func(r *http.Request) bool

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:    5 * time.Second,
		WriteTimeout:        5 * time.Second,
		ReadTimeout:         60 * time.Second,
		MaxMessageSize:      protocol.MaxMessageSize,
		SendQueue:           256,
		MaxInbox:            4096,
		DialInitialInterval: 100 * time.Millisecond,
		DialMaxInterval:     5 * time.Second,
		CheckOrigin:         func(*http.Request) bool { return true },
		Logger:              slog.Default(),
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
