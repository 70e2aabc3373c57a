// Package peers defines the transport a Replicator talks through and
// provides an in-memory mesh implementation of it.
//
// A Transport is a non-blocking datagram endpoint. The replicator polls it
// once per tick: Update, then PeerHandles for membership, then Send and
// Receive. Receive must only be called after ReceiveAnyPending reported a
// datagram, so a poll never blocks the caller's frame.
package peers

import (
	"errors"
	"strconv"
)

// Handle identifies a remote peer for the lifetime of its connection.
type Handle uint64

// String formats the handle for logs.
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// Transport errors.
var (
	ErrUnknownPeer    = errors.New("peers: unknown peer")
	ErrNotReady       = errors.New("peers: peer not ready to send")
	ErrNoPending      = errors.New("peers: no pending datagram")
	ErrBufferTooSmall = errors.New("peers: receive buffer too small")
	ErrClosed         = errors.New("peers: transport closed")
)

// Transport moves datagrams between this node and its peers.
type Transport interface {
	// Update lets the transport process connection changes.
	Update() error

	// PeerHandles returns the currently known peers.
	PeerHandles() []Handle

	// SendReady reports whether Send to h would be accepted now.
	SendReady(h Handle) bool

	// Send queues data for h. Reliable asks for in-order guaranteed delivery
	// when the transport can provide it. data may be reused after return.
	Send(h Handle, data []byte, reliable bool) error

	// ReceiveAnyPending reports whether Receive has a datagram to return.
	ReceiveAnyPending() bool

	// Receive copies the next datagram into buf.
	Receive(buf []byte) (int, Handle, error)

	// IsPrimary reports whether this node is the session's primary.
	IsPrimary() bool

	// PeerName returns a human readable name for h.
	PeerName(h Handle) string
}
