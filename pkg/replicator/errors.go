package replicator

import (
	"errors"
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// Sentinel errors for peer and protocol conditions.
var (
	// ErrHandshakeMismatch is reported when an IAm reply echoes an id other
	// than ours. The message is ignored.
	ErrHandshakeMismatch = errors.New("replicator: handshake id mismatch")

	// ErrPeerTimeout is reported when a peer has been silent for PeerTimeout.
	ErrPeerTimeout = errors.New("replicator: peer timed out")

	// ErrPingOverflow is reported when a peer leaves too many pings unanswered.
	ErrPingOverflow = errors.New("replicator: too many pending pings")

	// ErrSendFailures is reported when sends to a peer keep failing.
	ErrSendFailures = errors.New("replicator: too many send failures")

	// ErrStaleSnapshot is reported for a state that is not newer than the
	// ghost's installed snapshot.
	ErrStaleSnapshot = errors.New("replicator: stale snapshot")

	// ErrCorruptTime is reported for a message implying an impossible clock jump.
	ErrCorruptTime = errors.New("replicator: corrupt message time")

	// ErrNotConnected is returned when addressing a peer that is not established.
	ErrNotConnected = errors.New("replicator: peer not connected")

	// ErrNoEventTypes is returned when sending events without an event type table.
	ErrNoEventTypes = errors.New("replicator: no event types registered")

	// ErrEventTooLarge is returned when an event does not fit one message.
	ErrEventTooLarge = errors.New("replicator: event too large")

	// ErrNoGhost is reported for a state or event from a peer without a ghost.
	ErrNoGhost = errors.New("replicator: peer has no ghost")

	// ErrClosed is returned by operations on a closed replicator.
	ErrClosed = errors.New("replicator: closed")
)

// PeerError wraps an error with peer context for debugging.
type PeerError struct {
	Handle peers.Handle
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	return fmt.Sprintf("replicator: peer %s: %s: %v", e.Handle, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}

// NewPeerError creates a new PeerError.
func NewPeerError(h peers.Handle, op string, err error) *PeerError {
	return &PeerError{Handle: h, Op: op, Err: err}
}
