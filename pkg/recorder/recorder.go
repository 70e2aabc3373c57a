// Package recorder captures replicator traffic for offline inspection.
//
// A Recorder buffers every datagram passed to it and writes the buffer as
// a segment to a Sink on Flush. Segments are self describing and can be
// decoded with Reader.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// Sink stores finished segments.
type Sink interface {
	Store(ctx context.Context, name string, data []byte) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMaxBytes bounds the buffered segment. Records past the bound are
// dropped until the next Flush.
// Default: 8 MiB
func WithMaxBytes(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSession fixes the session id. Default: a random UUID.
func WithSession(id uuid.UUID) Option {
	return func(r *Recorder) {
		r.session = id
	}
}

// Recorder buffers datagrams into segments. It is safe for concurrent use.
type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	session  uuid.UUID
	maxBytes int
	now      func() time.Time

	mu      sync.Mutex
	buf     []byte
	records int
	segment int
	dropped uint64
}

// New creates a recorder writing to sink. A nil sink keeps segments in
// memory only; use Snapshot to read them.
func New(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:     sink,
		logger:   slog.Default(),
		session:  uuid.New(),
		maxBytes: 8 << 20,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startSegment()
	return r
}

// Session returns the session id written into every segment header.
func (r *Recorder) Session() uuid.UUID { return r.session }

// Dropped returns the number of records lost to a full buffer.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) startSegment() {
	r.buf = appendHeader(r.buf[:0], Header{Session: r.session, Started: r.now()})
	r.records = 0
}

// RecordSent captures an outbound datagram.
func (r *Recorder) RecordSent(t float64, h peers.Handle, data []byte) {
	r.record(Record{Direction: Sent, Time: t, Peer: h, Data: data})
}

// RecordReceived captures an inbound datagram.
func (r *Recorder) RecordReceived(t float64, h peers.Handle, data []byte) {
	r.record(Record{Direction: Received, Time: t, Peer: h, Data: data})
}

func (r *Recorder) record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf)+recordHeader+len(rec.Data) > r.maxBytes {
		r.dropped++
		return
	}
	buf, err := appendRecord(r.buf, rec)
	if err != nil {
		r.dropped++
		return
	}
	r.buf = buf
	r.records++
}

// Snapshot returns a copy of the current segment without resetting it.
func (r *Recorder) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf...)
}

// Flush hands the current segment to the sink and starts a new one. An
// empty segment is not stored.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.sink == nil {
		return ErrNoSink
	}

	r.mu.Lock()
	if r.records == 0 {
		r.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), r.buf...)
	records := r.records
	name := fmt.Sprintf("%s-%06d.rec", r.session, r.segment)
	r.segment++
	r.startSegment()
	r.mu.Unlock()

	if err := r.sink.Store(ctx, name, data); err != nil {
		return fmt.Errorf("recorder: store %s: %w", name, err)
	}
	r.logger.Debug("recording flushed", "segment", name, "records", records, "bytes", len(data))
	return nil
}

// Run flushes every interval until ctx ends, then flushes once more.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return r.Flush(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Warn("recording flush failed", "error", err)
			}
		}
	}
}
