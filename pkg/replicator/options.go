package replicator

import (
	"log/slog"
	"math/rand/v2"

	"go.opentelemetry.io/otel/trace"

	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
	"github.com/apistol78/traktor-sub009/pkg/state"
)

// MessageRecorder captures every datagram the replicator sends or
// receives. Calls happen inside Update; data must not be retained.
type MessageRecorder interface {
	RecordSent(t float64, h peers.Handle, data []byte)
	RecordReceived(t float64, h peers.Handle, data []byte)
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithConfig sets the protocol tuning. The config is cloned.
func WithConfig(cfg *Config) Option {
	return func(r *Replicator) {
		if cfg != nil {
			r.config = cfg.Clone()
		}
	}
}

// WithLogger sets the structured logger.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replicator) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(r *Replicator) {
		r.metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Replicator) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithRecorder captures all traffic into rec.
func WithRecorder(rec MessageRecorder) Option {
	return func(r *Replicator) {
		r.recorder = rec
	}
}

// WithEventTypes registers the types that may travel as events.
func WithEventTypes(types *compact.TypeTable) Option {
	return func(r *Replicator) {
		r.eventTypes = types
	}
}

// WithStateTemplate sets the schema of the local state and the default
// schema for ghosts.
func WithStateTemplate(t *state.StateTemplate) Option {
	return func(r *Replicator) {
		r.stateTemplate = t
	}
}

// WithID sets the replicator's handshake id. Default: a random UUID.
func WithID(id protocol.ID) Option {
	return func(r *Replicator) {
		r.id = id
	}
}

// WithRand sets the source used to shuffle the send order.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Replicator) {
		if rnd != nil {
			r.rand = rnd
		}
	}
}
