package replicator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/apistol78/traktor-sub009/pkg/protocol"
)

// MetricsConfig configures the replicator's Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "replicator").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for latency and tick duration.
	// Default: exponential from 1ms
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the replicator metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "replicator",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors updated by a Replicator.
// A nil *Metrics records nothing.
type Metrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	sendErrors       prometheus.Counter
	dropped          *prometheus.CounterVec
	staleSnapshots   prometheus.Counter
	disconnects      *prometheus.CounterVec
	eventsResent     prometheus.Counter
	eventsDiscarded  prometheus.Counter
	peersConnected   prometheus.Gauge
	latency          prometheus.Histogram
	clockAdjust      prometheus.Counter
	tickDuration     prometheus.Histogram
}

// NewMetrics creates and registers the replicator collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		messagesSent:     counterVec("messages_sent_total", "Messages sent by type", "type"),
		messagesReceived: counterVec("messages_received_total", "Messages received by type", "type"),
		bytesSent:        counter("bytes_sent_total", "Total bytes sent"),
		bytesReceived:    counter("bytes_received_total", "Total bytes received"),
		sendErrors:       counter("send_errors_total", "Transport send failures"),
		dropped:          counterVec("messages_dropped_total", "Received messages dropped by reason", "reason"),
		staleSnapshots:   counter("stale_snapshots_total", "States discarded for not being newer than the installed snapshot"),
		disconnects:      counterVec("disconnects_total", "Peer disconnects by reason", "reason"),
		eventsResent:     counter("events_resent_total", "Event retransmissions"),
		eventsDiscarded:  counter("events_discarded_total", "Unordered events dropped after exhausting resends"),
		clockAdjust:      counter("clock_adjust_seconds_total", "Total forward clock adjustment applied"),
		peersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "peers_connected",
			Help:        "Number of established peers",
			ConstLabels: config.ConstLabels,
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "round_trip_seconds",
			Help:        "Measured ping round trip time",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "update_duration_seconds",
			Help:        "Wall time spent in one Update call",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

func (m *Metrics) recordSent(t protocol.MessageType, n int) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(t.String()).Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) recordReceived(t protocol.MessageType, n int) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(t.String()).Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) recordSendError() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

func (m *Metrics) recordDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) recordStale() {
	if m != nil {
		m.staleSnapshots.Inc()
	}
}

func (m *Metrics) recordDisconnect(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) recordResent() {
	if m != nil {
		m.eventsResent.Inc()
	}
}

func (m *Metrics) recordDiscarded() {
	if m != nil {
		m.eventsDiscarded.Inc()
	}
}

func (m *Metrics) recordRoundTrip(rtt float64) {
	if m != nil {
		m.latency.Observe(rtt)
	}
}

func (m *Metrics) recordClockAdjust(d float64) {
	if m != nil {
		m.clockAdjust.Add(d)
	}
}

func (m *Metrics) setPeers(n int) {
	if m != nil {
		m.peersConnected.Set(float64(n))
	}
}

func (m *Metrics) observeTick(seconds float64) {
	if m != nil {
		m.tickDuration.Observe(seconds)
	}
}
