// Package replicator keeps the entity state of a set of peers in sync over
// an unreliable datagram transport.
//
// Each node owns one local State and sends it to every established peer at
// a rate that falls off with distance. Remote states are mirrored as
// Ghosts that extrapolate between received snapshots. Reliable events,
// latency measurement and clock synchronization run on the same channel.
//
// A Replicator is driven entirely by Update, called once per frame from a
// single goroutine. It starts no goroutines and holds no locks; all
// methods must be called from the goroutine that calls Update.
package replicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
	"github.com/apistol78/traktor-sub009/pkg/state"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// maxReceivePerUpdate bounds the datagrams drained in one Update.
const maxReceivePerUpdate = 4096

// Stats are diagnostic counters since the replicator was created.
type Stats struct {
	MessagesSent        uint64
	MessagesReceived    uint64
	BytesSent           uint64
	BytesReceived       uint64
	SendErrors          uint64
	Dropped             uint64
	StaleSnapshots      uint64
	HandshakeMismatches uint64
	DuplicateEvents     uint64
	EventsResent        uint64
	EventsDiscarded     uint64
	Disconnects         uint64
}

// Replicator runs the replication protocol for one node.
type Replicator struct {
	transport  peers.Transport
	config     *Config
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	recorder   MessageRecorder
	rand       *rand.Rand
	id         protocol.ID
	eventTypes *compact.TypeTable

	time     float64 // Synchronized replicator time
	elapsed  float64 // Local time, never adjusted
	adjusted float64 // Clock adjustment applied in the current Update

	stateTemplate *state.StateTemplate
	state         *state.State
	origin        vecmath.Vector4

	peers         map[peers.Handle]*peer
	pingIndex     int
	timeUntilPing float64

	listeners    []listenerEntry
	nextListener ListenerID
	pending      []Notification

	stats  Stats
	rbuf   []byte
	wbuf   []byte
	closed bool
}

// New creates a replicator on top of transport.
func New(transport peers.Transport, opts ...Option) (*Replicator, error) {
	if transport == nil {
		return nil, errors.New("replicator: nil transport")
	}
	r := &Replicator{
		transport: transport,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		tracer:    defaultTracer(),
		rand:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		id:        protocol.ID(uuid.New()),
		origin:    vecmath.Point(0, 0, 0),
		peers:     make(map[peers.Handle]*peer),
		rbuf:      make([]byte, protocol.MaxMessageSize),
		wbuf:      make([]byte, protocol.MaxMessageSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	r.logger = r.logger.With("replicator", uuid.UUID(r.id).String())
	return r, nil
}

// ID returns the replicator's handshake id.
func (r *Replicator) ID() protocol.ID {
	return r.id
}

// Time returns the synchronized replicator time in seconds.
func (r *Replicator) Time() float64 {
	return r.time
}

// Stats returns a copy of the diagnostic counters.
func (r *Replicator) Stats() Stats {
	return r.stats
}

// Config returns a copy of the active protocol tuning.
func (r *Replicator) Config() *Config {
	return r.config.Clone()
}

// SetStateTemplate sets the local state schema. Ghosts created afterwards
// use it as their default schema.
func (r *Replicator) SetStateTemplate(t *state.StateTemplate) {
	r.stateTemplate = t
	r.state = nil
}

// StateTemplate returns the local state schema.
func (r *Replicator) StateTemplate() *state.StateTemplate {
	return r.stateTemplate
}

// SetState replaces the local state that is broadcast to peers.
func (r *Replicator) SetState(s *state.State) error {
	if s == nil {
		r.state = nil
		return nil
	}
	if r.stateTemplate == nil {
		return errors.New("replicator: no state template")
	}
	if err := r.stateTemplate.Validate(s); err != nil {
		return fmt.Errorf("replicator: set state: %w", err)
	}
	r.state = s
	return nil
}

// State returns the local state.
func (r *Replicator) State() *state.State {
	return r.state
}

// LoopbackState returns the local state as a peer would decode it.
func (r *Replicator) LoopbackState() (*state.State, error) {
	if r.stateTemplate == nil || r.state == nil {
		return nil, nil
	}
	packed, err := r.stateTemplate.PackBytes(r.state)
	if err != nil {
		return nil, err
	}
	return r.stateTemplate.UnpackBytes(packed)
}

// SetOrigin sets the local position used for distance based send rates.
func (r *Replicator) SetOrigin(origin vecmath.Vector4) {
	r.origin = origin
}

// Origin returns the local position.
func (r *Replicator) Origin() vecmath.Vector4 {
	return r.origin
}

// Ghost returns the ghost of an established peer.
func (r *Replicator) Ghost(h peers.Handle) (*Ghost, bool) {
	p, ok := r.peers[h]
	if !ok || p.ghost == nil {
		return nil, false
	}
	return p.ghost, true
}

// GhostState returns the peer's state extrapolated to the current time, or
// nil when none is available.
func (r *Replicator) GhostState(h peers.Handle) *state.State {
	g, ok := r.Ghost(h)
	if !ok {
		return nil
	}
	return g.StateAt(r.time)
}

// FilteredGhostState filters current against the peer's extrapolated
// state. The ghost is taken as the sample at time 0 and current as the
// sample at time 1, and the pair is evaluated at k in [0, 1]. k = 1 returns
// current. Linear fields move toward the ghost as k falls. Body fields
// integrate current's velocity back by 1-k, with the acceleration implied
// by the two samples.
func (r *Replicator) FilteredGhostState(h peers.Handle, current *state.State, k float64) *state.State {
	g, ok := r.Ghost(h)
	if !ok {
		return nil
	}
	target := g.StateAt(r.time)
	if target == nil || current == nil || g.template == nil {
		return target
	}
	k = min(max(k, 0), 1)
	return g.template.Extrapolate(nil, 0, target, 0, current, 1, k)
}

// SetGhostStateTemplate overrides the schema used to decode a peer's
// states. The peer's snapshot history is discarded.
func (r *Replicator) SetGhostStateTemplate(h peers.Handle, t *state.StateTemplate) error {
	g, ok := r.Ghost(h)
	if !ok {
		return NewPeerError(h, "set ghost template", ErrNotConnected)
	}
	g.template = t
	g.resetHistory()
	return nil
}

// SetGhostObject binds an application object to a peer's ghost.
func (r *Replicator) SetGhostObject(h peers.Handle, obj any) error {
	g, ok := r.Ghost(h)
	if !ok {
		return NewPeerError(h, "set ghost object", ErrNotConnected)
	}
	g.object = obj
	return nil
}

// GhostObject returns the application object bound to a peer's ghost.
func (r *Replicator) GhostObject(h peers.Handle) any {
	if g, ok := r.Ghost(h); ok {
		return g.object
	}
	return nil
}

// SetGhostOrigin sets the peer's position used for its send rate.
func (r *Replicator) SetGhostOrigin(h peers.Handle, origin vecmath.Vector4) error {
	g, ok := r.Ghost(h)
	if !ok {
		return NewPeerError(h, "set ghost origin", ErrNotConnected)
	}
	g.origin = origin
	return nil
}

// GhostOrigin returns the peer's position.
func (r *Replicator) GhostOrigin(h peers.Handle) (vecmath.Vector4, bool) {
	if g, ok := r.Ghost(h); ok {
		return g.origin, true
	}
	return vecmath.Vector4{}, false
}

// IsPeerConnected reports whether h is established.
func (r *Replicator) IsPeerConnected(h peers.Handle) bool {
	p, ok := r.peers[h]
	return ok && p.established()
}

// PeerLatency returns the median one-way latency to h in seconds.
func (r *Replicator) PeerLatency(h peers.Handle) float64 {
	if p, ok := r.peers[h]; ok {
		return p.latency.Median
	}
	return 0
}

// PeerReversedLatency returns h's own minimum latency estimate, as
// reported in its pongs.
func (r *Replicator) PeerReversedLatency(h peers.Handle) float64 {
	if p, ok := r.peers[h]; ok {
		return p.latency.Reversed
	}
	return 0
}

// PeerLatencySpread returns the standard deviation of h's round trips.
func (r *Replicator) PeerLatencySpread(h peers.Handle) float64 {
	if p, ok := r.peers[h]; ok {
		return p.latency.Spread
	}
	return 0
}

// PeerLatencyStats returns all latency estimates for h.
func (r *Replicator) PeerLatencyStats(h peers.Handle) (LatencyStats, bool) {
	p, ok := r.peers[h]
	if !ok {
		return LatencyStats{}, false
	}
	return p.latency, true
}

// BestReversedLatency returns the smallest reversed latency among
// established peers, or 0 without peers.
func (r *Replicator) BestReversedLatency() float64 {
	best, found := 0.0, false
	for _, p := range r.peers {
		if p.established() && (!found || p.latency.Reversed < best) {
			best, found = p.latency.Reversed, true
		}
	}
	return best
}

// WorstReversedLatency returns the largest reversed latency among
// established peers.
func (r *Replicator) WorstReversedLatency() float64 {
	var worst float64
	for _, p := range r.peers {
		if p.established() && p.latency.Reversed > worst {
			worst = p.latency.Reversed
		}
	}
	return worst
}

// PendingEvents returns the number of unacknowledged events for h.
func (r *Replicator) PendingEvents(h peers.Handle) int {
	if p, ok := r.peers[h]; ok {
		return p.tx.len()
	}
	return 0
}

// PeerCount returns the number of established peers.
func (r *Replicator) PeerCount() int {
	return r.establishedCount()
}

// PeerHandles returns the established peers in handle order.
func (r *Replicator) PeerHandles() []peers.Handle {
	var out []peers.Handle
	for _, h := range r.sortedHandles() {
		if r.peers[h].established() {
			out = append(out, h)
		}
	}
	return out
}

// PeerName returns the transport's name for h.
func (r *Replicator) PeerName(h peers.Handle) string {
	return r.transport.PeerName(h)
}

// IsPrimary reports whether this node is the session's primary.
func (r *Replicator) IsPrimary() bool {
	return r.transport.IsPrimary()
}

// Close says Bye to every established peer and releases all ghosts.
// Listeners are not notified.
func (r *Replicator) Close() error {
	if r.closed {
		return nil
	}
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		if p.established() {
			_ = r.send(p, protocol.NewBye(r.wireTime()), true)
		}
		p.ghost = nil
	}
	clear(r.peers)
	r.pending = nil
	r.closed = true
	r.metrics.setPeers(0)
	r.logger.Info("replicator closed")
	return nil
}

// Update runs one protocol tick and advances the clock by dt seconds.
// Only transport failures are returned; problems with individual peers or
// messages are logged and counted.
func (r *Replicator) Update(dt float64) error {
	if r.closed {
		return ErrClosed
	}
	start := time.Now()
	ctx, span := r.startUpdateSpan(dt)
	err := r.update(ctx, dt)
	r.endUpdateSpan(span, err)
	r.metrics.observeTick(time.Since(start).Seconds())
	return err
}

func (r *Replicator) update(ctx context.Context, dt float64) error {
	if err := r.transport.Update(); err != nil {
		return fmt.Errorf("replicator: transport update: %w", err)
	}

	r.refreshPeers(ctx)
	r.handshake(dt)
	r.checkPeers(ctx)
	r.broadcastState(dt)
	for _, h := range r.sortedHandles() {
		if p := r.peers[h]; p.established() {
			r.flushEvents(p)
		}
	}
	r.ping(dt)
	r.receive(ctx)

	r.dispatch()
	for _, p := range r.peers {
		if p.status == peerDisconnected {
			p.ghost = nil
		}
	}
	r.metrics.setPeers(r.establishedCount())

	r.time += dt
	r.elapsed += dt
	r.adjusted = 0
	return nil
}

// refreshPeers syncs the peer map with the transport's membership.
func (r *Replicator) refreshPeers(ctx context.Context) {
	handles := r.transport.PeerHandles()
	live := make(map[peers.Handle]struct{}, len(handles))
	for _, h := range handles {
		live[h] = struct{}{}
		if _, ok := r.peers[h]; !ok {
			r.peers[h] = newPeer(h, r.transport.PeerName(h), r.elapsed, r.config)
			r.logger.Debug("peer discovered", "peer", h, "name", r.peers[h].name)
		}
	}
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		_, ok := live[h]
		switch {
		case p.status == peerDisconnected:
			delete(r.peers, h)
		case !ok:
			if p.established() {
				r.disconnect(ctx, p, peers.ErrUnknownPeer, false)
			} else {
				delete(r.peers, h)
			}
		case p.status == peerUnestablished && r.elapsed-p.discovered > r.config.PeerTimeout:
			r.logger.Debug("handshake timed out", "peer", h)
			delete(r.peers, h)
		}
	}
}

// handshake sends IAm(0) to unestablished peers on their retry timer.
func (r *Replicator) handshake(dt float64) {
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		if p.status != peerUnestablished {
			continue
		}
		p.timeUntilTx -= dt
		if p.timeUntilTx > 0 {
			continue
		}
		p.timeUntilTx = r.config.TimeUntilIAm
		_ = r.send(p, protocol.NewIAm(r.wireTime(), 0, r.id), true)
	}
}

// checkPeers disconnects established peers that stopped responding.
func (r *Replicator) checkPeers(ctx context.Context) {
	cfg := r.config
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		if !p.established() {
			continue
		}
		var reason error
		switch {
		case r.elapsed-p.lastReceived > cfg.PeerTimeout:
			reason = ErrPeerTimeout
		case p.pendingPing > cfg.MaxPendingPing:
			reason = ErrPingOverflow
		case p.errorCount > cfg.MaxErrorCount:
			reason = ErrSendFailures
		}
		if reason != nil {
			r.disconnect(ctx, p, reason, true)
		}
	}
}

// disconnect demotes p and queues its Disconnected notification. The ghost
// stays readable until the notifications of this Update are dispatched.
func (r *Replicator) disconnect(ctx context.Context, p *peer, reason error, sayBye bool) {
	if sayBye {
		_ = r.send(p, protocol.NewBye(r.wireTime()), true)
	}
	wasEstablished := p.established()
	p.status = peerDisconnected
	p.tx = txQueue{}
	if !wasEstablished {
		return
	}

	r.stats.Disconnects++
	label := "bye"
	var payload error
	if reason != nil {
		payload = NewPeerError(p.handle, "update", reason)
		label = disconnectLabel(reason)
		r.traceDisconnect(ctx, p.handle, reason)
		r.logger.Warn("peer disconnected", "peer", p.handle, "reason", label, "error", reason)
	} else {
		r.logger.Info("peer left", "peer", p.handle)
	}
	r.metrics.recordDisconnect(label)
	r.queue(Notification{Kind: KindDisconnected, Time: r.time, Handle: p.handle, Payload: payload})
}

func disconnectLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrPeerTimeout):
		return "timeout"
	case errors.Is(reason, ErrPingOverflow):
		return "ping_overflow"
	case errors.Is(reason, ErrSendFailures):
		return "send_failures"
	case errors.Is(reason, peers.ErrUnknownPeer):
		return "transport"
	default:
		return "other"
	}
}

// broadcastState sends the local state to established peers whose send
// timer has expired, in random order.
func (r *Replicator) broadcastState(dt float64) {
	if r.stateTemplate == nil || r.state == nil {
		return
	}
	cfg := r.config

	var candidates []*peer
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		if !p.established() {
			continue
		}
		p.timeUntilTx -= dt
		if p.timeUntilTx <= 0 {
			candidates = append(candidates, p)
		}
	}
	r.rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	var packed []byte
	for _, p := range candidates {
		interval := r.sendInterval(p)
		if p.lastSent != nil &&
			!r.stateTemplate.Critical(p.lastSent, r.state) &&
			r.elapsed-p.lastSentTime < cfg.StateKeepAlive {
			p.timeUntilTx = interval
			continue
		}
		if !r.transport.SendReady(p.handle) {
			continue
		}
		if packed == nil {
			var err error
			if packed, err = r.stateTemplate.PackBytes(r.state); err != nil {
				r.logger.Error("cannot pack local state", "error", err)
				return
			}
		}
		if err := r.send(p, protocol.NewState(r.wireTime(), packed), false); err != nil {
			p.timeUntilTx = cfg.FarTimeUntilTx
			continue
		}
		p.lastSent = r.state
		p.lastSentTime = r.elapsed
		p.timeUntilTx = interval
	}
}

// sendInterval interpolates the state interval by distance to the peer.
func (r *Replicator) sendInterval(p *peer) float64 {
	cfg := r.config
	dist := float64(vecmath.Distance3(p.ghost.origin, r.origin))
	k := (dist - cfg.NearDistance) / (cfg.FarDistance - cfg.NearDistance)
	k = min(max(k, 0), 1)
	return cfg.NearTimeUntilTx + (cfg.FarTimeUntilTx-cfg.NearTimeUntilTx)*k
}

// ping probes one established peer per expiry, cycling through them so
// each is pinged once per TimeUntilPing.
func (r *Replicator) ping(dt float64) {
	handles := r.PeerHandles()
	if len(handles) == 0 {
		return
	}
	r.timeUntilPing -= dt
	if r.timeUntilPing > 0 {
		return
	}
	r.pingIndex = (r.pingIndex + 1) % len(handles)
	p := r.peers[handles[r.pingIndex]]
	if r.send(p, protocol.NewPing(r.wireTime()), false) == nil {
		p.pendingPing++
	}
	r.timeUntilPing = r.config.TimeUntilPing / float64(len(handles))
}

// receive drains the transport and dispatches every message.
func (r *Replicator) receive(ctx context.Context) {
	for i := 0; i < maxReceivePerUpdate && r.transport.ReceiveAnyPending(); i++ {
		n, h, err := r.transport.Receive(r.rbuf)
		if err != nil {
			if errors.Is(err, peers.ErrNoPending) {
				return
			}
			r.drop(h, nil, "receive", err)
			continue
		}
		data := r.rbuf[:n]
		if r.recorder != nil {
			r.recorder.RecordReceived(r.time, h, data)
		}

		m, err := protocol.DecodeMessage(data)
		if err != nil {
			r.drop(h, nil, "decode", err)
			continue
		}
		r.stats.MessagesReceived++
		r.stats.BytesReceived += uint64(n)
		r.metrics.recordReceived(m.Type, n)

		p, ok := r.peers[h]
		if !ok {
			p = newPeer(h, r.transport.PeerName(h), r.elapsed, r.config)
			r.peers[h] = p
		}
		if p.status == peerDisconnected {
			r.drop(h, m, "disconnected", ErrNotConnected)
			continue
		}
		p.lastReceived = r.elapsed
		r.handle(ctx, p, m)
	}
}

func (r *Replicator) handle(ctx context.Context, p *peer, m *protocol.Message) {
	switch m.Type {
	case protocol.MsgIAm:
		r.handleIAm(p, m)
	case protocol.MsgBye:
		r.handleBye(ctx, p)
	case protocol.MsgPing:
		r.handlePing(p, m)
	case protocol.MsgPong:
		r.handlePong(p, m)
	case protocol.MsgState:
		r.handleState(p, m)
	case protocol.MsgEvent:
		r.handleEvent(p, m)
	case protocol.MsgEventAck:
		r.handleEventAck(p, m)
	}
}

// send encodes m and hands it to the transport. Failures count against the
// peer's error budget.
func (r *Replicator) send(p *peer, m *protocol.Message, reliable bool) error {
	w := bitio.NewWriter(r.wbuf)
	if err := protocol.EncodeMessageTo(w, m); err != nil {
		r.logger.Error("cannot encode message", "peer", p.handle, "type", m.Type, "error", err)
		return NewPeerError(p.handle, "encode "+m.Type.String(), err)
	}
	data := w.Bytes()
	if err := r.transport.Send(p.handle, data, reliable); err != nil {
		p.errorCount++
		r.stats.SendErrors++
		r.metrics.recordSendError()
		r.logger.Debug("send failed", "peer", p.handle, "type", m.Type, "error", err)
		return NewPeerError(p.handle, "send "+m.Type.String(), err)
	}
	p.errorCount = 0
	r.stats.MessagesSent++
	r.stats.BytesSent += uint64(len(data))
	r.metrics.recordSent(m.Type, len(data))
	if r.recorder != nil {
		r.recorder.RecordSent(r.time, p.handle, data)
	}
	return nil
}

func (r *Replicator) drop(h peers.Handle, m *protocol.Message, reason string, err error) {
	r.stats.Dropped++
	r.metrics.recordDropped(reason)
	if m != nil {
		r.logger.Debug("message dropped", "peer", h, "type", m.Type, "reason", reason, "error", err)
	} else {
		r.logger.Debug("message dropped", "peer", h, "reason", reason, "error", err)
	}
}

func (r *Replicator) queue(ev Notification) {
	r.pending = append(r.pending, ev)
}

// advanceClock moves the replicator clock forward by d, shifting every
// ghost timestamp and queued notification with it.
func (r *Replicator) advanceClock(d float64) {
	r.time += d
	for _, p := range r.peers {
		p.clockShift += d
		if p.ghost != nil {
			p.ghost.shift(d)
		}
	}
	for i := range r.pending {
		r.pending[i].Time += d
	}
	r.metrics.recordClockAdjust(d)
}

func (r *Replicator) wireTime() uint32 {
	return protocol.TimeToWire(r.time)
}

func (r *Replicator) sortedHandles() []peers.Handle {
	handles := make([]peers.Handle, 0, len(r.peers))
	for h := range r.peers {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles
}

func (r *Replicator) establishedCount() int {
	n := 0
	for _, p := range r.peers {
		if p.established() {
			n++
		}
	}
	return n
}
