package replicator

import (
	"math"
	"slices"

	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/state"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

type peerStatus uint8

const (
	peerUnestablished peerStatus = iota
	peerEstablished
	peerDisconnected
)

func (s peerStatus) String() string {
	switch s {
	case peerUnestablished:
		return "unestablished"
	case peerEstablished:
		return "established"
	case peerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Ghost is the local mirror of a remote peer's entity. It keeps the three
// most recent snapshots and extrapolates between them.
type Ghost struct {
	template *state.StateTemplate
	origin   vecmath.Vector4
	object   any

	sn2, sn1, s0 *state.State
	tn2, tn1, t0 float64
}

func newGhost(template *state.StateTemplate) *Ghost {
	return &Ghost{template: template, origin: vecmath.Point(0, 0, 0)}
}

// Template returns the ghost's snapshot schema.
func (g *Ghost) Template() *state.StateTemplate { return g.template }

// Origin returns the ghost's position used for send rate adaptation.
func (g *Ghost) Origin() vecmath.Vector4 { return g.origin }

// Object returns the application object bound to the ghost.
func (g *Ghost) Object() any { return g.object }

// Latest returns the most recent snapshot and its timestamp.
func (g *Ghost) Latest() (*state.State, float64) { return g.s0, g.t0 }

// StateAt extrapolates the ghost's snapshot history to time t.
func (g *Ghost) StateAt(t float64) *state.State {
	if g.template == nil {
		return nil
	}
	return g.template.Extrapolate(g.sn2, g.tn2, g.sn1, g.tn1, g.s0, g.t0, t)
}

// push installs s as the newest snapshot at local time t. With restart set
// the older snapshots are discarded.
func (g *Ghost) push(s *state.State, t float64, restart bool) {
	if restart || g.s0 == nil {
		g.sn2, g.sn1 = nil, nil
		g.tn2, g.tn1 = 0, 0
	} else {
		g.sn2, g.tn2 = g.sn1, g.tn1
		g.sn1, g.tn1 = g.s0, g.t0
	}
	g.s0, g.t0 = s, t
}

func (g *Ghost) resetHistory() {
	g.sn2, g.sn1, g.s0 = nil, nil, nil
	g.tn2, g.tn1, g.t0 = 0, 0, 0
}

func (g *Ghost) shift(d float64) {
	if g.sn2 != nil {
		g.tn2 += d
	}
	if g.sn1 != nil {
		g.tn1 += d
	}
	if g.s0 != nil {
		g.t0 += d
	}
}

// LatencyStats summarizes the round trip ring of a peer. Values are one-way
// estimates in seconds, except Spread which is the standard deviation of
// the round trips.
type LatencyStats struct {
	Minimum  float64
	Median   float64
	Mean     float64
	Spread   float64
	Reversed float64
	Samples  int
}

// roundTripRing is a fixed size ring of the most recent round trips.
type roundTripRing struct {
	samples []float64
	next    int
	full    bool
}

func newRoundTripRing(n int) roundTripRing {
	return roundTripRing{samples: make([]float64, n)}
}

func (rr *roundTripRing) push(rtt float64) {
	rr.samples[rr.next] = rtt
	rr.next++
	if rr.next == len(rr.samples) {
		rr.next = 0
		rr.full = true
	}
}

func (rr *roundTripRing) values() []float64 {
	if rr.full {
		return slices.Clone(rr.samples)
	}
	return slices.Clone(rr.samples[:rr.next])
}

func (rr *roundTripRing) reset() {
	rr.next = 0
	rr.full = false
}

// stats computes latency estimates from the ring. Reversed is carried over.
func (rr *roundTripRing) stats(reversed float64) LatencyStats {
	vs := rr.values()
	ls := LatencyStats{Reversed: reversed, Samples: len(vs)}
	if len(vs) == 0 {
		return ls
	}
	slices.Sort(vs)
	ls.Minimum = vs[0] / 2
	ls.Median = vs[len(vs)/2] / 2

	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	var sq float64
	for _, v := range vs {
		sq += (v - mean) * (v - mean)
	}
	ls.Mean = mean / 2
	ls.Spread = math.Sqrt(sq / float64(len(vs)))
	return ls
}

// dedupWindow remembers the most recent inbound sequence numbers.
type dedupWindow struct {
	seen  []uint8
	next  int
	count int
}

func newDedupWindow(n int) dedupWindow {
	return dedupWindow{seen: make([]uint8, n)}
}

func (d *dedupWindow) contains(seq uint8) bool {
	for i := 0; i < d.count; i++ {
		if d.seen[i] == seq {
			return true
		}
	}
	return false
}

func (d *dedupWindow) add(seq uint8) {
	d.seen[d.next] = seq
	d.next = (d.next + 1) % len(d.seen)
	if d.count < len(d.seen) {
		d.count++
	}
}

// peer is the replicator's record of one remote node.
type peer struct {
	handle peers.Handle
	name   string
	status peerStatus

	discovered   float64 // Local elapsed time the handle first appeared
	lastReceived float64 // Local elapsed time of the last packet
	timeUntilTx  float64 // Until next IAm when unestablished, next state when established

	lastSent     *state.State
	lastSentTime float64

	// Sender time of the newest accepted state. Clock adjustments never
	// touch it.
	lastTime    float64
	hasLastTime bool
	// Ghost timestamps are sender time plus clockShift. Every change to
	// clockShift is applied to the ghost history as well.
	clockShift float64

	pendingPing int
	errorCount  int
	roundTrips  roundTripRing
	latency     LatencyStats

	ghost *Ghost

	tx txQueue
	rx rxChannels
}

func newPeer(h peers.Handle, name string, now float64, cfg *Config) *peer {
	return &peer{
		handle:       h,
		name:         name,
		discovered:   now,
		lastReceived: now,
		roundTrips:   newRoundTripRing(cfg.RoundTrips),
		rx:           newRxChannels(cfg.DedupWindow),
	}
}

func (p *peer) established() bool {
	return p.status == peerEstablished
}

// establish moves the peer to Established and allocates its ghost. It
// reports whether this was a transition.
func (p *peer) establish(template *state.StateTemplate, now float64) bool {
	if p.status == peerEstablished {
		return false
	}
	p.status = peerEstablished
	p.ghost = newGhost(template)
	p.roundTrips.reset()
	p.latency = LatencyStats{}
	p.pendingPing = 0
	p.errorCount = 0
	p.timeUntilTx = 0
	p.lastSent = nil
	p.lastTime, p.hasLastTime = 0, false
	p.clockShift = 0
	p.lastReceived = now
	return true
}

// stale reports whether a state sent at t is not newer than the last one.
func (p *peer) stale(t float64) bool {
	return p.hasLastTime && t <= p.lastTime
}

// acceptState records t as the newest state time and reports whether the
// gap since the previous state reaches restartGap.
func (p *peer) acceptState(t, restartGap float64) bool {
	restart := !p.hasLastTime || t-p.lastTime >= restartGap
	p.lastTime, p.hasLastTime = t, true
	return restart
}

// localTime maps sender time t onto the local clock. A state never lands
// after now; when it would, the peer's whole history is moved back.
func (p *peer) localTime(t, now float64) float64 {
	if lt := t + p.clockShift; lt > now {
		d := now - lt
		p.clockShift += d
		if p.ghost != nil {
			p.ghost.shift(d)
		}
	}
	return t + p.clockShift
}

func (p *peer) updateLatency(rtt float64, reversed float64) {
	p.roundTrips.push(rtt)
	p.latency = p.roundTrips.stats(reversed)
}
