package replicator

import (
	"context"
	"math"

	"github.com/apistol78/traktor-sub009/pkg/protocol"
)

func (r *Replicator) handleIAm(p *peer, m *protocol.Message) {
	cfg := r.config
	if t := protocol.TimeFromWire(m.Time) + cfg.InitialTimeOffset; t > r.time {
		r.advanceClock(t - r.time)
	}

	switch m.IAm.Sequence {
	case 0:
		_ = r.send(p, protocol.NewIAm(r.wireTime(), 1, m.IAm.ID), true)
	case 1:
		if m.IAm.ID != r.id {
			r.stats.HandshakeMismatches++
			r.drop(p.handle, m, "handshake_mismatch", ErrHandshakeMismatch)
			return
		}
		_ = r.send(p, protocol.NewIAm(r.wireTime(), 2, m.IAm.ID), true)
		r.establish(p)
	case 2:
		r.establish(p)
	}
}

func (r *Replicator) establish(p *peer) {
	if !p.establish(r.stateTemplate, r.elapsed) {
		return
	}
	p.rx = newRxChannels(r.config.DedupWindow)
	p.tx = txQueue{}
	if r.send(p, protocol.NewPing(r.wireTime()), false) == nil {
		p.pendingPing++
	}
	r.logger.Info("peer connected", "peer", p.handle, "name", p.name)
	r.queue(Notification{Kind: KindConnected, Time: r.time, Handle: p.handle})
}

func (r *Replicator) handleBye(ctx context.Context, p *peer) {
	if p.established() {
		r.disconnect(ctx, p, nil, false)
		return
	}
	p.status = peerDisconnected
}

func (r *Replicator) handlePing(p *peer, m *protocol.Message) {
	latency := protocol.TimeToWire(p.latency.Minimum)
	_ = r.send(p, protocol.NewPong(r.wireTime(), m.Time, latency), false)
}

func (r *Replicator) handlePong(p *peer, m *protocol.Message) {
	if p.pendingPing <= 0 {
		r.drop(p.handle, m, "unsolicited_pong", nil)
		return
	}
	p.pendingPing--
	rtt := math.Max(r.time-protocol.TimeFromWire(m.Pong.Time0), 0)
	p.updateLatency(rtt, protocol.TimeFromWire(m.Pong.Latency))
	r.metrics.recordRoundTrip(rtt)
}

func (r *Replicator) handleState(p *peer, m *protocol.Message) {
	g := p.ghost
	if !p.established() || g == nil || g.template == nil {
		r.drop(p.handle, m, "no_ghost", ErrNoGhost)
		return
	}
	cfg := r.config
	t := protocol.TimeFromWire(m.Time)

	if p.stale(t) {
		r.stats.StaleSnapshots++
		r.metrics.recordStale()
		r.logger.Debug("stale snapshot", "peer", p.handle, "time", t, "last", p.lastTime)
		return
	}

	var adjust float64
	if offset := t + p.latency.Minimum - r.time; offset > 0 {
		if offset > cfg.MaxOffsetAdjustError {
			r.drop(p.handle, m, "corrupt_time", ErrCorruptTime)
			return
		}
		adjust = math.Min(cfg.ClockNudge*offset, cfg.MaxOffsetAdjust-r.adjusted)
	}

	s, err := g.template.UnpackBytes(m.State)
	if err != nil {
		r.drop(p.handle, m, "decode", err)
		return
	}
	restart := p.acceptState(t, cfg.ErrorStateThreshold)
	if adjust > 0 {
		r.advanceClock(adjust)
		r.adjusted += adjust
	}
	g.push(s, p.localTime(t, r.time), restart)
	r.queue(Notification{Kind: KindState, Time: r.time, Handle: p.handle, Payload: s})
}
