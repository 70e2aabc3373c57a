package replicator

import (
	"errors"
	"fmt"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
)

// txEvent is an outbound event awaiting acknowledgment.
type txEvent struct {
	seq      uint8
	ordered  bool
	data     []byte
	sends    int
	lastSent float64
}

// txQueue holds a peer's unacknowledged events in send order. Ordered and
// unordered events use separate sequence spaces.
type txQueue struct {
	events  []*txEvent
	nextSeq [2]uint8
}

func channel(ordered bool) int {
	if ordered {
		return 1
	}
	return 0
}

func (q *txQueue) push(ordered bool, data []byte) *txEvent {
	c := channel(ordered)
	ev := &txEvent{seq: q.nextSeq[c], ordered: ordered, data: data}
	q.nextSeq[c]++
	q.events = append(q.events, ev)
	return ev
}

// ack removes the event matching seq on the given channel.
func (q *txQueue) ack(seq uint8, ordered bool) bool {
	for i, ev := range q.events {
		if ev.seq == seq && ev.ordered == ordered {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return true
		}
	}
	return false
}

func (q *txQueue) len() int {
	return len(q.events)
}

// rxChannels tracks inbound event sequences for one peer.
type rxChannels struct {
	unordered   dedupWindow
	nextOrdered uint8
	buffered    map[uint8]compact.Serializable
	window      int
}

func newRxChannels(window int) rxChannels {
	return rxChannels{
		unordered: newDedupWindow(window),
		buffered:  make(map[uint8]compact.Serializable),
		window:    window,
	}
}

// acceptUnordered reports whether seq is new, marking it seen.
func (rx *rxChannels) acceptUnordered(seq uint8) bool {
	if rx.unordered.contains(seq) {
		return false
	}
	rx.unordered.add(seq)
	return true
}

// acceptOrdered files an ordered event and returns the events now
// deliverable in sequence. ack is false when seq lies beyond the receive
// window and must be retransmitted later.
func (rx *rxChannels) acceptOrdered(seq uint8, obj compact.Serializable) (release []compact.Serializable, duplicate, ack bool) {
	ahead := seq - rx.nextOrdered
	switch {
	case ahead >= 128:
		return nil, true, true
	case int(ahead) >= rx.window:
		return nil, false, false
	case ahead > 0:
		if _, ok := rx.buffered[seq]; ok {
			return nil, true, true
		}
		rx.buffered[seq] = obj
		return nil, false, true
	}

	release = append(release, obj)
	rx.nextOrdered++
	for {
		next, ok := rx.buffered[rx.nextOrdered]
		if !ok {
			break
		}
		delete(rx.buffered, rx.nextOrdered)
		release = append(release, next)
		rx.nextOrdered++
	}
	return release, false, true
}

// SendEvent queues a reliable event for one peer. It is transmitted on the
// next Update and retransmitted until acknowledged.
func (r *Replicator) SendEvent(h peers.Handle, obj compact.Serializable) error {
	return r.queueEvent(h, obj, false)
}

// SendOrderedEvent queues a reliable event delivered to the peer's
// listeners in send order.
func (r *Replicator) SendOrderedEvent(h peers.Handle, obj compact.Serializable) error {
	return r.queueEvent(h, obj, true)
}

// BroadcastEvent queues an event for every established peer.
func (r *Replicator) BroadcastEvent(obj compact.Serializable) error {
	data, err := r.marshalEvent(obj)
	if err != nil {
		return err
	}
	for _, h := range r.sortedHandles() {
		p := r.peers[h]
		if p.established() {
			p.tx.push(false, data)
		}
	}
	return nil
}

func (r *Replicator) queueEvent(h peers.Handle, obj compact.Serializable, ordered bool) error {
	p, ok := r.peers[h]
	if !ok || !p.established() {
		return NewPeerError(h, "send event", ErrNotConnected)
	}
	data, err := r.marshalEvent(obj)
	if err != nil {
		return NewPeerError(h, "send event", err)
	}
	p.tx.push(ordered, data)
	return nil
}

func (r *Replicator) marshalEvent(obj compact.Serializable) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.eventTypes == nil {
		return nil, ErrNoEventTypes
	}
	data, err := compact.Marshal(r.eventTypes, obj, protocol.MaxEventSize)
	if err != nil {
		if errors.Is(err, bitio.ErrOutOfSpace) {
			return nil, fmt.Errorf("%w: %v", ErrEventTooLarge, err)
		}
		return nil, err
	}
	return data, nil
}

// flushEvents transmits new events and retransmits unacknowledged ones.
func (r *Replicator) flushEvents(p *peer) {
	cfg := r.config
	var oldestOrdered uint8
	haveOrdered := false

	kept := p.tx.events[:0]
	for _, ev := range p.tx.events {
		if ev.ordered {
			if !haveOrdered {
				oldestOrdered, haveOrdered = ev.seq, true
			}
			if int(ev.seq-oldestOrdered) >= cfg.DedupWindow {
				kept = append(kept, ev)
				continue
			}
		}
		if ev.sends > 0 && r.elapsed-ev.lastSent < cfg.ResendTimeThreshold {
			kept = append(kept, ev)
			continue
		}
		if !ev.ordered && ev.sends >= cfg.ResendCountThreshold {
			r.stats.EventsDiscarded++
			r.metrics.recordDiscarded()
			r.logger.Debug("event discarded after resends", "peer", p.handle, "seq", ev.seq, "sends", ev.sends)
			continue
		}
		if ev.sends > 0 {
			r.stats.EventsResent++
			r.metrics.recordResent()
		}
		ev.sends++
		ev.lastSent = r.elapsed
		_ = r.send(p, protocol.NewEvent(r.wireTime(), ev.seq, ev.ordered, ev.data), true)
		kept = append(kept, ev)
	}
	clear(p.tx.events[len(kept):])
	p.tx.events = kept
}

func (r *Replicator) handleEvent(p *peer, m *protocol.Message) {
	ev := m.Event
	if !p.established() || p.ghost == nil {
		r.drop(p.handle, m, "no_ghost", ErrNoGhost)
		return
	}

	var obj compact.Serializable
	if r.eventTypes == nil {
		r.drop(p.handle, m, "decode", ErrNoEventTypes)
	} else if decoded, err := compact.Unmarshal(r.eventTypes, ev.Data); err != nil {
		r.drop(p.handle, m, "decode", err)
	} else {
		obj = decoded
	}

	var release []compact.Serializable
	ack := true
	if ev.Ordered {
		var dup bool
		release, dup, ack = p.rx.acceptOrdered(ev.Sequence, obj)
		if dup {
			r.stats.DuplicateEvents++
		}
	} else if p.rx.acceptUnordered(ev.Sequence) {
		release = []compact.Serializable{obj}
	} else {
		r.stats.DuplicateEvents++
	}

	if ack {
		_ = r.send(p, protocol.NewEventAck(r.wireTime(), ev.Sequence, ev.Ordered), true)
	}
	for _, o := range release {
		if o == nil {
			continue
		}
		r.queue(Notification{Kind: KindEvent, Time: r.time, Handle: p.handle, Payload: o})
	}
}

func (r *Replicator) handleEventAck(p *peer, m *protocol.Message) {
	if !p.tx.ack(m.EventAck.Sequence, m.EventAck.Ordered) {
		r.logger.Debug("ack for unknown event", "peer", p.handle, "seq", m.EventAck.Sequence)
	}
}
