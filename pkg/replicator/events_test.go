package replicator

import (
	"errors"
	"testing"

	"github.com/apistol78/traktor-sub009/pkg/compact"
	"github.com/apistol78/traktor-sub009/pkg/peers"
	"github.com/apistol78/traktor-sub009/pkg/protocol"
)

func chats(rec *recorder) []*chat {
	var out []*chat
	for _, ev := range rec.events {
		if ev.Kind == KindEvent {
			out = append(out, ev.Payload.(*chat))
		}
	}
	return out
}

func injectEvent(t *testing.T, m *peers.Mesh, from, to peers.Handle, seq uint8, ordered bool, c *chat) {
	t.Helper()
	data, err := compact.Marshal(testEventTypes, c, protocol.MaxEventSize)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	raw, err := protocol.EncodeMessage(protocol.NewEvent(0, seq, ordered, data))
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	if err := m.Inject(from, to, raw); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
}

func TestEventDelivery(t *testing.T) {
	_, a, b := connectedPair(t)
	hb := b.ep.Handle()

	if err := a.r.SendEvent(hb, &chat{Text: "hello", N: -7}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	if got := a.r.PendingEvents(hb); got != 1 {
		t.Errorf("PendingEvents() before update = %d, want 1", got)
	}
	run(t, 0.1, a, b)

	got := chats(b.rec)
	if len(got) != 1 || got[0].Text != "hello" || got[0].N != -7 {
		t.Fatalf("delivered events = %+v, want one hello/-7", got)
	}
	if n := a.r.PendingEvents(hb); n != 0 {
		t.Errorf("PendingEvents() after ack = %d, want 0", n)
	}
}

func TestEventDeduplication(t *testing.T) {
	m, a, b := connectedPair(t)

	c := &chat{Text: "once"}
	injectEvent(t, m, a.ep.Handle(), b.ep.Handle(), 42, false, c)
	injectEvent(t, m, a.ep.Handle(), b.ep.Handle(), 42, false, c)
	run(t, tick, b)

	if got := len(chats(b.rec)); got != 1 {
		t.Errorf("deliveries of duplicated event = %d, want 1", got)
	}
	if got := b.r.Stats().DuplicateEvents; got != 1 {
		t.Errorf("DuplicateEvents = %d, want 1", got)
	}
}

func TestOrderedEventsReleasedInSequence(t *testing.T) {
	m, a, b := connectedPair(t)
	ha, hb := a.ep.Handle(), b.ep.Handle()

	injectEvent(t, m, ha, hb, 2, true, &chat{Text: "third"})
	injectEvent(t, m, ha, hb, 1, true, &chat{Text: "second"})
	run(t, tick, b)
	if got := len(chats(b.rec)); got != 0 {
		t.Fatalf("events delivered before the gap filled = %d, want 0", got)
	}

	injectEvent(t, m, ha, hb, 0, true, &chat{Text: "first"})
	injectEvent(t, m, ha, hb, 1, true, &chat{Text: "second"})
	run(t, tick, b)

	got := chats(b.rec)
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("delivered %d events, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Text != want[i] {
			t.Errorf("event %d = %q, want %q", i, c.Text, want[i])
		}
	}
}

func TestUnorderedEventDiscardedAfterResends(t *testing.T) {
	m, a, b := connectedPair(t)
	hb := b.ep.Handle()
	m.Partition(a.ep.Handle(), hb, true)

	if err := a.r.SendEvent(hb, &chat{Text: "lost"}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	run(t, 12, a, b)

	st := a.r.Stats()
	if st.EventsDiscarded != 1 {
		t.Errorf("EventsDiscarded = %d, want 1", st.EventsDiscarded)
	}
	if want := uint64(a.r.Config().ResendCountThreshold - 1); st.EventsResent != want {
		t.Errorf("EventsResent = %d, want %d", st.EventsResent, want)
	}
	if n := a.r.PendingEvents(hb); n != 0 {
		t.Errorf("PendingEvents() = %d, want 0", n)
	}
}

func TestOrderedEventSurvivesOutage(t *testing.T) {
	m, a, b := connectedPair(t)
	ha, hb := a.ep.Handle(), b.ep.Handle()
	m.Partition(ha, hb, true)

	if err := a.r.SendOrderedEvent(hb, &chat{Text: "kept"}); err != nil {
		t.Fatalf("SendOrderedEvent() error = %v", err)
	}
	run(t, 12, a, b)
	if n := a.r.PendingEvents(hb); n != 1 {
		t.Fatalf("PendingEvents() during outage = %d, want 1", n)
	}

	m.Partition(ha, hb, false)
	run(t, 1, a, b)

	got := chats(b.rec)
	if len(got) != 1 || got[0].Text != "kept" {
		t.Errorf("delivered events = %+v, want one kept", got)
	}
	if n := a.r.PendingEvents(hb); n != 0 {
		t.Errorf("PendingEvents() after recovery = %d, want 0", n)
	}
}

func TestEventListenerByType(t *testing.T) {
	m, a, b := connectedPair(t)
	var hits, misses int
	b.r.AddEventListener("chat", ListenerFunc(func(_ *Replicator, ev Notification) {
		if ev.Kind != KindEvent {
			t.Errorf("typed listener got %v", ev.Kind)
		}
		hits++
	}))
	b.r.AddEventListener("other", ListenerFunc(func(*Replicator, Notification) { misses++ }))

	injectEvent(t, m, a.ep.Handle(), b.ep.Handle(), 0, false, &chat{Text: "x"})
	run(t, tick, b)
	if hits != 1 || misses != 0 {
		t.Errorf("typed listeners hits=%d misses=%d, want 1 0", hits, misses)
	}
}

func TestBroadcastEvent(t *testing.T) {
	m := peers.NewMesh()
	a := newNode(t, m, "a")
	b := newNode(t, m, "b")
	c := newNode(t, m, "c")
	run(t, 0.3, a, b, c)
	if a.r.PeerCount() != 2 {
		t.Fatalf("PeerCount() = %d, want 2", a.r.PeerCount())
	}

	if err := a.r.BroadcastEvent(&chat{Text: "all"}); err != nil {
		t.Fatalf("BroadcastEvent() error = %v", err)
	}
	run(t, 0.1, a, b, c)
	for _, n := range []*node{b, c} {
		if got := chats(n.rec); len(got) != 1 || got[0].Text != "all" {
			t.Errorf("delivered = %+v, want one broadcast", got)
		}
	}
}

func TestSendEventErrors(t *testing.T) {
	m := peers.NewMesh()
	r, err := New(m.Join("a"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.SendEvent(peers.Handle(7), &chat{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendEvent(unknown) error = %v, want ErrNotConnected", err)
	}
	if err := r.BroadcastEvent(&chat{}); !errors.Is(err, ErrNoEventTypes) {
		t.Errorf("BroadcastEvent() without types error = %v, want ErrNoEventTypes", err)
	}

	_, a, b := connectedPair(t)
	big := &chat{Text: string(make([]byte, protocol.MaxEventSize))}
	if err := a.r.SendEvent(b.ep.Handle(), big); err == nil {
		t.Errorf("SendEvent(oversized) error = nil, want error")
	}
}

func TestRxChannels(t *testing.T) {
	rx := newRxChannels(4)
	obj := &chat{}

	if !rx.acceptUnordered(3) || rx.acceptUnordered(3) {
		t.Errorf("acceptUnordered() did not deduplicate")
	}
	for seq := uint8(4); seq < 8; seq++ {
		rx.acceptUnordered(seq)
	}
	if !rx.acceptUnordered(3) {
		t.Errorf("acceptUnordered() remembered a sequence beyond its window")
	}

	tests := []struct {
		seq         uint8
		wantRelease int
		wantDup     bool
		wantAck     bool
	}{
		{seq: 1, wantRelease: 0, wantAck: true},
		{seq: 1, wantDup: true, wantAck: true},
		{seq: 9, wantAck: false},
		{seq: 0, wantRelease: 2, wantAck: true},
		{seq: 0, wantDup: true, wantAck: true},
	}
	for _, tt := range tests {
		rel, dup, ack := rx.acceptOrdered(tt.seq, obj)
		if len(rel) != tt.wantRelease || dup != tt.wantDup || ack != tt.wantAck {
			t.Errorf("acceptOrdered(%d) = %d, %v, %v; want %d, %v, %v",
				tt.seq, len(rel), dup, ack, tt.wantRelease, tt.wantDup, tt.wantAck)
		}
	}
}
