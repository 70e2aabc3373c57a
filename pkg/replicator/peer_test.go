package replicator

import (
	"math"
	"testing"
)

func TestRoundTripRingStats(t *testing.T) {
	rr := newRoundTripRing(3)
	if ls := rr.stats(0); ls.Samples != 0 || ls.Minimum != 0 {
		t.Errorf("stats() on empty ring = %+v, want zero", ls)
	}

	for _, rtt := range []float64{0.100, 0.020, 0.060, 0.040} {
		rr.push(rtt)
	}
	ls := rr.stats(0.005)

	// 0.100 has been overwritten.
	if ls.Samples != 3 {
		t.Errorf("Samples = %d, want 3", ls.Samples)
	}
	if math.Abs(ls.Minimum-0.010) > 1e-9 {
		t.Errorf("Minimum = %v, want 0.010", ls.Minimum)
	}
	if math.Abs(ls.Median-0.020) > 1e-9 {
		t.Errorf("Median = %v, want 0.020", ls.Median)
	}
	if math.Abs(ls.Mean-0.020) > 1e-9 {
		t.Errorf("Mean = %v, want 0.020", ls.Mean)
	}
	if want := math.Sqrt((0.0004 + 0 + 0.0004) / 3); math.Abs(ls.Spread-want) > 1e-9 {
		t.Errorf("Spread = %v, want %v", ls.Spread, want)
	}
	if ls.Reversed != 0.005 {
		t.Errorf("Reversed = %v, want 0.005", ls.Reversed)
	}
}

func TestGhostHistory(t *testing.T) {
	g := newGhost(testTemplate())
	g.push(bodyState(0, 1), 1.0, true)
	g.push(bodyState(1, 1), 1.1, false)
	g.push(bodyState(2, 1), 1.2, false)

	if g.sn2 == nil || g.tn2 != 1.0 || g.tn1 != 1.1 || g.t0 != 1.2 {
		t.Fatalf("history = (%v %v %v), want (1.0 1.1 1.2)", g.tn2, g.tn1, g.t0)
	}

	g.shift(0.25)
	if g.tn2 != 1.25 || g.tn1 != 1.35 || g.t0 != 1.45 {
		t.Errorf("shifted history = (%v %v %v)", g.tn2, g.tn1, g.t0)
	}

	g.push(bodyState(3, 1), 3.0, true)
	if g.sn1 != nil || g.sn2 != nil || g.t0 != 3.0 {
		t.Errorf("history after gap = (%v %v %v), want reset", g.sn2, g.sn1, g.t0)
	}

	if got := g.StateAt(3.0 + 5); got != nil {
		t.Errorf("StateAt() far past the last snapshot = %v, want nil", got)
	}
}

func TestPeerStateTimes(t *testing.T) {
	p := newPeer(1, "x", 0, DefaultConfig())
	p.establish(testTemplate(), 0)

	if p.stale(1.0) {
		t.Errorf("stale() = true before any state")
	}
	if !p.acceptState(1.0, 0.5) {
		t.Errorf("acceptState() on first state = no restart, want restart")
	}
	p.ghost.push(bodyState(0, 1), p.localTime(1.0, 2.0), true)
	if p.acceptState(1.2, 0.5) {
		t.Errorf("acceptState() after 0.2s = restart, want continue")
	}
	p.ghost.push(bodyState(1, 1), p.localTime(1.2, 2.0), false)
	if !p.stale(1.2) || !p.stale(1.1) || p.stale(1.3) {
		t.Errorf("stale() does not compare against the last state time 1.2")
	}

	// A clock adjustment moves the history and the mapping together.
	p.clockShift += 0.5
	p.ghost.shift(0.5)
	if p.stale(1.3) {
		t.Errorf("stale(1.3) = true after a clock adjustment")
	}
	p.acceptState(1.3, 0.5)
	p.ghost.push(bodyState(2, 1), p.localTime(1.3, 2.0), false)

	g := p.ghost
	if !(g.tn2 < g.tn1 && g.tn1 < g.t0) {
		t.Errorf("history = (%v %v %v), want ascending", g.tn2, g.tn1, g.t0)
	}
	if g.t0 > 2.0 {
		t.Errorf("t0 = %v, want at or before local time 2", g.t0)
	}
	if d := g.t0 - g.tn1; math.Abs(d-0.1) > 1e-9 {
		t.Errorf("t0 - tn1 = %v, want sender spacing 0.1", d)
	}

	// A state that would land after local time pulls the history back.
	p.acceptState(1.7, 0.5)
	g.push(bodyState(3, 1), p.localTime(1.7, 2.0), false)
	if math.Abs(g.t0-2.0) > 1e-9 || math.Abs(g.t0-g.tn1-0.4) > 1e-9 {
		t.Errorf("history = (%v %v), want t0 = 2 and spacing 0.4", g.tn1, g.t0)
	}
}

func TestDedupWindow(t *testing.T) {
	d := newDedupWindow(2)
	d.add(1)
	d.add(2)
	if !d.contains(1) || !d.contains(2) {
		t.Errorf("contains() missed a recent sequence")
	}
	d.add(3)
	if d.contains(1) {
		t.Errorf("contains(1) = true after eviction")
	}
}

func TestPeerEstablishResets(t *testing.T) {
	cfg := DefaultConfig()
	p := newPeer(1, "x", 0, cfg)
	p.pendingPing = 5
	p.errorCount = 3
	p.updateLatency(0.2, 0.1)

	if !p.establish(testTemplate(), 2) {
		t.Fatalf("establish() = false on first call")
	}
	if p.establish(testTemplate(), 3) {
		t.Errorf("establish() = true on an established peer")
	}
	if p.pendingPing != 0 || p.errorCount != 0 || p.latency.Samples != 0 || p.ghost == nil {
		t.Errorf("establish() did not reset peer: %+v", p)
	}
	if p.status.String() != "established" {
		t.Errorf("status = %v, want established", p.status)
	}
}
