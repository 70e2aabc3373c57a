package replicator

import (
	"fmt"
)

// Config holds the replicator's protocol tuning. All durations are in
// seconds of replicator time.
type Config struct {
	// InitialTimeOffset is added to a peer's handshake time when adopting it
	// as the local clock.
	// Default: 0.05
	InitialTimeOffset float64

	// MaxOffsetAdjust caps how far the clock may be nudged forward per tick.
	// Default: 0.5
	MaxOffsetAdjust float64

	// MaxOffsetAdjustError is the largest believable clock discrepancy.
	// Messages implying a larger jump are treated as corrupt and dropped.
	// Default: 1000
	MaxOffsetAdjustError float64

	// ClockNudge is the fraction of a clock discrepancy applied per message.
	// Default: 0.75
	ClockNudge float64

	// NearDistance and FarDistance bound the distance-based send rate.
	// Default: 15, 150
	NearDistance float64
	FarDistance  float64

	// NearTimeUntilTx and FarTimeUntilTx are the state send intervals for
	// peers at NearDistance and FarDistance.
	// Default: 1/15, 1/8
	NearTimeUntilTx float64
	FarTimeUntilTx  float64

	// StateKeepAlive is the longest a peer goes without a state when the
	// local state has not changed enough to be worth sending.
	// Default: 1.0
	StateKeepAlive float64

	// TimeUntilIAm is the interval between handshake attempts.
	// Default: 6.0
	TimeUntilIAm float64

	// TimeUntilPing is the ping cycle. Each tick pings one peer, so each peer
	// is pinged every TimeUntilPing seconds.
	// Default: 1.5
	TimeUntilPing float64

	// PeerTimeout disconnects a peer that has been silent this long.
	// Default: 20
	PeerTimeout float64

	// MaxPendingPing disconnects a peer with this many unanswered pings.
	// Default: 16
	MaxPendingPing int

	// MaxErrorCount disconnects a peer after this many consecutive failed
	// sends.
	// Default: 4
	MaxErrorCount int

	// ErrorStateThreshold is the largest gap between two states that still
	// extends a ghost's history instead of restarting it.
	// Default: 0.5
	ErrorStateThreshold float64

	// RoundTrips is the size of the round trip ring used for latency.
	// Default: 17
	RoundTrips int

	// ResendTimeThreshold is how long an event waits for its ack before it is
	// sent again.
	// Default: 0.5
	ResendTimeThreshold float64

	// ResendCountThreshold discards unordered events after this many sends.
	// Ordered events are resent until acknowledged.
	// Default: 16
	ResendCountThreshold int

	// DedupWindow is the number of recent inbound event sequences remembered
	// for duplicate suppression.
	// Default: 64
	DedupWindow int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InitialTimeOffset:    0.05,
		MaxOffsetAdjust:      0.5,
		MaxOffsetAdjustError: 1000,
		ClockNudge:           0.75,
		NearDistance:         15,
		FarDistance:          150,
		NearTimeUntilTx:      1.0 / 15.0,
		FarTimeUntilTx:       1.0 / 8.0,
		StateKeepAlive:       1.0,
		TimeUntilIAm:         6.0,
		TimeUntilPing:        1.5,
		PeerTimeout:          20,
		MaxPendingPing:       16,
		MaxErrorCount:        4,
		ErrorStateThreshold:  0.5,
		RoundTrips:           17,
		ResendTimeThreshold:  0.5,
		ResendCountThreshold: 16,
		DedupWindow:          64,
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate checks the config for values the protocol cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.FarDistance <= c.NearDistance:
		return fmt.Errorf("replicator: FarDistance %v must exceed NearDistance %v", c.FarDistance, c.NearDistance)
	case c.NearTimeUntilTx <= 0 || c.FarTimeUntilTx <= 0:
		return fmt.Errorf("replicator: send intervals must be positive")
	case c.TimeUntilIAm <= 0 || c.TimeUntilPing <= 0:
		return fmt.Errorf("replicator: handshake and ping intervals must be positive")
	case c.PeerTimeout <= 0:
		return fmt.Errorf("replicator: PeerTimeout must be positive")
	case c.ClockNudge <= 0 || c.ClockNudge > 1:
		return fmt.Errorf("replicator: ClockNudge %v outside (0, 1]", c.ClockNudge)
	case c.RoundTrips < 1:
		return fmt.Errorf("replicator: RoundTrips must be at least 1")
	case c.DedupWindow < 1 || c.DedupWindow > 128:
		return fmt.Errorf("replicator: DedupWindow %d outside [1, 128]", c.DedupWindow)
	case c.MaxPendingPing < 1 || c.ResendCountThreshold < 1:
		return fmt.Errorf("replicator: thresholds must be positive")
	}
	return nil
}
