package cache

import (
	"time"

	"github.com/wxxb789/vprism/types"
)

// TTLPolicy maps timeframe to L2 TTL seconds (§4.6).
type TTLPolicy struct {
	Default  time.Duration
	Tick     time.Duration
	Intraday map[types.Timeframe]time.Duration
	Daily    time.Duration
	Weekly   time.Duration
}

// DefaultTTLPolicy returns the §4.6 defaults: tick→5s, 1m→60s, 5m→300s,
// daily→3600s, weekly→86400s, unknown→3600s.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: 3600 * time.Second,
		Tick:    5 * time.Second,
		Intraday: map[types.Timeframe]time.Duration{
			types.Timeframe1Minute: 60 * time.Second,
			types.Timeframe5Minute: 300 * time.Second,
			types.Timeframe1Hour:   300 * time.Second,
		},
		Daily:  3600 * time.Second,
		Weekly: 86400 * time.Second,
	}
}

// L2TTL returns the full L2 TTL for a timeframe.
func (p TTLPolicy) L2TTL(tf types.Timeframe) time.Duration {
	switch tf {
	case types.TimeframeTick:
		return p.Tick
	case types.TimeframeDaily:
		return p.Daily
	case types.TimeframeWeekly, types.TimeframeMonthly:
		return p.Weekly
	}
	if d, ok := p.Intraday[tf]; ok {
		return d
	}
	return p.Default
}

// L1TTL is min(L2TTL/2, 300s) per §4.6's deliberate per-tier TTL asymmetry (§9).
func (p TTLPolicy) L1TTL(tf types.Timeframe) time.Duration {
	l2 := p.L2TTL(tf)
	half := l2 / 2
	cap := 300 * time.Second
	if half < cap {
		return half
	}
	return cap
}
