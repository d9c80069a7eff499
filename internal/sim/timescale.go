package sim

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// MaxTimeScale bounds fast-forward.
	MaxTimeScale = 4.0
)

// TimeScale is the global simulation speed multiplier. Zero pauses the
// simulation; values between zero and one slow it down. It is safe for
// concurrent use.
type TimeScale struct {
	bits atomic.Uint64
}

// NewTimeScale constructs a time scale starting at factor.
func NewTimeScale(factor float64) *TimeScale {
	ts := &TimeScale{}
	ts.bits.Store(math.Float64bits(1))
	ts.Set(factor)
	return ts
}

// Set updates the factor, clamped to [0, MaxTimeScale]. NaN is ignored.
func (ts *TimeScale) Set(factor float64) float64 {
	if ts == nil {
		return 1
	}
	if math.IsNaN(factor) {
		return ts.Factor()
	}
	factor = min(max(factor, 0), MaxTimeScale)
	ts.bits.Store(math.Float64bits(factor))
	return factor
}

// Factor reports the current multiplier. A nil TimeScale runs at real time.
func (ts *TimeScale) Factor() float64 {
	if ts == nil {
		return 1
	}
	return math.Float64frombits(ts.bits.Load())
}

// Scale converts a wall-clock step into simulation time.
func (ts *TimeScale) Scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) * ts.Factor())
}
