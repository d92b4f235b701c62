package networktime

import (
	"fmt"
	"math"

	"github.com/poorlydefinedbehaviour/netcode-go/src/assert"
	"go.uber.org/zap/zapcore"
)

// Snaps the time back to the start of its tick, dropping the offset.
func (networkTime NetworkTime) ToFixedTime() NetworkTime {
	rate := float64(networkTime.rate())

	if math.Abs(networkTime.tick) >= maxDistinctTick {
		return NetworkTime{
			tickRate: networkTime.rate(),
			timeSec:  networkTime.tick / rate,
			tick:     networkTime.tick,
		}
	}

	// A division rather than tick * FixedDeltaTime(): the quotient is
	// correctly rounded, so 535 ticks at 10Hz is exactly 53.5.
	fixed, err := New(networkTime.rate(), networkTime.tick/rate)
	assert.True(err == nil, "snapping to the fixed time: %v", err)
	assert.True(fixed.tick == networkTime.tick, "snapped tick moved: from=%v to=%v", networkTime.tick, fixed.tick)

	return fixed
}

// Time narrowed to single precision, for display and engine APIs.
// Never re-derive ticks from it.
func (networkTime NetworkTime) TimeAsFloat() float32 {
	return float32(networkTime.timeSec)
}

// Returns -1, 0 or 1 depending on whether the time is before, equal to or
// after the other time. Tick rates are ignored.
func (networkTime NetworkTime) Compare(other NetworkTime) int {
	switch {
	case networkTime.timeSec < other.timeSec:
		return -1
	case networkTime.timeSec > other.timeSec:
		return 1
	default:
		return 0
	}
}

// Reports whether both values share a tick rate and their times are within
// epsilon seconds of each other.
func (networkTime NetworkTime) ApproxEqual(other NetworkTime, epsilon float64) bool {
	return networkTime.rate() == other.rate() &&
		math.Abs(networkTime.timeSec-other.timeSec) <= epsilon
}

func (networkTime NetworkTime) String() string {
	return fmt.Sprintf("tick=%d offset=%.6f rate=%d", networkTime.Tick(), networkTime.tickOffset, networkTime.rate())
}

func (networkTime NetworkTime) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddInt("tickRate", networkTime.rate())
	encoder.AddFloat64("time", networkTime.timeSec)
	encoder.AddInt64("tick", networkTime.Tick())
	encoder.AddFloat64("tickOffset", networkTime.tickOffset)
	return nil
}
