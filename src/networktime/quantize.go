package networktime

import "math"

// Beyond 2^53 every float64 is an integer, so every representable time is
// already on the tick grid.
const maxExactTick = 1 << 53

// Below 2^52 ticks the boundaries n/rate and (n+1)/rate are distinct floats,
// so every tick has its own boundary time.
const maxDistinctTick = 1 << 52

// Splits timeSec into a tick index and an offset inside that tick.
// tickRate must be positive and timeSec * tickRate finite.
func quantize(tickRate int, timeSec float64) (float64, float64) {
	rate := float64(tickRate)
	scaled := timeSec * rate

	if math.Abs(scaled) >= maxExactTick {
		return scaled, 0
	}

	// Floor, not truncation: -42.44s at 60Hz is tick -2547, not -2546.
	tick := math.Floor(scaled)
	tickOffset := timeSec - tick/rate

	// The product rounded up onto a boundary. Treat it as an exact tie.
	if tickOffset < 0 {
		tickOffset = 0
	}

	// The product rounded down just below a boundary, or the next boundary
	// computed as a division lands exactly on timeSec. Either way the time
	// belongs to the next tick, so FromTick(rate, n, 0) quantizes back to n.
	if tickOffset >= 1/rate || (tick+1)/rate <= timeSec {
		tick++
		tickOffset = math.Max(0, timeSec-tick/rate)
	}

	return tick, tickOffset
}
