package networktime

import (
	"errors"
	"fmt"
	"math"
)

var (
	// The tick rate is not a positive integer.
	ErrInvalidConfiguration = errors.New("invalid tick rate")

	// The time is NaN, infinite, or cannot be placed on the tick grid.
	ErrInvalidValue = errors.New("invalid time value")

	// Two values with different tick rates were combined.
	ErrIncompatibleRate = errors.New("incompatible tick rates")
)

// The effective tick rate of the zero NetworkTime.
const DefaultTickRate = 30

type NetworkTime struct {
	// Ticks per second. Zero only for the zero value.
	tickRate int

	// Absolute continuous time in seconds.
	timeSec float64

	// floor(timeSec * tickRate). Always holds an exact integer.
	tick float64

	// timeSec - tick / tickRate, in [0, 1 / tickRate).
	tickOffset float64
}

func ValidateTickRate(tickRate int) error {
	if tickRate <= 0 {
		return fmt.Errorf("tick rate must be greater than 0: tickRate=%d %w", tickRate, ErrInvalidConfiguration)
	}
	return nil
}

func validateTime(tickRate int, timeSec float64) error {
	if math.IsNaN(timeSec) || math.IsInf(timeSec, 0) {
		return fmt.Errorf("time must be finite: time=%v %w", timeSec, ErrInvalidValue)
	}
	if math.IsInf(timeSec*float64(tickRate), 0) {
		return fmt.Errorf("time overflows the tick grid: time=%v tickRate=%d %w", timeSec, tickRate, ErrInvalidValue)
	}
	return nil
}

// Creates a NetworkTime at timeSec seconds. Fails fast when tickRate <= 0 or
// when timeSec is not finite.
func New(tickRate int, timeSec float64) (NetworkTime, error) {
	if err := ValidateTickRate(tickRate); err != nil {
		return NetworkTime{}, err
	}
	if err := validateTime(tickRate, timeSec); err != nil {
		return NetworkTime{}, err
	}

	tick, tickOffset := quantize(tickRate, timeSec)

	return NetworkTime{
		tickRate:   tickRate,
		timeSec:    timeSec,
		tick:       tick,
		tickOffset: tickOffset,
	}, nil
}

func MustNew(tickRate int, timeSec float64) NetworkTime {
	networkTime, err := New(tickRate, timeSec)
	if err != nil {
		panic(err)
	}
	return networkTime
}

// Creates the NetworkTime that is tickOffset seconds past the start of tick.
// The result is quantized like any other time, so FromTick(rate, n, 0)
// reports Tick() == n for every |n| < 2^52 and an offset outside
// [0, FixedDeltaTime()) moves the value to another tick.
func FromTick(tickRate int, tick int64, tickOffset float64) (NetworkTime, error) {
	if err := ValidateTickRate(tickRate); err != nil {
		return NetworkTime{}, err
	}

	return New(tickRate, float64(tick)/float64(tickRate)+tickOffset)
}

func (networkTime NetworkTime) rate() int {
	if networkTime.tickRate == 0 {
		return DefaultTickRate
	}
	return networkTime.tickRate
}

func (networkTime NetworkTime) TickRate() int {
	return networkTime.rate()
}

// Time in seconds.
func (networkTime NetworkTime) Time() float64 {
	return networkTime.timeSec
}

// The duration of one tick in seconds.
func (networkTime NetworkTime) FixedDeltaTime() float64 {
	return 1 / float64(networkTime.rate())
}

// The index of the tick that contains Time(). Saturates at the int64 bounds
// for times whose tick index does not fit in an int64.
func (networkTime NetworkTime) Tick() int64 {
	switch {
	case networkTime.tick >= math.MaxInt64:
		return math.MaxInt64
	case networkTime.tick <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(networkTime.tick)
	}
}

// How far past the start of Tick() the time is, in [0, FixedDeltaTime()).
func (networkTime NetworkTime) TickOffset() float64 {
	return networkTime.tickOffset
}
