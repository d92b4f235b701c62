package clock

import (
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/assert"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
)

type Clock interface {
	// Advances the clock time by one tick.
	Tick()

	// Returns the tick that represents the current clock time.
	CurrentTick() int64

	// Returns the current clock time.
	Now() networktime.NetworkTime
}

// FixedStep is a clock that only ever sits on tick boundaries. It counts
// ticks and derives its time from the tick index, so stepping it millions of
// times never drifts.
type FixedStep struct {
	tickRate int
	tick     int64
}

func NewFixedStep(tickRate int, startTick int64) (*FixedStep, error) {
	if err := networktime.ValidateTickRate(tickRate); err != nil {
		return nil, fmt.Errorf("creating fixed step clock: %w", err)
	}

	return &FixedStep{tickRate: tickRate, tick: startTick}, nil
}

func (clock *FixedStep) Tick() {
	clock.tick++
}

func (clock *FixedStep) CurrentTick() int64 {
	return clock.tick
}

func (clock *FixedStep) Now() networktime.NetworkTime {
	now, err := networktime.FromTick(clock.tickRate, clock.tick, 0)
	assert.True(err == nil, "tick boundary must be a valid network time: tick=%d err=%v", clock.tick, err)
	return now
}
