package testingclock

import (
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
)

// Clock is a manually driven clock for tests. Unlike clock.FixedStep it can
// sit anywhere inside a tick and be advanced by arbitrary deltas.
type Clock struct {
	now networktime.NetworkTime
}

func NewClock(tickRate int) (*Clock, error) {
	now, err := networktime.New(tickRate, 0)
	if err != nil {
		return nil, fmt.Errorf("creating testing clock: %w", err)
	}
	return &Clock{now: now}, nil
}

// Moves to the next tick, keeping the offset inside the tick.
func (clock *Clock) Tick() {
	next, err := networktime.FromTick(clock.now.TickRate(), clock.now.Tick()+1, clock.now.TickOffset())
	if err != nil {
		panic(err)
	}
	clock.now = next
}

func (clock *Clock) Advance(seconds float64) error {
	next, err := clock.now.AddSeconds(seconds)
	if err != nil {
		return fmt.Errorf("advancing testing clock: seconds=%v %w", seconds, err)
	}
	clock.now = next
	return nil
}

func (clock *Clock) CurrentTick() int64 {
	return clock.now.Tick()
}

func (clock *Clock) Now() networktime.NetworkTime {
	return clock.now
}
