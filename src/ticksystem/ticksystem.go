package ticksystem

import (
	"errors"
	"fmt"
	"math"

	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"go.uber.org/zap"
)

var ErrNegativeDelta = errors.New("local time cannot move backwards")

type TickHandler = func(networktime.NetworkTime) error

// TickSystem owns a local clock and calls every registered handler once for
// each tick boundary crossed while the clock advances.
type TickSystem struct {
	localTime networktime.NetworkTime
	handlers  []TickHandler
	logger    *zap.SugaredLogger
}

func New(tickRate int, startTime float64, logger *zap.SugaredLogger) (*TickSystem, error) {
	localTime, err := networktime.New(tickRate, startTime)
	if err != nil {
		return nil, fmt.Errorf("creating tick system: %w", err)
	}

	return &TickSystem{localTime: localTime, logger: logger}, nil
}

// Handlers run in registration order for every tick.
func (system *TickSystem) OnTick(handler TickHandler) {
	system.handlers = append(system.handlers, handler)
}

func (system *TickSystem) LocalTime() networktime.NetworkTime {
	return system.localTime
}

// Moves local time without firing handlers.
func (system *TickSystem) Reset(timeSec float64) error {
	localTime, err := networktime.New(system.localTime.TickRate(), timeSec)
	if err != nil {
		return fmt.Errorf("resetting tick system: %w", err)
	}
	system.localTime = localTime
	return nil
}

func (system *TickSystem) Advance(deltaSeconds float64) error {
	if math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) {
		return fmt.Errorf("advancing tick system: delta=%v %w", deltaSeconds, networktime.ErrInvalidValue)
	}
	if deltaSeconds < 0 {
		return fmt.Errorf("advancing tick system: delta=%v %w", deltaSeconds, ErrNegativeDelta)
	}

	target, err := system.localTime.AddSeconds(deltaSeconds)
	if err != nil {
		return fmt.Errorf("advancing tick system: %w", err)
	}

	return system.advanceTo(target)
}

func (system *TickSystem) AdvanceTo(target networktime.NetworkTime) error {
	if target.TickRate() != system.localTime.TickRate() {
		return fmt.Errorf("advancing tick system: localRate=%d targetRate=%d %w",
			system.localTime.TickRate(), target.TickRate(), networktime.ErrIncompatibleRate)
	}
	if target.Compare(system.localTime) < 0 {
		return fmt.Errorf("advancing tick system: local=%s target=%s %w", system.localTime, target, ErrNegativeDelta)
	}

	return system.advanceTo(target)
}

func (system *TickSystem) advanceTo(target networktime.NetworkTime) error {
	tickRate := system.localTime.TickRate()

	for tick := system.localTime.Tick() + 1; tick <= target.Tick(); tick++ {
		boundary, err := networktime.FromTick(tickRate, tick, 0)
		if err != nil {
			return fmt.Errorf("computing tick boundary: tick=%d %w", tick, err)
		}

		// Handlers observe the tick they run in through LocalTime.
		previous := system.localTime
		system.localTime = boundary

		for _, handler := range system.handlers {
			if err := handler(boundary); err != nil {
				system.localTime = previous
				system.logger.Debugw("tick handler failed",
					"tick", tick,
					"err", err,
				)
				return fmt.Errorf("running tick handler: tick=%d %w", tick, err)
			}
		}
	}

	system.localTime = target

	return nil
}
