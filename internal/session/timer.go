package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Remaining computes whole seconds left until deadline, clamped to >= 0.
// Remaining time is never counted down from a locally started interval; it
// is recomputed fresh from the absolute deadline on every call, so tab
// suspensions and scheduling pauses cannot skew it.
func Remaining(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Countdown emits a 1 Hz seconds-remaining signal for an absolute deadline.
type Countdown struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewCountdown creates a countdown driver.
func NewCountdown(clock clockwork.Clock, logger zerolog.Logger) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{
		clock:  clock,
		logger: logger.With().Str("component", "countdown").Logger(),
	}
}

// Run ticks once immediately and then once per second until the deadline
// passes or the context is cancelled. onTick receives each remaining value;
// onZero fires exactly once, on the first tick where remaining hits 0, and
// Run returns right after.
func (c *Countdown) Run(ctx context.Context, deadline time.Time, onTick func(remaining int), onZero func()) error {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		remaining := Remaining(deadline, c.clock.Now())
		if onTick != nil {
			onTick(remaining)
		}
		if remaining == 0 {
			if onZero != nil {
				onZero()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}
