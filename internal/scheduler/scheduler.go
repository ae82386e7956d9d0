package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per poll cycle.
type TickFunc func(ctx context.Context, now time.Time) error

// Clock abstracts time so tests can drive the loop without real waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now().UTC() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall-clock implementation used outside tests.
func SystemClock() Clock {
	return systemClock{}
}

// Options tune scheduler behaviour.
type Options struct {
	Interval        time.Duration
	AlignToInterval bool
	StartupDelay    time.Duration
	Clock           Clock
}

// Scheduler drives the fixed-interval poll loop. One tick runs to
// completion before the next wait begins.
type Scheduler struct {
	opts   Options
	clock  Clock
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Scheduler{opts: opts, clock: clock, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function every interval until the context
// is cancelled or the tick reports an error. Recoverable failures are the
// tick's own business; an error returned here is treated as fatal and
// stops the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.opts.StartupDelay):
		}
	}

	// The first cycle fires immediately unless ticks are aligned to the
	// interval boundary.
	next := s.clock.Now()
	if s.opts.AlignToInterval {
		next = nextAligned(next, s.opts.Interval)
	}

	for {
		if delay := next.Sub(s.clock.Now()); delay > 0 {
			s.logger.Debug().Time("next_tick", next).Msg("waiting for next cycle")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(delay):
			}
		}

		now := s.clock.Now()
		s.logger.Debug().Time("tick", now).Msg("executing cycle")

		if err := tick(ctx, now); err != nil {
			s.logger.Error().Err(err).Time("tick", now).Msg("cycle failed; stopping loop")
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		next = next.Add(s.opts.Interval)
		if !next.After(s.clock.Now()) {
			// A slow cycle overran one or more intervals; resume cadence
			// from the present rather than firing a burst of catch-up ticks.
			next = s.clock.Now().Add(s.opts.Interval)
			if s.opts.AlignToInterval {
				next = nextAligned(s.clock.Now(), s.opts.Interval)
			}
		}
	}
}

func nextAligned(now time.Time, interval time.Duration) time.Time {
	aligned := now.Truncate(interval)
	if !aligned.After(now) {
		aligned = aligned.Add(interval)
	}
	return aligned
}
