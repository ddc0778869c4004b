// Package scheduler provides the day-boundary timer and the weekly cadence
// policy. The timer computes "time until next local midnight" and re-arms
// itself after every fire instead of ticking on a fixed 24h interval, which
// keeps it correct across daylight-savings shifts and clock skew.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Now is the clock used by the scheduler and the cadence checks. It is a
// package variable so tests can pin time.
var Now = time.Now

// Action is one zero-argument daily task. Actions run strictly in
// registration order on every fire and are never interleaved with each other
// on the same trigger.
type Action func(ctx context.Context) error

// Scheduler fires the registered actions once per day at local midnight.
type Scheduler struct {
	actions []Action

	// until is a test seam for the wait computation.
	until func(t time.Time) time.Duration
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{until: time.Until}
}

// Add registers an action. Order of registration is order of execution.
func (s *Scheduler) Add(a Action) { s.actions = append(s.actions, a) }

// Run blocks until ctx is cancelled, firing all actions at each local
// midnight. An action error is logged and does not stop the remaining
// actions or the scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.until(NextMidnight(Now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.Fire(ctx)
	}
}

// Fire runs all registered actions sequentially. Exposed so bootstrap code
// and tests can trigger a day boundary directly.
func (s *Scheduler) Fire(ctx context.Context) {
	for i, a := range s.actions {
		if err := a(ctx); err != nil {
			log.Error().Err(err).Int("action", i).Msg("daily action failed")
		}
	}
}

// NextMidnight returns the first instant of the day after t, in t's location.
// Using the calendar day (rather than t+24h) stays correct on 23h and 25h
// days around DST transitions.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
