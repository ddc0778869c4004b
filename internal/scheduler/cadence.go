// Package scheduler – weekly cadence policy.
package scheduler

import "time"

// Cadence restricts building to a single weekday. With Weekly off the policy
// is a constant "always active".
type Cadence struct {
	Weekly    bool
	ActiveDay time.Weekday
}

// ActiveToday reports whether building is allowed on now's weekday. Used to
// seed the enable flag at process start.
func (c Cadence) ActiveToday(now time.Time) bool {
	return !c.Weekly || now.Weekday() == c.ActiveDay
}

// Apply returns the new enable flag at a day boundary: on when the active day
// begins, off the day after, otherwise unchanged. The day-after rule (rather
// than "off when not active") preserves the flag across restarts of the same
// non-active day without re-disabling a manually toggled deployment.
func (c Cadence) Apply(now time.Time, enabled bool) bool {
	if !c.Weekly {
		return true
	}
	switch now.Weekday() {
	case c.ActiveDay:
		return true
	case (c.ActiveDay + 1) % 7:
		return false
	default:
		return enabled
	}
}
