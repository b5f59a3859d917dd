package domain

import "github.com/jonboulle/clockwork"

// clock stamps report generation times.
var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock replaces the time source used for report timestamps and returns a
// function restoring the previous one. A nil clock selects real time.
func SetClock(c clockwork.Clock) (restore func()) {
	prev := clock
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
	return func() { clock = prev }
}
