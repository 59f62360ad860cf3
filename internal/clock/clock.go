// Package clock is the time source for the sync engine. Production code uses
// Real; tests inject a clockwork fake clock and advance it explicitly.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Source is the clock every time-dependent component receives
type Source = clockwork.Clock

var realClock = clockwork.NewRealClock()

// Real returns the process-wide wall clock
func Real() Source {
	return realClock
}

// OrReal returns c, or the real clock when c is nil
func OrReal(c Source) Source {
	if c == nil {
		return realClock
	}
	return c
}

// Remaining returns end - now, never negative
func Remaining(c Source, end time.Time) time.Duration {
	d := end.Sub(c.Now())
	if d < 0 {
		return 0
	}
	return d
}
