package countdown

import (
	"context"
	"fmt"
	"time"

	"auction-sync/internal/clock"
)

// Phase is the urgency bucket of the remaining time
type Phase string

const (
	PhaseNormal   Phase = "normal"
	PhaseWarning  Phase = "warning"
	PhaseCritical Phase = "critical"
)

// thresholds are inclusive: exactly 15 minutes left is already critical
const (
	CriticalThreshold = 15 * time.Minute
	WarningThreshold  = 60 * time.Minute

	DefaultPeriod = time.Second
)

// Tick is one countdown reading
type Tick struct {
	At        time.Time
	Remaining time.Duration
	Hours     int
	Minutes   int
	Seconds   int
	Phase     Phase
}

// Compute derives a tick from the end instant and the current instant
func Compute(end, now time.Time) Tick {
	remaining := end.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	secs := int(remaining / time.Second)
	t := Tick{
		At:        now,
		Remaining: remaining,
		Hours:     secs / 3600,
		Minutes:   (secs % 3600) / 60,
		Seconds:   secs % 60,
	}

	switch {
	case remaining <= CriticalThreshold:
		t.Phase = PhaseCritical
	case remaining <= WarningThreshold:
		t.Phase = PhaseWarning
	default:
		t.Phase = PhaseNormal
	}
	return t
}

// RemainingMs is the remaining time in whole milliseconds
func (t Tick) RemainingMs() int64 {
	return t.Remaining.Milliseconds()
}

// Ended reports whether the end instant has been reached
func (t Tick) Ended() bool {
	return t.Remaining == 0
}

// Display renders "2h 05m" while hours remain and "MM:SS" afterwards
func (t Tick) Display() string {
	if t.Hours > 0 {
		return fmt.Sprintf("%dh %02dm", t.Hours, t.Minutes)
	}
	return fmt.Sprintf("%02d:%02d", t.Minutes, t.Seconds)
}

// Progress is the elapsed fraction of the [start, end] window, in [0, 1]
func (t Tick) Progress(start, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 1
	}
	p := float64(total-t.Remaining) / float64(total)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Engine emits ticks against an end instant that may change between ticks.
// It never counts down on its own; every tick is endTime() - now.
type Engine struct {
	clock   clock.Source
	period  time.Duration
	endTime func() time.Time
}

// NewEngine creates an engine. A non-positive period falls back to one second.
func NewEngine(c clock.Source, period time.Duration, endTime func() time.Time) *Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Engine{
		clock:   clock.OrReal(c),
		period:  period,
		endTime: endTime,
	}
}

// Start emits a tick immediately and then once per period until ctx is done,
// after which the ticker is stopped and the channel closed. Ticks keep coming
// at zero remaining. A slow reader only ever sees the latest tick.
func (e *Engine) Start(ctx context.Context) <-chan Tick {
	out := make(chan Tick, 1)
	ticker := e.clock.NewTicker(e.period)

	go func() {
		defer close(out)
		defer ticker.Stop()

		e.emit(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				e.emit(out)
			}
		}
	}()

	return out
}

// Current computes a tick without starting the engine
func (e *Engine) Current() Tick {
	return Compute(e.endTime(), e.clock.Now())
}

func (e *Engine) emit(out chan Tick) {
	t := e.Current()
	select {
	case out <- t:
	default:
		// replace the unread tick
		select {
		case <-out:
		default:
		}
		out <- t
	}
}
