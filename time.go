package qnetsim

import "fmt"

// defaultAccuracy is the number of ticks per simulated second used when a
// Time is constructed without an explicit accuracy. 1e9 gives nanosecond
// resolution, which is well below the propagation delays and attempt
// intervals this simulator deals with.
var defaultAccuracy int64 = 1_000_000_000

// SetDefaultAccuracy changes the tick resolution used by NewTime. It only
// affects Time values constructed afterwards.
func SetDefaultAccuracy(ticksPerSecond int64) {
	defaultAccuracy = ticksPerSecond
}

// DefaultAccuracy returns the current default tick resolution.
func DefaultAccuracy() int64 {
	return defaultAccuracy
}

// Time is a virtual simulated timestamp, stored as an integer tick count at
// a given resolution so that ordering and arithmetic stay exact regardless
// of how small the simulated durations get (fiber propagation delays are
// routinely sub-microsecond).
type Time struct {
	ticks    int64
	accuracy int64
}

// ZeroTime returns t=0 at the current default accuracy.
func ZeroTime() Time {
	return Time{accuracy: defaultAccuracy}
}

// NewTime builds a Time from a duration in seconds, at the default accuracy.
func NewTime(sec float64) Time {
	return NewTimeAccuracy(sec, defaultAccuracy)
}

// NewTimeAccuracy builds a Time from a duration in seconds at an explicit
// tick resolution.
func NewTimeAccuracy(sec float64, accuracy int64) Time {
	return Time{ticks: int64(sec*float64(accuracy) + 0.5), accuracy: accuracy}
}

// Sec returns the timestamp in simulated seconds.
func (t Time) Sec() float64 {
	if t.accuracy == 0 {
		return 0
	}
	return float64(t.ticks) / float64(t.accuracy)
}

// Accuracy returns the tick resolution this Time was constructed with.
func (t Time) Accuracy() int64 { return t.accuracy }

// IsZero reports whether t is the zero value, i.e. never explicitly set —
// used to distinguish an EPR that was never armed with a decoherence
// deadline (infinite coherence time) from one that decohered at t=0.
func (t Time) IsZero() bool { return t.accuracy == 0 }

// Add returns t + d, normalized to t's own accuracy.
func (t Time) Add(d Time) Time {
	return NewTimeAccuracy(t.Sec()+d.Sec(), t.accuracy)
}

// AddSec returns t advanced by sec simulated seconds.
func (t Time) AddSec(sec float64) Time {
	return NewTimeAccuracy(t.Sec()+sec, t.accuracy)
}

// Before reports whether t occurs strictly before o.
func (t Time) Before(o Time) bool { return t.Sec() < o.Sec() }

// After reports whether t occurs strictly after o.
func (t Time) After(o Time) bool { return t.Sec() > o.Sec() }

// Equal reports approximate equality at the coarser of the two accuracies.
func (t Time) Equal(o Time) bool {
	acc := t.accuracy
	if o.accuracy < acc {
		acc = o.accuracy
	}
	if acc == 0 {
		acc = 1
	}
	return int64(t.Sec()*float64(acc)+0.5) == int64(o.Sec()*float64(acc)+0.5)
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after o.
func (t Time) Compare(o Time) int {
	switch {
	case t.Equal(o):
		return 0
	case t.Before(o):
		return -1
	default:
		return 1
	}
}

func (t Time) String() string {
	return fmt.Sprintf("%.9fs", t.Sec())
}
