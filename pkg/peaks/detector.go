// Package peaks detects oscillation turning points in a measurement
// stream. A rolling, time-bounded history window feeds a hysteresis
// detector: a tentative extremum becomes a finalized peak only once the
// signal has reversed past it by more than the noise band.
package peaks

import (
	"time"

	"relaytune/pkg/sample"
)

// Kind distinguishes maxima from minima.
type Kind int

const (
	// Max is a local maximum.
	Max Kind = iota
	// Min is a local minimum.
	Min
)

// String returns "max" or "min".
func (k Kind) String() string {
	if k == Min {
		return "min"
	}
	return "max"
}

// Peak is a finalized oscillation turning point. Finalized peaks are
// immutable; tentative extrema are internal to the detector.
type Peak struct {
	Time  time.Time
	Value float64
	Kind  Kind
}

// direction of travel between peaks.
const (
	dirNone    = 0
	dirRising  = 1
	dirFalling = -1
)

// Detector finds peaks in the sample stream.
type Detector struct {
	noiseBand float64
	lookback  time.Duration
	window    *window

	dir     int
	hi      sample.Sample // highest sample since the last finalized peak
	lo      sample.Sample // lowest sample since the last finalized peak
	started bool
}

// NewDetector creates a detector. capacity bounds the history window and
// should cover lookback at the poll period (callers typically pass
// lookback/period plus slack). noiseBand is the hysteresis that
// separates true reversals from sensor noise.
func NewDetector(noiseBand float64, lookback time.Duration, capacity int) *Detector {
	if capacity < 2 {
		capacity = 2
	}
	return &Detector{
		noiseBand: noiseBand,
		lookback:  lookback,
		window:    newWindow(capacity),
	}
}

// Observe appends a sample to the history window and reports a finalized
// peak, if this sample confirmed one. Returning ok=false is the normal
// waiting state, not an error.
func (d *Detector) Observe(s sample.Sample) (Peak, bool) {
	d.window.append(s)
	d.window.evictBefore(s.Time.Add(-d.lookback))

	if !d.started {
		d.started = true
		d.hi, d.lo = s, s
		return Peak{}, false
	}

	if s.Value > d.hi.Value {
		d.hi = s
	}
	if s.Value < d.lo.Value {
		d.lo = s
	}

	switch d.dir {
	case dirNone:
		// No direction yet. The first excursion beyond the noise band
		// only establishes the direction of travel; the starting value
		// is not a turning point.
		if d.hi.Value-s.Value > d.noiseBand {
			d.dir = dirFalling
		} else if s.Value-d.lo.Value > d.noiseBand {
			d.dir = dirRising
		}
	case dirRising:
		if d.hi.Value-s.Value > d.noiseBand {
			return d.finalize(Max, d.hi, s), true
		}
	case dirFalling:
		if s.Value-d.lo.Value > d.noiseBand {
			return d.finalize(Min, d.lo, s), true
		}
	}
	return Peak{}, false
}

// finalize commits the tentative extremum and restarts candidate
// tracking from the confirming sample.
func (d *Detector) finalize(kind Kind, at sample.Sample, confirm sample.Sample) Peak {
	if kind == Max {
		d.dir = dirFalling
	} else {
		d.dir = dirRising
	}
	d.hi, d.lo = confirm, confirm
	return Peak{Time: at.Time, Value: at.Value, Kind: kind}
}

// Window returns a copy of the current history window, oldest first.
func (d *Detector) Window() []sample.Sample {
	return d.window.snapshot()
}

// Reset discards all history and tentative state.
func (d *Detector) Reset() {
	d.window.reset()
	d.dir = dirNone
	d.started = false
}

// window is a fixed-capacity ring buffer of samples ordered by time.
// Appends and time-based eviction are O(1) amortized.
type window struct {
	buf   []sample.Sample
	head  int // index of oldest entry
	count int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]sample.Sample, capacity)}
}

func (w *window) append(s sample.Sample) {
	if w.count == len(w.buf) {
		// Full: overwrite the oldest.
		w.buf[w.head] = s
		w.head = (w.head + 1) % len(w.buf)
		return
	}
	w.buf[(w.head+w.count)%len(w.buf)] = s
	w.count++
}

func (w *window) evictBefore(cutoff time.Time) {
	for w.count > 0 && w.buf[w.head].Time.Before(cutoff) {
		w.head = (w.head + 1) % len(w.buf)
		w.count--
	}
}

func (w *window) snapshot() []sample.Sample {
	out := make([]sample.Sample, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

func (w *window) reset() {
	w.head = 0
	w.count = 0
}
