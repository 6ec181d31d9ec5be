// Package sample defines the measurement types consumed by the autotune
// engine and the sampler that classifies readings by age.
package sample

import (
	"time"
)

// Sample is a single measurement value and the time it was taken.
type Sample struct {
	Time  time.Time
	Value float64
}

// Status classifies the outcome of a sampler read.
type Status int

const (
	// Fresh means a measurement exists and is within the maximum age.
	Fresh Status = iota

	// Stale means a measurement exists but is older than the maximum age.
	Stale

	// Missing means no measurement is available at all.
	Missing
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Reading is the result of one sampler read. Sample is only meaningful
// when Status is Fresh or Stale.
type Reading struct {
	Sample Sample
	Status Status
}

// Source supplies the latest measurement from a sensor. Implementations
// must not block past the session's poll period; a read that cannot
// complete in time should return its cached value or ok=false.
type Source interface {
	// Latest returns the most recent value, the time it was measured,
	// and whether any measurement exists.
	Latest() (value float64, at time.Time, ok bool)
}

// Sampler reads a Source and classifies the result as fresh, stale or
// missing based on the configured maximum age. It performs no retries;
// the caller re-reads on its next poll cycle.
type Sampler struct {
	src    Source
	maxAge time.Duration
	now    func() time.Time
}

// NewSampler creates a sampler. A maxAge of zero disables staleness
// classification (any existing measurement is fresh).
func NewSampler(src Source, maxAge time.Duration) *Sampler {
	return &Sampler{
		src:    src,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests and simulated runs.
func (s *Sampler) SetClock(now func() time.Time) {
	s.now = now
}

// Read fetches the latest measurement and classifies it.
func (s *Sampler) Read() Reading {
	value, at, ok := s.src.Latest()
	if !ok {
		return Reading{Status: Missing}
	}
	r := Reading{Sample: Sample{Time: at, Value: value}, Status: Fresh}
	if s.maxAge > 0 && s.now().Sub(at) > s.maxAge {
		r.Status = Stale
	}
	return r
}
