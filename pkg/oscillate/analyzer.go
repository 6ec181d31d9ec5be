// Package oscillate turns finalized peaks into cycles and decides when
// the induced oscillation is stable enough to estimate the process's
// ultimate gain and period (Astrom-Hagglund relay identification).
package oscillate

import (
	"math"
	"time"

	"relaytune/pkg/peaks"
)

// Cycle is a matched pair of consecutive opposite-kind peaks.
type Cycle struct {
	// Amplitude is the difference between the two peak values.
	Amplitude float64
	// HalfPeriod is the time between the two peaks.
	HalfPeriod time.Duration
}

// Estimate is the identified oscillation, emitted only after the
// convergence test passes.
type Estimate struct {
	// Ku is the ultimate gain.
	Ku float64
	// Pu is the ultimate period.
	Pu time.Duration
	// Amplitude is the mean cycle amplitude the estimate derives from.
	Amplitude float64
	// Confidence in [0,1]: how far inside the convergence tolerance
	// the contributing cycles sit (1 = identical cycles).
	Confidence float64
	// Cycles is the number of cycles that passed the convergence test.
	Cycles int
}

// Analyzer accumulates cycles and tests convergence.
type Analyzer struct {
	outputStep float64
	tolerance  float64
	required   int
	maxCycles  int

	lastPeak *peaks.Peak
	cycles   []Cycle // rolling, at most maxCycles entries
	total    int     // cycles ever formed this run
}

// NewAnalyzer creates an analyzer. outputStep is the relay step
// magnitude used in the Ku formula. tolerance is the relative deviation
// allowed between converged cycles. required is the number of recent
// cycles that must agree (minimum 2). maxCycles is the budget after
// which the run is declared non-convergent.
func NewAnalyzer(outputStep, tolerance float64, required, maxCycles int) *Analyzer {
	if required < 2 {
		required = 2
	}
	if maxCycles < required {
		maxCycles = required
	}
	return &Analyzer{
		outputStep: outputStep,
		tolerance:  tolerance,
		required:   required,
		maxCycles:  maxCycles,
		cycles:     make([]Cycle, 0, maxCycles),
	}
}

// AddPeak feeds a finalized peak. Consecutive opposite-kind peaks form
// a cycle; a same-kind successor replaces its predecessor (the detector
// normally alternates, but a reset can produce a repeat).
func (a *Analyzer) AddPeak(p peaks.Peak) {
	if a.lastPeak == nil || a.lastPeak.Kind == p.Kind {
		cp := p
		a.lastPeak = &cp
		return
	}
	c := Cycle{
		Amplitude:  math.Abs(p.Value - a.lastPeak.Value),
		HalfPeriod: p.Time.Sub(a.lastPeak.Time),
	}
	cp := p
	a.lastPeak = &cp

	if len(a.cycles) == a.maxCycles {
		copy(a.cycles, a.cycles[1:])
		a.cycles = a.cycles[:len(a.cycles)-1]
	}
	a.cycles = append(a.cycles, c)
	a.total++
}

// CycleCount returns the number of cycles formed since the last reset.
func (a *Analyzer) CycleCount() int {
	return a.total
}

// Converged tests the most recent cycles for stability and, when they
// agree, returns the oscillation estimate.
func (a *Analyzer) Converged() (Estimate, bool) {
	if len(a.cycles) < a.required {
		return Estimate{}, false
	}
	recent := a.cycles[len(a.cycles)-a.required:]

	meanAmp := 0.0
	meanHalf := 0.0
	for _, c := range recent {
		meanAmp += c.Amplitude
		meanHalf += float64(c.HalfPeriod)
	}
	meanAmp /= float64(len(recent))
	meanHalf /= float64(len(recent))
	if meanAmp <= 0 || meanHalf <= 0 {
		return Estimate{}, false
	}

	worst := 0.0
	for _, c := range recent {
		ampDev := math.Abs(c.Amplitude-meanAmp) / meanAmp
		halfDev := math.Abs(float64(c.HalfPeriod)-meanHalf) / meanHalf
		worst = math.Max(worst, math.Max(ampDev, halfDev))
	}
	if worst > a.tolerance {
		return Estimate{}, false
	}

	return Estimate{
		Ku:         4 * a.outputStep / (math.Pi * meanAmp),
		Pu:         time.Duration(2 * meanHalf),
		Amplitude:  meanAmp,
		Confidence: 1 - worst,
		Cycles:     len(recent),
	}, true
}

// Exhausted reports whether the cycle budget is spent without
// convergence. The caller maps this to a terminal failure.
func (a *Analyzer) Exhausted() bool {
	if a.total < a.maxCycles {
		return false
	}
	_, ok := a.Converged()
	return !ok
}

// Reset discards all accumulated cycles and peak state.
func (a *Analyzer) Reset() {
	a.lastPeak = nil
	a.cycles = a.cycles[:0]
	a.total = 0
}
