// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package sim provides a first-order process model that stands in for
// a real plant. It implements both the measurement source and the
// actuator interfaces, so a session can be closed on it end to end
// with no hardware and, with an injected clock, no wall time.
package sim

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Config describes the plant.
type Config struct {
	// Gain is the steady-state measurement change per unit of
	// actuation input.
	Gain float64

	// TimeConstant is the first-order lag.
	TimeConstant time.Duration

	// Ambient is the measurement with zero actuation.
	Ambient float64

	// Initial is the starting measurement. Zero means start at
	// Ambient.
	Initial float64

	// Noise is the half-width of uniform measurement noise.
	Noise float64

	Seed int64
}

// Process integrates dv/dt = (Ambient + Gain*u - v) / TimeConstant.
type Process struct {
	mu    sync.Mutex
	cfg   Config
	value float64
	input float64
	last  time.Time
	now   func() time.Time
	rng   *rand.Rand
}

// New creates a process at rest.
func New(cfg Config) (*Process, error) {
	if cfg.TimeConstant <= 0 {
		return nil, errors.New("sim: time constant must be positive")
	}
	initial := cfg.Initial
	if initial == 0 {
		initial = cfg.Ambient
	}
	return &Process{
		cfg:   cfg,
		value: initial,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// SetClock overrides the time source for simulated runs.
func (p *Process) SetClock(now func() time.Time) {
	p.mu.Lock()
	p.now = now
	p.last = time.Time{}
	p.mu.Unlock()
}

// advance integrates the plant up to now with the exact first-order
// step response.
func (p *Process) advance(now time.Time) {
	if p.last.IsZero() {
		p.last = now
		return
	}
	dt := now.Sub(p.last)
	if dt <= 0 {
		return
	}
	p.last = now
	target := p.cfg.Ambient + p.cfg.Gain*p.input
	alpha := 1 - math.Exp(-dt.Seconds()/p.cfg.TimeConstant.Seconds())
	p.value += (target - p.value) * alpha
}

// Latest implements the measurement source.
func (p *Process) Latest() (float64, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.advance(now)
	v := p.value
	if p.cfg.Noise > 0 {
		v += (p.rng.Float64()*2 - 1) * p.cfg.Noise
	}
	return v, now, true
}

// SetValue implements the continuous actuator.
func (p *Process) SetValue(value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(p.now())
	p.input = value
	return nil
}

// SetDuty implements the duty-cycle actuator. The mean input over the
// period is applied, scaled to a 0-100 range.
func (p *Process) SetDuty(on, period time.Duration) error {
	if period <= 0 {
		return errors.New("sim: duty period must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance(p.now())
	p.input = 100 * on.Seconds() / period.Seconds()
	return nil
}

// Value returns the current noiseless measurement without advancing
// the plant.
func (p *Process) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Input returns the current actuation input.
func (p *Process) Input() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}
