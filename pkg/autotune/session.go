// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package autotune runs relay-feedback tuning sessions. A session
// drives the actuator between two output levels around the setpoint,
// watches the process oscillate, and derives PID gains from the
// sustained limit cycle.
package autotune

import (
	"errors"
	"math"
	"sync"
	"time"

	"relaytune/pkg/log"
	"relaytune/pkg/oscillate"
	"relaytune/pkg/peaks"
	"relaytune/pkg/relay"
	"relaytune/pkg/rules"
	"relaytune/pkg/sample"
)

var (
	ErrActive     = errors.New("autotune: session already active")
	ErrBadParams  = errors.New("autotune: invalid parameters")
	ErrNilSampler = errors.New("autotune: sampler is required")
	ErrNilDriver  = errors.New("autotune: relay driver is required")
)

// State is the run state of a session. The numeric values are stable
// and are exported on the progress and status surfaces.
type State int

const (
	StateOff State = iota
	StateStepUp
	StateStepDown
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateStepUp:
		return "step_up"
	case StateStepDown:
		return "step_down"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// FailureReason explains a StateFailed outcome.
type FailureReason string

const (
	FailMeasurementUnavailable FailureReason = "measurement unavailable"
	FailPreflightNoResponse    FailureReason = "pre-flight: no measurable response"
	FailNoConvergence          FailureReason = "no convergence within cycle budget"
	FailActuator               FailureReason = "actuator command failed"
	FailCancelled              FailureReason = "cancelled"
)

// Params configures a tuning run.
type Params struct {
	Setpoint  float64
	NoiseBand float64
	Period    time.Duration
	Direction relay.Direction

	// OutputStep is the relay amplitude used in the ultimate gain
	// computation. It must match the step the relay driver applies.
	OutputStep float64

	Lookback             time.Duration
	ConvergenceTolerance float64
	ConvergenceCycles    int
	MaxCycles            int
	ExpectedCycles       int

	Preflight         bool
	PreflightMinDelta float64
	PreflightWindow   time.Duration
}

// Validate checks the parameters and fills in defaults for the
// optional fields.
func (p *Params) Validate() error {
	if p.NoiseBand <= 0 {
		return errors.New("autotune: noise_band must be positive")
	}
	if p.Period <= 0 {
		return errors.New("autotune: period must be positive")
	}
	if p.OutputStep <= 0 {
		return errors.New("autotune: output_step must be positive")
	}
	if p.Lookback <= 0 {
		return errors.New("autotune: lookback must be positive")
	}
	if p.ConvergenceTolerance <= 0 {
		p.ConvergenceTolerance = 0.05
	}
	if p.ConvergenceCycles <= 0 {
		p.ConvergenceCycles = 3
	}
	if p.ConvergenceCycles < 2 {
		p.ConvergenceCycles = 2
	}
	if p.MaxCycles <= 0 {
		p.MaxCycles = 20
	}
	if p.MaxCycles < p.ConvergenceCycles {
		return errors.New("autotune: max_cycles must not be below convergence_cycles")
	}
	if p.ExpectedCycles <= 0 {
		p.ExpectedCycles = p.ConvergenceCycles + 2
	}
	if p.Preflight {
		if p.PreflightMinDelta <= 0 {
			p.PreflightMinDelta = p.NoiseBand / 2
		}
		if p.PreflightWindow <= 0 {
			p.PreflightWindow = 2 * p.Period
			if p.PreflightWindow > time.Minute {
				p.PreflightWindow = time.Minute
			}
		}
	}
	return nil
}

// Result carries the outcome of a successful run.
type Result struct {
	Ku         float64                    `json:"ku"`
	Pu         time.Duration              `json:"pu"`
	Amplitude  float64                    `json:"amplitude"`
	Confidence float64                    `json:"confidence"`
	Cycles     int                        `json:"cycles"`
	Elapsed    time.Duration              `json:"elapsed"`
	Gains      map[rules.Rule]rules.Gains `json:"gains"`
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	State    State         `json:"state_code"`
	Reason   FailureReason `json:"reason,omitempty"`
	Progress float64       `json:"progress"`
	Elapsed  time.Duration `json:"elapsed"`
	Cycles   int           `json:"cycles"`
	Result   *Result       `json:"result,omitempty"`
}

// ProgressSink receives progress updates. Implementations must not
// call back into the session from Report.
type ProgressSink interface {
	Report(session string, progress float64, state State, elapsed time.Duration)
}

// Session is one relay-feedback tuning run bound to a measurement
// source and an actuator. It is safe for concurrent use; Tick is
// expected to be driven by a single timer.
type Session struct {
	id      string
	name    string
	params  Params
	sampler *sample.Sampler
	driver  *relay.Driver
	sink    ProgressSink
	logger  *log.Logger

	mu       sync.Mutex
	state    State
	reason   FailureReason
	active   bool
	idled    bool
	started  time.Time
	elapsed  time.Duration
	result   *Result
	detector *peaks.Detector
	analyzer *oscillate.Analyzer

	baseline    float64
	baselineOK  bool
	preflightBy time.Time
}

// NewSession creates an inactive session.
func NewSession(id, name string, params Params, sampler *sample.Sampler,
	driver *relay.Driver, sink ProgressSink, logger *log.Logger) (*Session, error) {
	if sampler == nil {
		return nil, ErrNilSampler
	}
	if driver == nil {
		return nil, ErrNilDriver
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLogger("autotune")
	}
	capacity := int(params.Lookback/params.Period) + 1
	return &Session{
		id:       id,
		name:     name,
		params:   params,
		sampler:  sampler,
		driver:   driver,
		sink:     sink,
		logger:   logger,
		detector: peaks.NewDetector(params.NoiseBand, params.Lookback, capacity),
		analyzer: oscillate.NewAnalyzer(params.OutputStep, params.ConvergenceTolerance,
			params.ConvergenceCycles, params.MaxCycles),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the human readable session name.
func (s *Session) Name() string { return s.name }

// Params returns the run parameters.
func (s *Session) Params() Params { return s.params }

// Activate starts a run. A previous terminal state is cleared. Unless
// pre-flight is enabled the relay is driven high immediately.
func (s *Session) Activate(now time.Time) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrActive
	}
	s.detector.Reset()
	s.analyzer.Reset()
	s.reason = ""
	s.result = nil
	s.idled = false
	s.started = now
	s.elapsed = 0
	s.active = true

	var err error
	if s.params.Preflight {
		s.state = StateOff
		s.baselineOK = false
		s.preflightBy = now.Add(s.params.PreflightWindow)
	} else {
		if err = s.driver.Apply(relay.High); err != nil {
			s.active = false
			s.state = StateOff
		} else {
			s.state = StateStepUp
		}
	}
	snap := s.statusLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorFields("activate failed", log.Fields{
			"session": s.id, "error": err.Error()})
		return err
	}
	s.logger.InfoFields("session activated", log.Fields{
		"session": s.id, "setpoint": s.params.Setpoint,
		"preflight": s.params.Preflight})
	s.publish(snap)
	return nil
}

// Deactivate cancels an active run. The run fails with FailCancelled
// and the actuator is commanded idle. Deactivating an inactive session
// is a no-op.
func (s *Session) Deactivate() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.failLocked(FailCancelled)
	snap := s.statusLocked()
	s.mu.Unlock()

	s.logger.InfoFields("session cancelled", log.Fields{"session": s.id})
	s.publish(snap)
	return nil
}

// Tick advances the run by one sampling period. It returns false once
// the session has reached a terminal state and needs no further ticks.
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.elapsed = now.Sub(s.started)

	r := s.sampler.Read()
	if r.Status != sample.Fresh {
		s.logger.WarnFields("measurement not usable", log.Fields{
			"session": s.id, "status": r.Status.String()})
		s.failLocked(FailMeasurementUnavailable)
	} else {
		switch s.state {
		case StateOff:
			s.preflightLocked(now, r.Sample.Value)
		case StateStepUp, StateStepDown:
			s.relayLocked(r.Sample)
		}
	}

	active := s.active
	snap := s.statusLocked()
	s.mu.Unlock()

	s.publish(snap)
	return active
}

// preflightLocked verifies the plant responds to the relay before the
// oscillation phase begins. The first usable sample is the baseline
// and triggers the initial step; the run fails if the measurement does
// not move by the configured delta within the window.
func (s *Session) preflightLocked(now time.Time, value float64) {
	if !s.baselineOK {
		s.baseline = value
		s.baselineOK = true
		if err := s.driver.Apply(relay.High); err != nil {
			s.logger.ErrorFields("relay apply failed", log.Fields{
				"session": s.id, "error": err.Error()})
			s.failLocked(FailActuator)
		}
		return
	}
	if math.Abs(value-s.baseline) >= s.params.PreflightMinDelta {
		s.logger.InfoFields("pre-flight passed", log.Fields{
			"session": s.id, "delta": math.Abs(value - s.baseline)})
		s.state = StateStepUp
		return
	}
	if now.After(s.preflightBy) {
		s.failLocked(FailPreflightNoResponse)
	}
}

// relayLocked runs the bang-bang logic for one sample and checks the
// oscillation analysis for an outcome.
func (s *Session) relayLocked(smp sample.Sample) {
	if pk, ok := s.detector.Observe(smp); ok {
		s.analyzer.AddPeak(pk)
		if est, done := s.analyzer.Converged(); done {
			s.succeedLocked(est)
			return
		}
		if s.analyzer.Exhausted() {
			s.failLocked(FailNoConvergence)
			return
		}
	}

	above := smp.Value > s.params.Setpoint+s.params.NoiseBand
	below := smp.Value < s.params.Setpoint-s.params.NoiseBand
	if s.params.Direction == relay.Lower {
		above, below = below, above
	}

	switch {
	case s.state == StateStepUp && above:
		if err := s.driver.Apply(relay.Low); err != nil {
			s.logger.ErrorFields("relay apply failed", log.Fields{
				"session": s.id, "error": err.Error()})
			s.failLocked(FailActuator)
			return
		}
		s.state = StateStepDown
	case s.state == StateStepDown && below:
		if err := s.driver.Apply(relay.High); err != nil {
			s.logger.ErrorFields("relay apply failed", log.Fields{
				"session": s.id, "error": err.Error()})
			s.failLocked(FailActuator)
			return
		}
		s.state = StateStepUp
	}
}

func (s *Session) succeedLocked(est oscillate.Estimate) {
	s.result = &Result{
		Ku:         est.Ku,
		Pu:         est.Pu,
		Amplitude:  est.Amplitude,
		Confidence: est.Confidence,
		Cycles:     s.analyzer.CycleCount(),
		Elapsed:    s.elapsed,
		Gains:      rules.ComputeAll(est.Ku, est.Pu),
	}
	s.state = StateSucceeded
	s.active = false
	s.idleLocked()
	s.logger.InfoFields("session succeeded", log.Fields{
		"session": s.id, "ku": est.Ku, "pu": est.Pu.String(),
		"cycles": s.result.Cycles})
}

func (s *Session) failLocked(reason FailureReason) {
	s.state = StateFailed
	s.reason = reason
	s.active = false
	s.idleLocked()
	s.logger.WarnFields("session failed", log.Fields{
		"session": s.id, "reason": string(reason)})
}

// idleLocked commands the safe output exactly once per run.
func (s *Session) idleLocked() {
	if s.idled {
		return
	}
	s.idled = true
	if err := s.driver.Idle(); err != nil {
		s.logger.ErrorFields("idle command failed", log.Fields{
			"session": s.id, "error": err.Error()})
	}
}

func (s *Session) statusLocked() Status {
	return Status{
		ID:       s.id,
		Name:     s.name,
		State:    s.state,
		Reason:   s.reason,
		Progress: Progress(s.state, s.analyzer.CycleCount(), s.params.ExpectedCycles),
		Elapsed:  s.elapsed,
		Cycles:   s.analyzer.CycleCount(),
		Result:   s.result,
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Result returns the outcome of the last run, or nil.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) publish(snap Status) {
	if s.sink == nil {
		return
	}
	s.sink.Report(s.id, snap.Progress, snap.State, snap.Elapsed)
}
