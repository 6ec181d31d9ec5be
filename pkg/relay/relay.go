// Package relay translates the autotune engine's logical HIGH/LOW relay
// level into concrete actuator commands: a clamped continuous setpoint
// for flow controllers and valves, or a time-proportioned on/off burst
// for heaters, pumps and solenoids.
package relay

import (
	"errors"
	"time"
)

// Relay driver errors.
var (
	ErrNoActuator    = errors.New("relay: no actuator for configured output type")
	ErrBadOutputKind = errors.New("relay: unknown output kind")
	ErrBadRange      = errors.New("relay: output min must be below max")
	ErrBadStep       = errors.New("relay: output step must be positive")
)

// Level is the logical relay state.
type Level int

const (
	// Low is the relay's low extreme.
	Low Level = iota
	// High is the relay's high extreme.
	High
)

// String returns "low" or "high".
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Direction is the sense in which the actuator pushes the measurement.
type Direction int

const (
	// Raise means the actuator increases the measurement (heat, aerate).
	Raise Direction = iota
	// Lower means the actuator decreases the measurement (cool, acidify).
	Lower
)

// String returns "raise" or "lower".
func (d Direction) String() string {
	if d == Lower {
		return "lower"
	}
	return "raise"
}

// OutputKind selects how relay levels are encoded for the actuator.
type OutputKind int

const (
	// Continuous encodes levels as numeric setpoints (MFC, PWM, valve).
	Continuous OutputKind = iota
	// DutyCycle encodes levels as on-seconds within a fixed period.
	DutyCycle
)

// ContinuousActuator accepts a numeric command, e.g. a flow setpoint.
type ContinuousActuator interface {
	SetValue(value float64) error
}

// DutyCycleActuator accepts a time-proportioned command: on for `on`
// out of each `period`.
type DutyCycleActuator interface {
	SetDuty(on, period time.Duration) error
}

// Config describes how relay levels map onto actuator commands.
type Config struct {
	Kind      OutputKind
	Direction Direction

	// Base is the continuous output the relay steps around
	// (the idle/initial setpoint for continuous actuators).
	Base float64

	// Step is the relay magnitude: setpoint delta for continuous
	// outputs, on-seconds for duty-cycle outputs.
	Step float64

	// Min and Max clamp continuous commands.
	Min float64
	Max float64

	// Period is the duty-cycle window. Required for DutyCycle outputs.
	Period time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Step <= 0 {
		return ErrBadStep
	}
	switch c.Kind {
	case Continuous:
		if c.Min >= c.Max {
			return ErrBadRange
		}
	case DutyCycle:
		if c.Period <= 0 {
			return errors.New("relay: duty-cycle period must be positive")
		}
		if time.Duration(c.Step*float64(time.Second)) > c.Period {
			return errors.New("relay: output step exceeds duty-cycle period")
		}
	default:
		return ErrBadOutputKind
	}
	return nil
}

// Driver applies relay levels to an actuator.
type Driver struct {
	cfg  Config
	cont ContinuousActuator
	duty DutyCycleActuator

	lastValue float64
	lastOn    time.Duration
}

// NewDriver creates a relay driver. The actuator matching cfg.Kind must
// be non-nil; the other may be nil.
func NewDriver(cfg Config, cont ContinuousActuator, duty DutyCycleActuator) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case Continuous:
		if cont == nil {
			return nil, ErrNoActuator
		}
	case DutyCycle:
		if duty == nil {
			return nil, ErrNoActuator
		}
	}
	return &Driver{cfg: cfg, cont: cont, duty: duty}, nil
}

// Apply commands the actuator to the given relay level.
func (d *Driver) Apply(level Level) error {
	switch d.cfg.Kind {
	case Continuous:
		return d.applyContinuous(level)
	case DutyCycle:
		return d.applyDuty(level)
	}
	return ErrBadOutputKind
}

func (d *Driver) applyContinuous(level Level) error {
	// For a "lower" process the high relay level must decrease the
	// command, so the step sign flips.
	step := d.cfg.Step
	if d.cfg.Direction == Lower {
		step = -step
	}
	value := d.cfg.Base
	if level == High {
		value += step
	} else {
		value -= step
	}
	value = clamp(value, d.cfg.Min, d.cfg.Max)
	d.lastValue = value
	return d.cont.SetValue(value)
}

func (d *Driver) applyDuty(level Level) error {
	on := time.Duration(0)
	if level == High {
		on = time.Duration(d.cfg.Step * float64(time.Second))
	}
	d.lastOn = on
	return d.duty.SetDuty(on, d.cfg.Period)
}

// Idle unconditionally commands the actuator to its safe idle state:
// the configured minimum for continuous outputs, zero duty otherwise.
// It is issued on every terminal transition and on deactivation, even
// mid-cycle.
func (d *Driver) Idle() error {
	switch d.cfg.Kind {
	case Continuous:
		d.lastValue = d.cfg.Min
		return d.cont.SetValue(d.cfg.Min)
	case DutyCycle:
		d.lastOn = 0
		return d.duty.SetDuty(0, d.cfg.Period)
	}
	return ErrBadOutputKind
}

// LastCommand returns the last continuous value and duty on-time issued,
// for status reporting.
func (d *Driver) LastCommand() (value float64, on time.Duration) {
	return d.lastValue, d.lastOn
}

// Kind returns the configured output kind.
func (d *Driver) Kind() OutputKind {
	return d.cfg.Kind
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
