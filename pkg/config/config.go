// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config loads the daemon's YAML configuration and converts it
// into the engine's parameter types.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"relaytune/pkg/autotune"
	"relaytune/pkg/relay"
	"relaytune/pkg/rules"
)

// Duration accepts both Go duration strings ("30s", "1m30s") and bare
// numbers, which are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("config: bad duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top level daemon configuration.
type Config struct {
	Daemon   DaemonConfig    `yaml:"daemon"`
	Sessions []SessionConfig `yaml:"sessions"`
}

// DaemonConfig holds process level settings.
type DaemonConfig struct {
	APIAddress     string `yaml:"api_address"`
	MetricsAddress string `yaml:"metrics_address"`
	PidFile        string `yaml:"pid_file"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	LogJSON        bool   `yaml:"log_json"`
}

// SerialConfig addresses a Modbus RTU device on a serial bus.
type SerialConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	UnitID   uint8  `yaml:"unit_id"`
	Register uint16 `yaml:"register"`
}

// MQTTConfig addresses an MQTT topic on a broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// MeasurementConfig selects and configures the measurement source.
type MeasurementConfig struct {
	Driver string       `yaml:"driver"` // hamilton-do, mqtt, sim
	MaxAge Duration     `yaml:"max_age"`
	Serial SerialConfig `yaml:"serial"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// OutputConfig selects and configures the actuator.
type OutputConfig struct {
	Driver    string   `yaml:"driver"`    // alicat-mfc, gpio, mqtt, sim
	Type      string   `yaml:"type"`      // continuous, on_off
	Direction string   `yaml:"direction"` // raise, lower
	Base      float64  `yaml:"base"`
	Step      float64  `yaml:"step"`
	Min       float64  `yaml:"min"`
	Max       float64  `yaml:"max"`
	Period    Duration `yaml:"period"`

	Serial  SerialConfig `yaml:"serial"`
	MQTT    MQTTConfig   `yaml:"mqtt"`
	GPIOPin string       `yaml:"gpio_pin"`
}

// TuneConfig holds the relay-feedback run parameters.
type TuneConfig struct {
	Setpoint             float64  `yaml:"setpoint"`
	Period               Duration `yaml:"period"`
	NoiseBand            float64  `yaml:"noise_band"`
	Lookback             Duration `yaml:"lookback"`
	ConvergenceTolerance float64  `yaml:"convergence_tolerance"`
	ConvergenceCycles    int      `yaml:"convergence_cycles"`
	MaxCycles            int      `yaml:"max_cycles"`
	ExpectedCycles       int      `yaml:"expected_cycles"`
	Preflight            bool     `yaml:"preflight"`
	PreflightMinDelta    float64  `yaml:"preflight_min_delta"`
	PreflightWindow      Duration `yaml:"preflight_window"`
}

// SessionConfig describes one tunable loop.
type SessionConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Autostart bool   `yaml:"autostart"`
	Rule      string `yaml:"rule"`

	Measurement MeasurementConfig `yaml:"measurement"`
	Output      OutputConfig      `yaml:"output"`
	Tune        TuneConfig        `yaml:"tune"`
}

// Default returns the daemon defaults applied before file values.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			APIAddress:     ":8556",
			MetricsAddress: ":9156",
			LogLevel:       "info",
		},
	}
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validDrivers = map[string]bool{
	"hamilton-do": true, "mqtt": true, "sim": true,
}

var validOutputs = map[string]bool{
	"alicat-mfc": true, "gpio": true, "mqtt": true, "sim": true,
}

// Validate checks the configuration and fills per-session defaults.
// Empty session ids are assigned a fresh UUID.
func (c *Config) Validate() error {
	if c.Daemon.APIAddress == "" {
		c.Daemon.APIAddress = ":8556"
	}
	if c.Daemon.MetricsAddress == "" {
		c.Daemon.MetricsAddress = ":9156"
	}
	if c.Daemon.LogLevel == "" {
		c.Daemon.LogLevel = "info"
	}

	if len(c.Sessions) == 0 {
		return errors.New("config: no sessions defined")
	}
	seen := make(map[string]bool, len(c.Sessions))
	for i := range c.Sessions {
		sc := &c.Sessions[i]
		if sc.ID == "" {
			sc.ID = uuid.NewString()
		}
		if seen[sc.ID] {
			return fmt.Errorf("config: duplicate session id %q", sc.ID)
		}
		seen[sc.ID] = true
		if sc.Name == "" {
			sc.Name = sc.ID
		}
		if sc.Rule == "" {
			sc.Rule = string(rules.ZieglerNichols)
		}
		if _, err := rules.Parse(sc.Rule); err != nil {
			return fmt.Errorf("config: session %q: %w", sc.Name, err)
		}
		if err := sc.validate(); err != nil {
			return fmt.Errorf("config: session %q: %w", sc.Name, err)
		}
	}
	return nil
}

func (sc *SessionConfig) validate() error {
	if !validDrivers[sc.Measurement.Driver] {
		return fmt.Errorf("unknown measurement driver %q", sc.Measurement.Driver)
	}
	if !validOutputs[sc.Output.Driver] {
		return fmt.Errorf("unknown output driver %q", sc.Output.Driver)
	}
	switch sc.Output.Type {
	case "":
		sc.Output.Type = "continuous"
	case "continuous", "on_off":
	default:
		return fmt.Errorf("unknown output type %q", sc.Output.Type)
	}
	switch sc.Output.Direction {
	case "", "raise", "lower":
	default:
		return fmt.Errorf("unknown direction %q", sc.Output.Direction)
	}
	if sc.Output.Step <= 0 {
		return errors.New("output step must be positive")
	}
	if sc.Tune.NoiseBand <= 0 {
		return errors.New("noise_band must be positive")
	}
	if sc.Tune.Period <= 0 {
		return errors.New("tune period must be positive")
	}
	if sc.Tune.Lookback <= 0 {
		sc.Tune.Lookback = Duration(30 * time.Second)
	}
	return nil
}

// Direction returns the parsed output direction.
func (sc *SessionConfig) Direction() relay.Direction {
	if sc.Output.Direction == "lower" {
		return relay.Lower
	}
	return relay.Raise
}

// RelayConfig builds the relay driver configuration.
func (sc *SessionConfig) RelayConfig() relay.Config {
	kind := relay.Continuous
	if sc.Output.Type == "on_off" {
		kind = relay.DutyCycle
	}
	return relay.Config{
		Kind:      kind,
		Direction: sc.Direction(),
		Base:      sc.Output.Base,
		Step:      sc.Output.Step,
		Min:       sc.Output.Min,
		Max:       sc.Output.Max,
		Period:    sc.Output.Period.Std(),
	}
}

// TuneParams builds the session run parameters.
func (sc *SessionConfig) TuneParams() autotune.Params {
	return autotune.Params{
		Setpoint:             sc.Tune.Setpoint,
		NoiseBand:            sc.Tune.NoiseBand,
		Period:               sc.Tune.Period.Std(),
		Direction:            sc.Direction(),
		OutputStep:           sc.Output.Step,
		Lookback:             sc.Tune.Lookback.Std(),
		ConvergenceTolerance: sc.Tune.ConvergenceTolerance,
		ConvergenceCycles:    sc.Tune.ConvergenceCycles,
		MaxCycles:            sc.Tune.MaxCycles,
		ExpectedCycles:       sc.Tune.ExpectedCycles,
		Preflight:            sc.Tune.Preflight,
		PreflightMinDelta:    sc.Tune.PreflightMinDelta,
		PreflightWindow:      sc.Tune.PreflightWindow.Std(),
	}
}
