// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"time"

	"relaytune/pkg/autotune"
	"relaytune/pkg/config"
	"relaytune/pkg/drivers"
	"relaytune/pkg/log"
	"relaytune/pkg/modbus"
	"relaytune/pkg/relay"
	"relaytune/pkg/sample"
	"relaytune/pkg/sim"
)

// sessionBuilder wires configured sessions to their hardware. Modbus
// clients are shared per serial port since one RTU bus carries several
// units.
type sessionBuilder struct {
	logger *log.Logger
	buses  map[string]*modbus.Client
	closer []func()
}

func newSessionBuilder(logger *log.Logger) *sessionBuilder {
	return &sessionBuilder{
		logger: logger,
		buses:  make(map[string]*modbus.Client),
	}
}

// Close releases every bus and driver the builder opened.
func (b *sessionBuilder) Close() {
	for _, fn := range b.closer {
		fn()
	}
	for port, client := range b.buses {
		if err := client.Close(); err != nil {
			b.logger.Warn("closing bus %s: %v", port, err)
		}
	}
}

func (b *sessionBuilder) bus(sc config.SerialConfig) (*modbus.Client, error) {
	if sc.Port == "" {
		return nil, fmt.Errorf("serial port required")
	}
	if client, ok := b.buses[sc.Port]; ok {
		return client, nil
	}
	cfg := modbus.DefaultConfig(sc.Port)
	if sc.Baud != 0 {
		cfg.Baud = sc.Baud
	}
	client, err := modbus.Dial(cfg)
	if err != nil {
		return nil, err
	}
	b.buses[sc.Port] = client
	return client, nil
}

// Build constructs one session from its configuration.
func (b *sessionBuilder) Build(sc *config.SessionConfig, sink autotune.ProgressSink) (*autotune.Session, error) {
	// A session simulating both sides closes the loop on one plant.
	var plant *sim.Process
	if sc.Measurement.Driver == "sim" || sc.Output.Driver == "sim" {
		var err error
		plant, err = sim.New(sim.Config{
			Gain:         0.05,
			TimeConstant: time.Minute,
			Ambient:      sc.Tune.Setpoint - 2,
		})
		if err != nil {
			return nil, err
		}
	}

	source, err := b.buildSource(sc, plant)
	if err != nil {
		return nil, fmt.Errorf("measurement: %w", err)
	}
	cont, duty, err := b.buildActuator(sc, plant)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	driver, err := relay.NewDriver(sc.RelayConfig(), cont, duty)
	if err != nil {
		return nil, err
	}
	sampler := sample.NewSampler(source, sc.Measurement.MaxAge.Std())
	return autotune.NewSession(sc.ID, sc.Name, sc.TuneParams(), sampler,
		driver, sink, b.logger.WithPrefix("session"))
}

func (b *sessionBuilder) buildSource(sc *config.SessionConfig, plant *sim.Process) (sample.Source, error) {
	switch sc.Measurement.Driver {
	case "hamilton-do":
		client, err := b.bus(sc.Measurement.Serial)
		if err != nil {
			return nil, err
		}
		return drivers.NewHamiltonDO(client, sc.Measurement.Serial.UnitID,
			sc.Measurement.Serial.Register), nil
	case "mqtt":
		src, err := drivers.NewMQTTSource(mqttOptions(sc.Measurement.MQTT))
		if err != nil {
			return nil, err
		}
		b.closer = append(b.closer, src.Close)
		return src, nil
	case "sim":
		return plant, nil
	}
	return nil, fmt.Errorf("unknown driver %q", sc.Measurement.Driver)
}

func (b *sessionBuilder) buildActuator(sc *config.SessionConfig, plant *sim.Process) (relay.ContinuousActuator, relay.DutyCycleActuator, error) {
	switch sc.Output.Driver {
	case "alicat-mfc":
		client, err := b.bus(sc.Output.Serial)
		if err != nil {
			return nil, nil, err
		}
		return drivers.NewAlicatMFC(client, sc.Output.Serial.UnitID,
			sc.Output.Serial.Register), nil, nil
	case "gpio":
		g, err := drivers.NewGPIORelay(sc.Output.GPIOPin)
		if err != nil {
			return nil, nil, err
		}
		b.closer = append(b.closer, func() { g.Close() })
		return nil, g, nil
	case "mqtt":
		a, err := drivers.NewMQTTActuator(mqttOptions(sc.Output.MQTT))
		if err != nil {
			return nil, nil, err
		}
		b.closer = append(b.closer, a.Close)
		return a, a, nil
	case "sim":
		return plant, plant, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", sc.Output.Driver)
}

func mqttOptions(mc config.MQTTConfig) drivers.MQTTOptions {
	return drivers.MQTTOptions{
		Broker:   mc.Broker,
		ClientID: mc.ClientID,
		Username: mc.Username,
		Password: mc.Password,
		Topic:    mc.Topic,
		QoS:      mc.QoS,
	}
}
