// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package drivers

import (
	"relaytune/pkg/log"
)

// DefaultAlicatSetpointRegister is the flow setpoint register on
// Alicat mass flow controllers.
const DefaultAlicatSetpointRegister = 1009

// registerWriter is the slice of the Modbus client the MFC needs.
type registerWriter interface {
	WriteFloat(unit byte, start uint16, value float64) error
}

// AlicatMFC drives an Alicat mass flow controller setpoint over
// Modbus RTU. It implements the continuous actuator interface.
type AlicatMFC struct {
	writer   registerWriter
	unit     byte
	register uint16
	logger   *log.Logger
}

// NewAlicatMFC creates an MFC driver. register 0 selects the default
// setpoint register.
func NewAlicatMFC(writer registerWriter, unit byte, register uint16) *AlicatMFC {
	if register == 0 {
		register = DefaultAlicatSetpointRegister
	}
	return &AlicatMFC{
		writer:   writer,
		unit:     unit,
		register: register,
		logger:   log.GetLogger("alicat"),
	}
}

// SetValue writes the flow setpoint.
func (a *AlicatMFC) SetValue(value float64) error {
	a.logger.DebugFields("setpoint write", log.Fields{
		"unit": a.unit, "value": value})
	return a.writer.WriteFloat(a.unit, a.register, value)
}
