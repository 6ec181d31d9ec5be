// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package drivers binds physical probes and actuators to the engine's
// measurement and relay interfaces.
package drivers

import (
	"sync"
	"time"

	"relaytune/pkg/log"
)

// DefaultHamiltonRegister is the primary measurement register on
// Hamilton Arc sensors (dissolved oxygen, pH).
const DefaultHamiltonRegister = 2089

// registerReader is the slice of the Modbus client the probe needs.
type registerReader interface {
	ReadFloat(unit byte, start uint16) (float64, error)
}

// HamiltonDO polls a Hamilton Arc probe over Modbus RTU. Failed reads
// fall back to the cached value so the sampler's staleness check, not
// a transient bus error, decides when the measurement is unusable.
type HamiltonDO struct {
	reader   registerReader
	unit     byte
	register uint16
	logger   *log.Logger

	mu    sync.Mutex
	value float64
	at    time.Time
	valid bool
}

// NewHamiltonDO creates a probe driver. register 0 selects the default
// measurement register.
func NewHamiltonDO(reader registerReader, unit byte, register uint16) *HamiltonDO {
	if register == 0 {
		register = DefaultHamiltonRegister
	}
	return &HamiltonDO{
		reader:   reader,
		unit:     unit,
		register: register,
		logger:   log.GetLogger("hamilton"),
	}
}

// Latest reads the probe and returns the measurement. On a bus error
// the last good value and its original timestamp are returned.
func (h *HamiltonDO) Latest() (float64, time.Time, bool) {
	value, err := h.reader.ReadFloat(h.unit, h.register)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.logger.WarnFields("probe read failed", log.Fields{
			"unit": h.unit, "register": h.register, "error": err.Error()})
		return h.value, h.at, h.valid
	}
	h.value = value
	h.at = time.Now()
	h.valid = true
	return h.value, h.at, true
}
