// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package drivers

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"relaytune/pkg/log"
)

var hostInit sync.Once

// outPin is the slice of gpio.PinIO the relay needs.
type outPin interface {
	Out(l gpio.Level) error
}

// GPIORelay time-proportions a digital output pin: on for the
// commanded duration out of each period. It implements the duty-cycle
// actuator interface for heaters, pumps and solenoid valves.
type GPIORelay struct {
	pin    outPin
	logger *log.Logger

	mu      sync.Mutex
	on      time.Duration
	period  time.Duration
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewGPIORelay opens the named pin ("GPIO17", "P1_11") and returns a
// relay driving it.
func NewGPIORelay(pinName string) (*GPIORelay, error) {
	var initErr error
	hostInit.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("drivers: gpio host init: %w", initErr)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("drivers: no gpio pin %q", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("drivers: gpio %s: %w", pinName, err)
	}
	return newGPIORelay(pin), nil
}

func newGPIORelay(pin outPin) *GPIORelay {
	return &GPIORelay{
		pin:    pin,
		logger: log.GetLogger("gpio"),
		stop:   make(chan struct{}),
	}
}

// SetDuty commands the pin on for `on` out of each `period`. A zero
// on-time holds the pin low without stopping the cycle loop.
func (g *GPIORelay) SetDuty(on, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("drivers: gpio period must be positive")
	}
	if on < 0 {
		on = 0
	}
	if on > period {
		on = period
	}

	g.mu.Lock()
	g.on = on
	g.period = period
	start := !g.running
	if start {
		g.running = true
	}
	g.mu.Unlock()

	if start {
		g.wg.Add(1)
		go g.cycleLoop()
	}
	return nil
}

// Close stops the cycle loop and leaves the pin low.
func (g *GPIORelay) Close() error {
	g.mu.Lock()
	if g.running {
		g.running = false
		close(g.stop)
	}
	g.mu.Unlock()
	g.wg.Wait()
	return g.pin.Out(gpio.Low)
}

func (g *GPIORelay) cycleLoop() {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		on, period := g.on, g.period
		g.mu.Unlock()

		if on > 0 {
			if err := g.pin.Out(gpio.High); err != nil {
				g.logger.ErrorFields("pin write failed", log.Fields{"error": err.Error()})
			}
			if g.sleep(on) {
				return
			}
		}
		if err := g.pin.Out(gpio.Low); err != nil {
			g.logger.ErrorFields("pin write failed", log.Fields{"error": err.Error()})
		}
		if g.sleep(period - on) {
			return
		}
	}
}

// sleep waits for d or until Close. It reports whether to exit.
func (g *GPIORelay) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-g.stop:
			return true
		default:
			return false
		}
	}
	select {
	case <-time.After(d):
		return false
	case <-g.stop:
		return true
	}
}
