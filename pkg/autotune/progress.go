// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package autotune

// Progress estimates run completion as a percentage. The estimate is
// driven by completed oscillation cycles against the expected cycle
// count and is capped at 99 until the run actually succeeds; a failed
// run keeps the estimate it reached. An idle session reports 0.
func Progress(state State, cycles, expectedCycles int) float64 {
	switch state {
	case StateOff:
		return 0
	case StateSucceeded:
		return 100
	}
	if expectedCycles <= 0 {
		return 0
	}
	p := 100 * float64(cycles) / float64(expectedCycles)
	if p > 99 {
		p = 99
	}
	if p < 0 {
		p = 0
	}
	return p
}
