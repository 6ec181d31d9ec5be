// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package autotune

import "testing"

func TestProgress(t *testing.T) {
	cases := []struct {
		name     string
		state    State
		cycles   int
		expected int
		want     float64
	}{
		{"idle", StateOff, 0, 5, 0},
		{"idle ignores cycles", StateOff, 3, 5, 0},
		{"no cycles yet", StateStepUp, 0, 5, 0},
		{"partial", StateStepUp, 2, 5, 40},
		{"step down counts the same", StateStepDown, 2, 5, 40},
		{"capped below success", StateStepUp, 5, 5, 99},
		{"overshoot still capped", StateStepDown, 12, 5, 99},
		{"success", StateSucceeded, 3, 5, 100},
		{"failure keeps estimate", StateFailed, 2, 5, 40},
		{"zero expected", StateStepUp, 2, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Progress(tc.state, tc.cycles, tc.expected); got != tc.want {
				t.Fatalf("Progress(%v, %d, %d) = %v, want %v",
					tc.state, tc.cycles, tc.expected, got, tc.want)
			}
		})
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateOff:       "off",
		StateStepUp:    "step_up",
		StateStepDown:  "step_down",
		StateSucceeded: "succeeded",
		StateFailed:    "failed",
		State(99):      "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
	if StateOff.Terminal() || StateStepUp.Terminal() || StateStepDown.Terminal() {
		t.Error("non-terminal state reported terminal")
	}
	if !StateSucceeded.Terminal() || !StateFailed.Terminal() {
		t.Error("terminal state not reported terminal")
	}
}
