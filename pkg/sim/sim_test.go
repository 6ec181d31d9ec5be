// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

import (
	"math"
	"testing"
	"time"
)

func TestNewRequiresTimeConstant(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted a zero time constant")
	}
}

func TestStartsAtAmbient(t *testing.T) {
	p, err := New(Config{Ambient: 5, TimeConstant: 10 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Value() != 5 {
		t.Fatalf("initial value = %v, want ambient 5", p.Value())
	}
}

func TestStepResponse(t *testing.T) {
	p, err := New(Config{
		Gain:         0.05,
		TimeConstant: 10 * time.Second,
		Ambient:      5,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base
	p.SetClock(func() time.Time { return now })

	p.Latest() // anchor the integrator
	if err := p.SetValue(40); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	// One time constant after a step to a steady state of 7 the value
	// must have covered 1-1/e of the distance from 5.
	now = base.Add(10 * time.Second)
	v, _, ok := p.Latest()
	if !ok {
		t.Fatal("Latest not ok")
	}
	want := 5 + 2*(1-math.Exp(-1))
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("value after one tau = %v, want %v", v, want)
	}

	// Far out the value settles at the steady state.
	now = base.Add(10 * time.Minute)
	v, _, _ = p.Latest()
	if math.Abs(v-7) > 1e-3 {
		t.Fatalf("settled value = %v, want 7", v)
	}
}

func TestSetDutyMapsToMeanInput(t *testing.T) {
	p, err := New(Config{Gain: 1, TimeConstant: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.SetDuty(3*time.Second, 10*time.Second); err != nil {
		t.Fatalf("SetDuty: %v", err)
	}
	if p.Input() != 30 {
		t.Fatalf("input = %v, want 30", p.Input())
	}
	if err := p.SetDuty(time.Second, 0); err == nil {
		t.Fatal("SetDuty accepted zero period")
	}
}

func TestNoiseIsBounded(t *testing.T) {
	p, err := New(Config{
		Ambient:      5,
		TimeConstant: 10 * time.Second,
		Noise:        0.1,
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return now })
	for i := 0; i < 1000; i++ {
		now = now.Add(time.Second)
		v, _, _ := p.Latest()
		if math.Abs(v-5) > 0.1+1e-9 {
			t.Fatalf("noisy value %v outside band around 5", v)
		}
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() []float64 {
		p, err := New(Config{
			Ambient:      5,
			TimeConstant: 10 * time.Second,
			Noise:        0.05,
			Seed:         7,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		p.SetClock(func() time.Time { return now })
		var out []float64
		for i := 0; i < 50; i++ {
			now = now.Add(time.Second)
			v, _, _ := p.Latest()
			out = append(out, v)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverge at sample %d: %v vs %v", i, a[i], b[i])
		}
	}
}
