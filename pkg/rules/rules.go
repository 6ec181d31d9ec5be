// Package rules derives PID gains from a relay-identified ultimate gain
// and period. The rule set is a closed table of classical closed-form
// tuning rules; each maps (Ku, Pu) to gains through three fixed
// multipliers:
//
//	Kp = kp * Ku
//	Ki = ki * Ku / Pu
//	Kd = kd * Ku * Pu
//
// with Pu in seconds.
package rules

import (
	"errors"
	"sort"
	"time"
)

// ErrUnknownRule is returned for a rule name outside the table.
var ErrUnknownRule = errors.New("rules: unknown tuning rule")

// Rule identifies a tuning rule.
type Rule string

const (
	// ZieglerNichols is the classic closed-loop rule.
	ZieglerNichols Rule = "ziegler-nichols"
	// TyreusLuyben emphasizes robustness over speed.
	TyreusLuyben Rule = "tyreus-luyben"
	// CianconeMarlin is a conservative low-gain variant.
	CianconeMarlin Rule = "ciancone-marlin"
	// PessenIntegral is the aggressive integral-heavy rule.
	PessenIntegral Rule = "pessen-integral"
	// SomeOvershoot tolerates modest overshoot.
	SomeOvershoot Rule = "some-overshoot"
	// NoOvershoot targets no overshoot at all.
	NoOvershoot Rule = "no-overshoot"
	// Brewing suits very slow thermal processes; derivative action
	// is nearly disabled.
	Brewing Rule = "brewing"
)

// Gains is a PID parameter set.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

type coefficients struct {
	kp, ki, kd float64
}

var table = map[Rule]coefficients{
	ZieglerNichols: {0.6, 1.2, 0.075},
	TyreusLuyben:   {0.4545, 0.2066, 0.0721},
	CianconeMarlin: {0.303, 0.1364, 0.0481},
	PessenIntegral: {0.7, 1.75, 0.105},
	SomeOvershoot:  {0.333, 0.667, 0.111},
	NoOvershoot:    {0.2, 0.4, 0.0667},
	Brewing:        {0.25, 0.0417, 0.00625},
}

// All returns every rule in stable order.
func All() []Rule {
	out := make([]Rule, 0, len(table))
	for r := range table {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether r is a known rule.
func Valid(r Rule) bool {
	_, ok := table[r]
	return ok
}

// Parse validates a rule name.
func Parse(s string) (Rule, error) {
	r := Rule(s)
	if !Valid(r) {
		return "", ErrUnknownRule
	}
	return r, nil
}

// Compute derives the gains for one rule. The function is total over
// finite positive (Ku, Pu) and deterministic.
func Compute(r Rule, ku float64, pu time.Duration) (Gains, error) {
	c, ok := table[r]
	if !ok {
		return Gains{}, ErrUnknownRule
	}
	puSec := pu.Seconds()
	return Gains{
		Kp: c.kp * ku,
		Ki: c.ki * ku / puSec,
		Kd: c.kd * ku * puSec,
	}, nil
}

// ComputeAll derives the gains for every rule in the table.
func ComputeAll(ku float64, pu time.Duration) map[Rule]Gains {
	out := make(map[Rule]Gains, len(table))
	for r := range table {
		g, _ := Compute(r, ku, pu)
		out[r] = g
	}
	return out
}
