// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// simtune runs one tuning session against the built-in first-order
// plant under an accelerated virtual clock and prints the PID gains
// every rule derives from the identified ultimate gain and period.
// It is the quickest way to sanity-check tuning parameters before
// pointing the daemon at real hardware.
//
// Usage:
//
//	simtune [options]
//
// Options:
//
//	-setpoint float  Target measurement (default 7.0)
//	-gain float      Plant gain per unit of actuation (default 0.05)
//	-tau duration    Plant time constant (default 50s)
//	-ambient float   Plant value at zero actuation (default 5.0)
//	-noise float     Measurement noise half-width (default 0)
//	-base float      Output level holding the setpoint (default 40)
//	-step float      Relay output step (default 20)
//	-band float      Hysteresis noise band (default 0.3)
//	-period duration Sampling period (default 500ms)
//	-v               Log each relay flip and peak
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"relaytune/pkg/autotune"
	"relaytune/pkg/log"
	"relaytune/pkg/relay"
	"relaytune/pkg/rules"
	"relaytune/pkg/sample"
	"relaytune/pkg/sim"
)

func main() {
	setpoint := flag.Float64("setpoint", 7.0, "Target measurement")
	gain := flag.Float64("gain", 0.05, "Plant gain per unit of actuation")
	tau := flag.Duration("tau", 50*time.Second, "Plant time constant")
	ambient := flag.Float64("ambient", 5.0, "Plant value at zero actuation")
	noise := flag.Float64("noise", 0, "Measurement noise half-width")
	base := flag.Float64("base", 40, "Output level holding the setpoint")
	step := flag.Float64("step", 20, "Relay output step")
	band := flag.Float64("band", 0.3, "Hysteresis noise band")
	period := flag.Duration("period", 500*time.Millisecond, "Sampling period")
	verbose := flag.Bool("v", false, "Log each relay flip and peak")
	flag.Parse()

	logger := log.New("simtune")
	if *verbose {
		logger.SetLevel(log.LevelDebug)
	} else {
		logger.SetLevel(log.LevelWarn)
	}

	plant, err := sim.New(sim.Config{
		Gain:         *gain,
		TimeConstant: *tau,
		Ambient:      *ambient,
		Noise:        *noise,
	})
	if err != nil {
		fatal(err)
	}

	now := time.Now()
	clock := func() time.Time { return now }
	plant.SetClock(clock)

	driver, err := relay.NewDriver(relay.Config{
		Kind: relay.Continuous,
		Base: *base, Step: *step, Min: 0, Max: 100,
	}, plant, nil)
	if err != nil {
		fatal(err)
	}
	sampler := sample.NewSampler(plant, 0)
	sampler.SetClock(clock)

	sess, err := autotune.NewSession("simtune", "simtune", autotune.Params{
		Setpoint:   *setpoint,
		NoiseBand:  *band,
		Period:     *period,
		OutputStep: *step,
		Lookback:   4 * *tau,
		MaxCycles:  30,
	}, sampler, driver, nil, logger)
	if err != nil {
		fatal(err)
	}

	if err := sess.Activate(now); err != nil {
		fatal(err)
	}
	ticks := 0
	for ; ticks < 200000; ticks++ {
		now = now.Add(*period)
		if !sess.Tick(now) {
			break
		}
	}

	st := sess.Status()
	if st.State != autotune.StateSucceeded {
		fmt.Fprintf(os.Stderr, "tuning failed after %d ticks: %s (%s)\n",
			ticks, st.State, st.Reason)
		os.Exit(1)
	}
	res := sess.Result()

	fmt.Printf("converged after %d cycles (%s simulated)\n",
		res.Cycles, res.Elapsed.Round(time.Second))
	fmt.Printf("Ku = %.4f   Pu = %s   amplitude = %.4f   confidence = %.2f\n\n",
		res.Ku, res.Pu.Round(time.Millisecond), res.Amplitude, res.Confidence)

	names := make([]string, 0, len(res.Gains))
	for rule := range res.Gains {
		names = append(names, string(rule))
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tKP\tKI\tKD")
	for _, name := range names {
		g := res.Gains[rules.Rule(name)]
		fmt.Fprintf(w, "%s\t%.4f\t%.6f\t%.4f\n", name, g.Kp, g.Ki, g.Kd)
	}
	w.Flush()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
