// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package metrics exports session progress to Prometheus. The three
// gauges mirror the per-session progress channels: completion percent,
// state code and elapsed seconds.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaytune/pkg/autotune"
)

var (
	progressGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaytune_progress_percent",
		Help: "Estimated tuning run completion, 0 to 100.",
	}, []string{"session"})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaytune_state_code",
		Help: "Session state: 0 off, 1 step up, 2 step down, 3 succeeded, 4 failed.",
	}, []string{"session"})

	elapsedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaytune_elapsed_seconds",
		Help: "Elapsed time of the current or last run.",
	}, []string{"session"})

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaytune_runs_total",
		Help: "Completed tuning runs by outcome.",
	}, []string{"session", "outcome"})
)

// Register adds the collectors to reg. Re-registration is tolerated so
// tests and restarting components can share a registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		progressGauge, stateGauge, elapsedGauge, runsTotal,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Sink feeds session progress reports into the collectors. It counts
// a run once when the state first turns terminal.
type Sink struct {
	mu   sync.Mutex
	last map[string]autotune.State
}

// NewSink creates a sink.
func NewSink() *Sink {
	return &Sink{last: make(map[string]autotune.State)}
}

// Report implements autotune.ProgressSink.
func (s *Sink) Report(session string, progress float64, state autotune.State, elapsed time.Duration) {
	progressGauge.WithLabelValues(session).Set(progress)
	stateGauge.WithLabelValues(session).Set(float64(state))
	elapsedGauge.WithLabelValues(session).Set(elapsed.Seconds())

	s.mu.Lock()
	prev, seen := s.last[session]
	s.last[session] = state
	s.mu.Unlock()

	if state.Terminal() && (!seen || !prev.Terminal()) {
		outcome := "succeeded"
		if state == autotune.StateFailed {
			outcome = "failed"
		}
		runsTotal.WithLabelValues(session, outcome).Inc()
	}
}
