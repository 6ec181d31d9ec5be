// Copyright (C) 2026 Relaytune Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// autotuned is the relay-feedback PID autotuning daemon. It drives
// configured control loops through relay oscillation, derives PID
// gains from the sustained limit cycle, and exposes session control
// over HTTP plus progress over Prometheus and WebSocket.
//
// Usage:
//
//	autotuned -config /etc/relaytune.yaml [options]
//
// Options:
//
//	-config string   Configuration file (required)
//	-api string      Override the API listen address
//	-metrics string  Override the metrics listen address
//	-loglevel string Override the configured log level
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relaytune/pkg/api"
	"relaytune/pkg/autotune"
	"relaytune/pkg/config"
	"relaytune/pkg/log"
	"relaytune/pkg/metrics"
	"relaytune/pkg/reactor"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (required)")
	apiAddr := flag.String("api", "", "Override the API listen address")
	metricsAddr := flag.String("metrics", "", "Override the metrics listen address")
	logLevel := flag.String("loglevel", "", "Override the configured log level")
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *apiAddr != "" {
		cfg.Daemon.APIAddress = *apiAddr
	}
	if *metricsAddr != "" {
		cfg.Daemon.MetricsAddress = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Daemon.LogLevel = *logLevel
	}

	logger, err := setupLogging(cfg.Daemon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("autotuned starting, %d session(s) configured", len(cfg.Sessions))

	if cfg.Daemon.PidFile != "" {
		release, err := acquirePidFile(cfg.Daemon.PidFile)
		if err != nil {
			logger.Error("pid file: %v", err)
			os.Exit(1)
		}
		defer release()
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("metrics registration: %v", err)
		os.Exit(1)
	}
	sink := metrics.NewSink()

	r := reactor.New()
	mgr := autotune.NewManager(r, logger.WithPrefix("autotune"))

	builder := newSessionBuilder(logger)
	defer builder.Close()
	var autostart []string
	for i := range cfg.Sessions {
		sc := &cfg.Sessions[i]
		sess, err := builder.Build(sc, sink)
		if err != nil {
			logger.Error("session %s: %v", sc.Name, err)
			os.Exit(1)
		}
		if err := mgr.Add(sess); err != nil {
			logger.Error("session %s: %v", sc.Name, err)
			os.Exit(1)
		}
		if sc.Autostart {
			autostart = append(autostart, sc.ID)
		}
	}

	apiServer := api.New(api.Config{
		Address: cfg.Daemon.APIAddress,
		Manager: mgr,
		Logger:  logger.WithPrefix("api"),
	})
	apiServer.Start()

	metricsServer := &http.Server{
		Addr:    cfg.Daemon.MetricsAddress,
		Handler: metricsMux(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped: %v", err)
		}
	}()
	logger.Info("metrics listening on %s", cfg.Daemon.MetricsAddress)

	r.Run()

	for _, id := range autostart {
		if err := mgr.Activate(id); err != nil {
			logger.Error("autostart %s: %v", id, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received %s, shutting down", sig)

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown: %v", err)
	}
	r.End()
	r.Wait()
	logger.Info("autotuned stopped")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func setupLogging(dc config.DaemonConfig) (*log.Logger, error) {
	level := log.ParseLevel(dc.LogLevel)
	var logger *log.Logger
	if dc.LogFile != "" {
		var err error
		logger, _, err = log.NewFileLogger("autotuned", log.RotationConfig{
			Filename: dc.LogFile,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger = log.New("autotuned")
	}
	logger.SetLevel(level)
	if dc.LogJSON {
		logger.SetFormat(log.FormatJSON)
	}
	log.SetDefault(logger)
	return logger, nil
}
