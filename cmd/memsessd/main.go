// Command memsessd is the memsess server binary: it parses CLI flags,
// builds the store/metrics/dispatcher stack, starts the reaper
// timer, optionally serves /metrics, and runs the TCP accept loop
// until the process is signaled to stop.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agilira/memsess/internal/clock"
	"github.com/agilira/memsess/internal/config"
	"github.com/agilira/memsess/internal/dispatch"
	"github.com/agilira/memsess/internal/errs"
	"github.com/agilira/memsess/internal/logging"
	"github.com/agilira/memsess/internal/metrics"
	"github.com/agilira/memsess/internal/store"
	"github.com/agilira/memsess/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "memsessd:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	logger := logging.NewStd()

	cfg, err := config.ParseFlags(argv)
	if err != nil {
		return err
	}

	clk := clock.System{}
	st := store.New(clk)
	st.SetLimit(cfg.Limit)

	counters := metrics.New()
	st.SetGauge(counters)

	d := dispatch.New(st, counters)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server, err := transport.NewServer(addr, d.Handle, logger)
	if err != nil {
		return err
	}

	logger.Info("memsessd starting", "addr", addr, "threads", cfg.Threads, "limit", cfg.Limit)

	stopReaper := startReaper(st, 60*time.Second)
	defer stopReaper()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, counters, logger)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case sig := <-sigCh:
		logger.Info("memsessd shutting down", "signal", sig.String())
		return server.Close()
	}
}

// startReaper launches the single reaper goroutine described in §6
// ("one thread owns a ~60s periodic tick") and returns a function that
// stops it.
func startReaper(st *store.Store, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				st.ClearInactive()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

func serveMetrics(addr string, counters *metrics.Counters, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", counters.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "addr", addr, "err", errs.NewErrListenFailed(addr, err))
	}
}
