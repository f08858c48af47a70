// Package config parses memsess's CLI flags with flash-flags and,
// once the process is running, watches a configuration file with argus
// for the knobs that are safe to change without a restart (session cap
// and reap interval).
//
// Grounded on hot-reload.go's HotConfig (the argus.UniversalConfigWatcherWithConfig
// wiring, the mutex-guarded current-config snapshot, the OnReload
// callback style) adapted from balios's cache-tuning knobs to memsess's
// store-tuning knobs, and on flash-flags for the flag parsing
// hot-reload.go's own config.go leaves to a plain struct literal.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package config

import (
	"math"
	"runtime"
	"sync"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/argus"

	"github.com/agilira/memsess/internal/errs"
)

// Static is the set of flags fixed at process startup (§6): none of
// these are hot-reloadable.
type Static struct {
	Port        int
	Limit       uint32 // 0 = unlimited
	Threads     int
	MetricsAddr string // empty disables the /metrics HTTP listener
}

// DefaultPort is used when -p is not given.
const DefaultPort = 2901

// ParseFlags parses argv (typically os.Args[1:]) per §6's CLI contract:
// -p (1..65535, default 2901), -l (0..2^32-1, default 0 = unlimited; an
// explicit -l 0 is accepted as unlimited, not rejected), -t (1..NumCPU,
// default NumCPU).
func ParseFlags(argv []string) (Static, error) {
	fs := flashflags.New("memsessd")
	port := fs.Int("p", DefaultPort, "TCP port to listen on")
	limit := fs.Int("l", 0, "maximum number of live sessions (0 = unlimited)")
	threads := fs.Int("t", runtime.NumCPU(), "worker thread count")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty disables)")

	if err := fs.Parse(argv); err != nil {
		return Static{}, errs.NewErrConfigDecode("cli", err)
	}

	if *port < 1 || *port > 65535 {
		return Static{}, errs.NewErrInvalidPort(*port)
	}

	if *limit < 0 || int64(*limit) > math.MaxUint32 {
		return Static{}, errs.NewErrInvalidLimit(*limit)
	}

	maxThreads := runtime.NumCPU()
	if *threads < 1 || *threads > maxThreads {
		return Static{}, errs.NewErrInvalidThreads(*threads, maxThreads)
	}

	return Static{
		Port:        *port,
		Limit:       uint32(*limit),
		Threads:     *threads,
		MetricsAddr: *metricsAddr,
	}, nil
}

// Dynamic is the subset of configuration argus may hot-reload while the
// process runs: the session cap and the reaper's sweep interval.
type Dynamic struct {
	Limit         uint32
	ReapInterval  time.Duration
}

// DefaultDynamic matches §6's defaults: unlimited sessions, ~60s reap tick.
func DefaultDynamic() Dynamic {
	return Dynamic{Limit: 0, ReapInterval: 60 * time.Second}
}

// Watcher wraps an argus file watcher that updates a live Dynamic
// snapshot, mirroring hot-reload.go's HotConfig but over memsess's own
// knobs instead of balios's cache-tuning ones.
type Watcher struct {
	mu      sync.RWMutex
	current Dynamic

	watcher *argus.Watcher

	// OnReload runs after a change is applied. Must be fast, non-blocking.
	OnReload func(old, updated Dynamic)
}

// WatchFile starts watching path (JSON/YAML/TOML/HCL/INI/Properties, per
// argus) for the dynamic knobs, starting from initial until the first
// reload lands.
func WatchFile(path string, initial Dynamic, pollInterval time.Duration, onReload func(old, updated Dynamic)) (*Watcher, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	w := &Watcher{current: initial, OnReload: onReload}

	argusConfig := argus.Config{PollInterval: pollInterval}
	watcher, err := argus.UniversalConfigWatcherWithConfig(path, w.handleChange, argusConfig)
	if err != nil {
		return nil, errs.NewErrConfigDecode(path, err)
	}
	w.watcher = watcher

	return w, nil
}

// Start begins watching, matching hot-reload.go's idempotent Start.
func (w *Watcher) Start() error {
	if w.watcher.IsRunning() {
		return nil
	}
	return w.watcher.Start()
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	return w.watcher.Stop()
}

// Current returns the live Dynamic snapshot (thread-safe).
func (w *Watcher) Current() Dynamic {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) handleChange(data map[string]interface{}) {
	w.mu.Lock()
	old := w.current
	updated := parseDynamic(data, old)
	w.current = updated
	w.mu.Unlock()

	if w.OnReload != nil {
		w.OnReload(old, updated)
	}
}

func parseDynamic(data map[string]interface{}, fallback Dynamic) Dynamic {
	result := fallback

	section, ok := data["store"].(map[string]interface{})
	if !ok {
		section = data
	}

	if limit, ok := parseUintField(section["limit"]); ok {
		result.Limit = limit
	}
	if interval, ok := parseDurationField(section["reap_interval"]); ok {
		result.ReapInterval = interval
	}

	return result
}

func parseUintField(value interface{}) (uint32, bool) {
	switch v := value.(type) {
	case int:
		if v >= 0 {
			return uint32(v), true
		}
	case float64:
		if v >= 0 {
			return uint32(v), true
		}
	}
	return 0, false
}

func parseDurationField(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil && d > 0 {
			return d, true
		}
	}
	return 0, false
}
