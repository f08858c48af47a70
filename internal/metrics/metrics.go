// Package metrics is memsess's external Counters collaborator (§4.E):
// it only receives increments and snapshot reads from the dispatcher
// and store, never initiates a call back into them.
//
// Grounded on runZeroInc-conniver/pkg/exporter/exporter.go's pattern of
// wrapping a domain-specific set of measurements as prometheus metrics
// with stable descriptors, and on runZeroInc-sockstats for the
// per-process instance-id labeling style; backed by
// prometheus/client_golang the way the rest of the pack reaches for it
// whenever a component needs externally-scraped counters or
// histograms. The fixed-bucket histogram boundaries come directly from
// the wire contract (§4.E): <5,<10,<20,<50,<100,<200,<500,<1000 ms,
// with "other" being prometheus's implicit +Inf bucket.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package metrics

import (
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
)

// latencyBucketsSeconds mirrors §4.E's fixed millisecond buckets,
// converted to the seconds prometheus histograms expect.
var latencyBucketsSeconds = []float64{.005, .01, .02, .05, .1, .2, .5, 1.0}

// ops is the stable, ordered set of operation labels the GET_STATISTICS
// snapshot walks — keep in sync with internal/dispatch's opName table.
var ops = []string{
	"generate", "exist", "remove", "prolong",
	"add_key", "get_key", "set_key", "set_force_key",
	"remove_key", "exist_key", "prolong_key",
	"all_add_key", "all_remove_key", "add_session", "get_statistics",
}

// errorReasons is the stable, ordered set of error-kind labels.
var errorReasons = []string{
	"wrong_command", "wrong_params", "session_none", "key_none",
	"limit_exceeded", "lifetime_exceeded", "duplicate_key",
	"record_been_changed", "limit_per_sec_exceeded", "duplicate_session",
}

// Counters is the production, prometheus-backed implementation of
// internal/dispatch's Counters contract and internal/store's Gauge
// contract.
type Counters struct {
	instanceID string

	passed *prometheus.CounterVec
	failed *prometheus.CounterVec
	errors *prometheus.CounterVec

	receivedBytes prometheus.Counter
	sentBytes     prometheus.Counter

	latency *prometheus.HistogramVec

	freeSessions prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Counters registered against a fresh prometheus
// Registry, labeled with a per-process instance id so multiple memsess
// processes scraped by the same collector don't collide.
func New() *Counters {
	instanceID := xid.New().String()
	constLabels := prometheus.Labels{"instance": instanceID}

	c := &Counters{
		instanceID: instanceID,
		passed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "memsess",
			Name:        "ops_passed_total",
			Help:        "Operations that completed successfully, by command.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "memsess",
			Name:        "ops_failed_total",
			Help:        "Operations that failed, by command.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "memsess",
			Name:        "errors_total",
			Help:        "Failures, by result-code reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "memsess",
			Name:        "received_bytes_total",
			Help:        "Total request payload bytes received.",
			ConstLabels: constLabels,
		}),
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "memsess",
			Name:        "sent_bytes_total",
			Help:        "Total response payload bytes sent.",
			ConstLabels: constLabels,
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "memsess",
			Name:        "latency_seconds",
			Help:        "Per-stage latency (receive, process, send).",
			Buckets:     latencyBucketsSeconds,
			ConstLabels: constLabels,
		}, []string{"stage"}),
		freeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "memsess",
			Name:        "free_sessions",
			Help:        "Remaining session capacity; -1 means unbounded.",
			ConstLabels: constLabels,
		}),
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(c.passed, c.failed, c.errors, c.receivedBytes, c.sentBytes, c.latency, c.freeSessions)

	for _, op := range ops {
		c.passed.WithLabelValues(op)
		c.failed.WithLabelValues(op)
	}
	for _, reason := range errorReasons {
		c.errors.WithLabelValues(reason)
	}

	return c
}

// IncPassed implements dispatch.Counters.
func (c *Counters) IncPassed(op string) { c.passed.WithLabelValues(op).Inc() }

// IncFailed implements dispatch.Counters.
func (c *Counters) IncFailed(op string) { c.failed.WithLabelValues(op).Inc() }

// IncError implements dispatch.Counters.
func (c *Counters) IncError(reason string) { c.errors.WithLabelValues(reason).Inc() }

// AddReceived implements dispatch.Counters.
func (c *Counters) AddReceived(n int) { c.receivedBytes.Add(float64(n)) }

// AddSent implements dispatch.Counters.
func (c *Counters) AddSent(n int) { c.sentBytes.Add(float64(n)) }

// ObserveLatency implements dispatch.Counters.
func (c *Counters) ObserveLatency(stage string, d time.Duration) {
	c.latency.WithLabelValues(stage).Observe(d.Seconds())
}

// SetFreeSessions implements store.Gauge.
func (c *Counters) SetFreeSessions(n int64) { c.freeSessions.Set(float64(n)) }

// Snapshot implements dispatch.Counters: GET_STATISTICS's INT64
// sequence. Each counter is read independently with no cross-counter
// barrier — the Open Question in §9 is resolved in favor of the
// source's original behavior, see SPEC_FULL.md.
func (c *Counters) Snapshot() []int64 {
	out := make([]int64, 0, 2*len(ops)+len(errorReasons)+3)

	for _, op := range ops {
		out = append(out, int64(readCounter(c.passed.WithLabelValues(op))))
	}
	for _, op := range ops {
		out = append(out, int64(readCounter(c.failed.WithLabelValues(op))))
	}
	for _, reason := range errorReasons {
		out = append(out, int64(readCounter(c.errors.WithLabelValues(reason))))
	}
	out = append(out, int64(readCounter(c.receivedBytes)))
	out = append(out, int64(readCounter(c.sentBytes)))
	out = append(out, int64(readGauge(c.freeSessions)))

	return out
}

// Handler exposes the /metrics HTTP endpoint for external scraping,
// independent of the GET_STATISTICS wire command.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
