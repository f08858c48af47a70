// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package metrics

import "time"

// noop is a Counters implementation that discards everything it's
// told and reports an empty snapshot. Grounded on
// agilira-balios/config.go's NoOpMetricsCollector default.
type noop struct{}

// NoOp returns the no-op Counters callers needing no metrics
// collaborator should pass to dispatch.New/store.SetGauge.
func NoOp() *noop { return &noop{} }

func (*noop) IncPassed(op string)                          {}
func (*noop) IncFailed(op string)                          {}
func (*noop) IncError(reason string)                       {}
func (*noop) AddReceived(n int)                            {}
func (*noop) AddSent(n int)                                {}
func (*noop) ObserveLatency(stage string, d time.Duration) {}
func (*noop) SetFreeSessions(n int64)                      {}
func (*noop) Snapshot() []int64                            { return nil }
