// Package clock provides the time abstraction used throughout memsess.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package clock

import (
	"github.com/agilira/go-timecache"
)

// Provider supplies the current time to store and limiter code. All
// expiry and rate-limit math runs on seconds since the Unix epoch.
type Provider interface {
	// Now returns the current time in nanoseconds since epoch.
	Now() int64

	// Seconds returns the current time truncated to whole seconds since
	// epoch, the granularity the store's tsEnd fields and limiter
	// windows operate on.
	Seconds() int64
}

// System is the default Provider, backed by go-timecache's cached clock
// to avoid a syscall on every expiry check.
type System struct{}

func (System) Now() int64 {
	return timecache.CachedTimeNano()
}

func (System) Seconds() int64 {
	return timecache.CachedTimeNano() / int64(1e9)
}

// Manual is a settable Provider for deterministic tests.
type Manual struct {
	nanos int64
}

// NewManual creates a Manual clock set to the given seconds since epoch.
func NewManual(seconds int64) *Manual {
	return &Manual{nanos: seconds * 1e9}
}

func (m *Manual) Now() int64 {
	return m.nanos
}

func (m *Manual) Seconds() int64 {
	return m.nanos / 1e9
}

// Set moves the manual clock to the given seconds since epoch.
func (m *Manual) Set(seconds int64) {
	m.nanos = seconds * 1e9
}

// Advance moves the manual clock forward by the given number of seconds.
func (m *Manual) Advance(seconds int64) {
	m.nanos += seconds * 1e9
}
