// limiter.go: per-key, per-ceiling requests-per-second rate limiter.
//
// Grounded on original_source/src/core/store.hpp's incLimiter, §4.C's
// rate-limiter algorithm, and §3's rationale: the same key may be asked
// to enforce different ceilings by different callers within a single
// second, so each ceiling tracks its own window independently.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import "sync"

type limiterWindow struct {
	ts    int64
	count uint16
}

// limiter is a mapping from ceiling (requests-per-second) to its own
// independent (ts, count) window. A plain mutex guards the map since
// the window update is a short critical section (§5).
type limiter struct {
	mu      sync.Mutex
	windows map[uint16]*limiterWindow
}

func newLimiter() *limiter {
	return &limiter{windows: make(map[uint16]*limiterWindow)}
}

// admit applies the rate-limiter algorithm from §4.C for ceiling limit
// at the given current second nowSec. limit == 0 always admits without
// touching state.
func (l *limiter) admit(limit uint16, nowSec int64) bool {
	if limit == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[limit]
	if !ok {
		l.windows[limit] = &limiterWindow{ts: nowSec, count: 1}
		return true
	}

	if w.ts == nowSec && w.count == limit {
		return false
	}
	if w.ts != nowSec {
		w.ts = nowSec
		w.count = 1
		return true
	}

	w.count++
	return true
}
