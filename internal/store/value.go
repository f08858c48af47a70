// value.go: a single named byte string inside a session, with its own
// optional expiry, optimistic-concurrency counter, and read/write
// limiters. Guarded by its own rwLocker (§5 value level).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

// value's tsEnd sentinel policy: 0 means no expiry. This differs from
// session's sentinel policy (0 = tombstone) by design — see §9 and
// SPEC_FULL.md's Open Question decision #2.
type value struct {
	lock rwLocker

	data          []byte
	tsEnd         uint32 // 0 = no expiry
	counterRecord uint32
	limiterRead   *limiter
	limiterWrite  *limiter
}

func newValue(newLock func() rwLocker, data []byte, tsEnd uint32) *value {
	return &value{
		lock:         newLock(),
		data:         append([]byte(nil), data...),
		tsEnd:        tsEnd,
		limiterRead:  newLimiter(),
		limiterWrite: newLimiter(),
	}
}

// live reports whether the value has not expired, given the current
// second. Caller must hold at least a read lock on v.
func (v *value) live(nowSec int64) bool {
	return v.tsEnd == 0 || uint32(nowSec) <= v.tsEnd
}
