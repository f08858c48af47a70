// session.go: a top-level session container keyed by a UUID, holding
// named values and an optional absolute expiry. Guarded by its own
// rwLocker (§5 session level).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

// NoExpiry is the session-level sentinel meaning "no expiry" (§3).
// It is distinct from the value-level sentinel: sessions use 0 to mean
// "tombstoned, awaiting reap" and NoExpiry to mean "never expires";
// values use 0 to mean "never expires" (§9, Open Question #2).
const NoExpiry uint32 = 0xFFFFFFFF

type session struct {
	lock rwLocker

	tsEnd       uint32 // 0 = tombstoned, NoExpiry = no expiry, else absolute seconds
	counterKeys uint32
	values      map[string]*value
}

func newSession(newLock func() rwLocker, tsEnd uint32) *session {
	return &session{
		lock:   newLock(),
		tsEnd:  tsEnd,
		values: make(map[string]*value),
	}
}

// live reports whether the session has not been tombstoned or expired,
// given the current second. Caller must hold at least a read lock on s.
func (s *session) live(nowSec int64) bool {
	if s.tsEnd == 0 {
		return false
	}
	if s.tsEnd == NoExpiry {
		return true
	}
	return uint32(nowSec) <= s.tsEnd
}

// expiryFor converts a caller-supplied lifetime (seconds, 0 = no
// expiry) into the absolute tsEnd the session-level sentinel policy
// expects.
func expiryFor(nowSec int64, lifetime uint32) uint32 {
	if lifetime == 0 {
		return NoExpiry
	}
	return uint32(nowSec) + lifetime
}

// valueExpiryFor converts a caller-supplied lifetime into the
// value-level sentinel (0 = no expiry, same numeric meaning as
// "lifetime==0" so no translation is needed beyond the addition).
func valueExpiryFor(nowSec int64, lifetime uint32) uint32 {
	if lifetime == 0 {
		return 0
	}
	return uint32(nowSec) + lifetime
}
