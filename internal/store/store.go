// Package store implements memsess's two-level session/key-value store:
// a session map keyed by UUID text, each session holding a map of named
// values, with lifetime expiry at both levels, optimistic concurrency
// counters, and per-key read/write rate limiters (§3, §4.C).
//
// Grounded on original_source/src/core/store.hpp (operation semantics,
// CAS ordering, lifetime-nesting check) and on agilira-balios/cache.go
// for the style of atomic statistics fields and Config-style defaulting,
// generalized from the teacher's single lock-free table to the three
// nested rwLocker levels §5 requires (store → session → value →
// limiter). See DESIGN.md for the full grounding ledger.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"sync/atomic"

	"github.com/agilira/memsess/internal/clock"
	"github.com/agilira/memsess/internal/uuid"
)

// Gauge receives the store's remaining session capacity whenever the
// session count or cap changes, so the Counters collaborator (§4.E) can
// expose the totalFreeSessions metric. Nil-safe: Store works fine with no Gauge attached.
type Gauge interface {
	// SetFreeSessions reports the number of session slots the store
	// still has available. -1 means "unbounded" (no cap configured).
	SetFreeSessions(n int64)
}

// Store is the two-level session/value store described in §3/§4.C.
// All exported methods are safe for concurrent use.
type Store struct {
	lock     rwLocker
	newLock  func() rwLocker
	sessions map[string]*session

	limit uint32 // session cap, 0 = unlimited
	count uint32

	clk   clock.Provider
	gauge Gauge
}

// New creates a production Store backed by writer-preferring
// reader/writer locks at all three levels.
func New(clk clock.Provider) *Store {
	return newStore(clk, newSpinRW)
}

// NewSingleThreaded creates a Store with no internal synchronization,
// for deterministic single-goroutine tests of the invariants in §3/§8.
func NewSingleThreaded(clk clock.Provider) *Store {
	return newStore(clk, newNoopRW)
}

func newStore(clk clock.Provider, newLock func() rwLocker) *Store {
	return &Store{
		lock:     newLock(),
		newLock:  newLock,
		sessions: make(map[string]*session),
		clk:      clk,
	}
}

// SetGauge attaches the Counters collaborator's free-session gauge.
func (st *Store) SetGauge(g Gauge) {
	st.gauge = g
}

func (st *Store) reportGauge() {
	if st.gauge == nil {
		return
	}
	if st.limit == 0 {
		st.gauge.SetFreeSessions(-1)
		return
	}
	free := int64(st.limit) - int64(st.count)
	if free < 0 {
		free = 0
	}
	st.gauge.SetFreeSessions(free)
}

// SetLimit installs the session cap. n == 0 means unlimited and also
// resets count to 0 — this is the behavior spec.md's §3 I5 and §9
// explicitly call out as likely-unintended but to be preserved as
// written, not silently "fixed".
func (st *Store) SetLimit(n uint32) {
	st.lock.Lock()
	defer st.lock.Unlock()

	st.limit = n
	if n == 0 {
		st.count = 0
	}
	st.reportGauge()
}

// Generate draws a server-chosen v4 id, inserts an empty session with
// the given lifetime (0 = no expiry), and returns the id.
func (st *Store) Generate(lifetime uint32) (id string, res Result) {
	st.lock.Lock()
	defer st.lock.Unlock()

	if (st.limit != 0 && st.count == st.limit) || st.count == ^uint32(0) {
		return "", LimitExceeded
	}

	nowSec := st.clk.Seconds()

	for {
		id = uuid.New()
		if _, exists := st.sessions[id]; !exists {
			break
		}
	}

	st.sessions[id] = newSession(st.newLock, expiryFor(nowSec, lifetime))
	st.count++
	st.reportGauge()
	return id, OK
}

// Add inserts a client-supplied session id. Fails DuplicateSession if a
// live entry already exists for id; a tombstoned entry is silently
// replaced.
func (st *Store) Add(id string, lifetime uint32) Result {
	st.lock.Lock()
	defer st.lock.Unlock()

	if (st.limit != 0 && st.count == st.limit) || st.count == ^uint32(0) {
		return LimitExceeded
	}

	nowSec := st.clk.Seconds()

	existing, ok := st.sessions[id]
	if ok && existing.live(nowSec) {
		return DuplicateSession
	}

	st.sessions[id] = newSession(st.newLock, expiryFor(nowSec, lifetime))
	if !ok {
		st.count++
	}
	st.reportGauge()
	return OK
}

// Exist reports whether id names a live session.
func (st *Store) Exist(id string) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return SessionNone
	}

	sess.lock.RLock()
	live := sess.live(st.clk.Seconds())
	sess.lock.RUnlock()

	if !live {
		return SessionNone
	}
	return OK
}

// Remove tombstones id (sets tsEnd := 0) if present and live. No-op
// otherwise; the reaper deletes tombstoned sessions on its next sweep.
func (st *Store) Remove(id string) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return OK
	}

	sess.lock.Lock()
	defer sess.lock.Unlock()

	if !sess.live(st.clk.Seconds()) {
		return OK
	}
	sess.tsEnd = 0
	return OK
}

// Prolong resets id's expiry to lifetime seconds from now (0 = no expiry).
func (st *Store) Prolong(id string, lifetime uint32) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return SessionNone
	}

	sess.lock.Lock()
	defer sess.lock.Unlock()

	nowSec := st.clk.Seconds()
	if !sess.live(nowSec) {
		return SessionNone
	}

	sess.tsEnd = expiryFor(nowSec, lifetime)
	return OK
}

// findSession resolves id to its session under the store's shared
// lock, returning SessionNone if absent. Liveness is not checked here —
// the caller must still check sess.live(nowSec) after acquiring
// sess.lock, following lock order store → session.
func (st *Store) findSession(id string) (*session, Result) {
	sess, ok := st.sessions[id]
	if !ok {
		return nil, SessionNone
	}
	return sess, OK
}

// AddKey creates a new value under session id. Fails LifetimeExceeded if
// lifetime would outlive the session's bounded expiry; fails
// DuplicateKey if the key already exists (live or not).
func (st *Store) AddKey(id, key string, data []byte, lifetime uint32) (counterKeys, counterRecord uint32, res Result) {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return 0, 0, SessionNone
	}

	sess.lock.Lock()
	defer sess.lock.Unlock()

	if !sess.live(nowSec) {
		return 0, 0, SessionNone
	}

	if lifetime != 0 && sess.tsEnd != NoExpiry {
		if nowSec+int64(lifetime) > int64(sess.tsEnd) {
			return 0, 0, LifetimeExceeded
		}
	}

	if _, exists := sess.values[key]; exists {
		return 0, 0, DuplicateKey
	}

	sess.counterKeys++
	sess.values[key] = newValue(st.newLock, data, valueExpiryFor(nowSec, lifetime))

	return sess.counterKeys, 0, OK
}

// ExistKey reports whether key names a live value inside a live session.
func (st *Store) ExistKey(id, key string) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return SessionNone
	}

	sess.lock.RLock()
	defer sess.lock.RUnlock()

	if !sess.live(nowSec) {
		return SessionNone
	}

	v, ok := sess.values[key]
	if !ok {
		return KeyNone
	}

	v.lock.RLock()
	live := v.live(nowSec)
	v.lock.RUnlock()

	if !live {
		return KeyNone
	}
	return OK
}

// ProlongKey resets key's per-value expiry to lifetime seconds from now
// (0 disables per-value expiry), subject to the same session-lifetime
// nesting check as AddKey.
func (st *Store) ProlongKey(id, key string, lifetime uint32) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return SessionNone
	}

	sess.lock.RLock()
	if !sess.live(nowSec) {
		sess.lock.RUnlock()
		return SessionNone
	}
	v, ok := sess.values[key]
	sessTsEnd := sess.tsEnd
	sess.lock.RUnlock()

	if !ok {
		return KeyNone
	}

	if lifetime != 0 && sessTsEnd != NoExpiry {
		if nowSec+int64(lifetime) > int64(sessTsEnd) {
			return LifetimeExceeded
		}
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.live(nowSec) {
		return KeyNone
	}

	v.tsEnd = valueExpiryFor(nowSec, lifetime)
	return OK
}

// SetKey overwrites key's bytes using optimistic concurrency: it
// succeeds only if the caller's counterKeys/counterRecord both match
// the store's current values, and only if the write limiter at ceiling
// limit admits the call.
func (st *Store) SetKey(id, key string, data []byte, counterKeysIn, counterRecordIn uint32, limit uint16) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return SessionNone
	}

	sess.lock.RLock()
	defer sess.lock.RUnlock()

	if !sess.live(nowSec) {
		return SessionNone
	}
	v, ok := sess.values[key]
	if !ok {
		return KeyNone
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.live(nowSec) {
		return KeyNone
	}

	if sess.counterKeys != counterKeysIn || v.counterRecord != counterRecordIn {
		return RecordBeenChanged
	}

	if !v.limiterWrite.admit(limit, nowSec) {
		return LimitPerSecExceeded
	}

	v.data = append([]byte(nil), data...)
	v.counterRecord++
	return OK
}

// SetForceKey overwrites key's bytes unconditionally (no CAS), still
// subject to the write limiter.
func (st *Store) SetForceKey(id, key string, data []byte, limit uint16) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return SessionNone
	}

	sess.lock.RLock()
	live := sess.live(nowSec)
	v, ok := sess.values[key]
	sess.lock.RUnlock()

	if !live {
		return SessionNone
	}
	if !ok {
		return KeyNone
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	if !v.live(nowSec) {
		return KeyNone
	}

	if !v.limiterWrite.admit(limit, nowSec) {
		return LimitPerSecExceeded
	}

	v.data = append([]byte(nil), data...)
	v.counterRecord++
	return OK
}

// GetKey reads key's bytes and counters, subject to the read limiter.
func (st *Store) GetKey(id, key string, limit uint16) (data []byte, counterKeys, counterRecord uint32, res Result) {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return nil, 0, 0, SessionNone
	}

	sess.lock.RLock()
	live := sess.live(nowSec)
	v, ok := sess.values[key]
	sessCounterKeys := sess.counterKeys
	sess.lock.RUnlock()

	if !live {
		return nil, 0, 0, SessionNone
	}
	if !ok {
		return nil, 0, 0, KeyNone
	}

	v.lock.RLock()
	defer v.lock.RUnlock()

	if !v.live(nowSec) {
		return nil, 0, 0, KeyNone
	}

	if !v.limiterRead.admit(limit, nowSec) {
		return nil, 0, 0, LimitPerSecExceeded
	}

	out := append([]byte(nil), v.data...)
	return out, sessCounterKeys, v.counterRecord, OK
}

// RemoveKey erases key from session id unconditionally if present.
func (st *Store) RemoveKey(id, key string) Result {
	st.lock.RLock()
	defer st.lock.RUnlock()

	nowSec := st.clk.Seconds()
	sess, res := st.findSession(id)
	if res != OK {
		return SessionNone
	}

	sess.lock.Lock()
	defer sess.lock.Unlock()

	if !sess.live(nowSec) {
		return SessionNone
	}

	delete(sess.values, key)
	return OK
}

// AddAllKey inserts key/value into every live session that does not
// already have key, with no per-value expiry. Always returns OK.
func (st *Store) AddAllKey(key string, data []byte) Result {
	st.lock.Lock()
	defer st.lock.Unlock()

	nowSec := st.clk.Seconds()
	for _, sess := range st.sessions {
		sess.lock.Lock()
		if sess.live(nowSec) {
			if _, exists := sess.values[key]; !exists {
				sess.values[key] = newValue(st.newLock, data, 0)
			}
		}
		sess.lock.Unlock()
	}
	return OK
}

// RemoveAllKey erases key from every live session. Always returns OK.
func (st *Store) RemoveAllKey(key string) Result {
	st.lock.Lock()
	defer st.lock.Unlock()

	nowSec := st.clk.Seconds()
	for _, sess := range st.sessions {
		sess.lock.Lock()
		if sess.live(nowSec) {
			delete(sess.values, key)
		}
		sess.lock.Unlock()
	}
	return OK
}

// ClearInactive performs the reaper's single sweep (§4.C, §5): erases
// tombstoned/expired sessions and, within surviving sessions, expired
// values. Holds the top-level writer lock for the whole scan.
func (st *Store) ClearInactive() {
	st.lock.Lock()
	defer st.lock.Unlock()

	nowSec := st.clk.Seconds()

	for id, sess := range st.sessions {
		sess.lock.Lock()
		expired := sess.tsEnd != NoExpiry && uint32(nowSec) > sess.tsEnd
		if expired {
			sess.lock.Unlock()
			delete(st.sessions, id)
			st.count--
			continue
		}

		for key, v := range sess.values {
			v.lock.Lock()
			if v.tsEnd != 0 && uint32(nowSec) > v.tsEnd {
				delete(sess.values, key)
			}
			v.lock.Unlock()
		}
		sess.lock.Unlock()
	}

	st.reportGauge()
}

// Count returns the store's session counter: the number of entries in
// the top-level session map, regardless of live/tombstoned state (§3
// I4), except that SetLimit(0) resets it to 0 while entries remain.
func (st *Store) Count() uint32 {
	st.lock.RLock()
	defer st.lock.RUnlock()
	return st.count
}

// atomicGauge is a minimal Gauge implementation for tests that only
// need to observe the last reported value.
type atomicGauge struct {
	v atomic.Int64
}

func (g *atomicGauge) SetFreeSessions(n int64) { g.v.Store(n) }
func (g *atomicGauge) Value() int64            { return g.v.Load() }
