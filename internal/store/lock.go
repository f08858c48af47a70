// lock.go: the writer-preferring reader/writer lock used at all three
// levels of the store (store, session, value), per §5 and §9's note
// that a pending-writers counter is a hint, not a lock: readers spin on
// it before acquiring their shared lock so a writer arriving mid-burst
// isn't starved.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// rwLocker is the lock interface every level (store/session/value) is
// guarded by. spinRW is the production implementation; noopRW backs
// Store.NewSingleThreaded for deterministic, race-free invariant tests.
type rwLocker interface {
	RLock()
	RUnlock()
	Lock()
	Unlock()
}

// spinRW is a writer-preferring reader/writer lock: a pending-writers
// counter is incremented before a writer blocks on the underlying
// sync.RWMutex, and readers spin briefly on that counter before taking
// their shared lock. This is a performance hint, not a correctness
// requirement — sync.RWMutex itself remains the source of truth.
type spinRW struct {
	mu             sync.RWMutex
	pendingWriters int32
}

func newSpinRW() rwLocker { return &spinRW{} }

func (l *spinRW) RLock() {
	for atomic.LoadInt32(&l.pendingWriters) > 0 {
		runtime.Gosched()
	}
	l.mu.RLock()
}

func (l *spinRW) RUnlock() {
	l.mu.RUnlock()
}

func (l *spinRW) Lock() {
	atomic.AddInt32(&l.pendingWriters, 1)
	l.mu.Lock()
}

func (l *spinRW) Unlock() {
	l.mu.Unlock()
	atomic.AddInt32(&l.pendingWriters, -1)
}

// noopRW backs NewSingleThreaded: no synchronization at all, for tests
// that want to exercise store invariants without any timing races,
// mirroring original_source's split between store.hpp (MEMSESS_MULTI)
// and store_st.hpp (single-threaded).
type noopRW struct{}

func newNoopRW() rwLocker { return noopRW{} }

func (noopRW) RLock()   {}
func (noopRW) RUnlock() {}
func (noopRW) Lock()    {}
func (noopRW) Unlock()  {}
