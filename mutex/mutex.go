// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mutex implements a suspending mutual-exclusion lock: a semaphore
// specialized to capacity 1, with a scoped release guard, directly
// mirroring v.io/x/lib/nsync's Mu (TryLock, Lock, AssertHeld) while
// replacing its lock-free word-and-spinlock bookkeeping with a
// semaphore.Semaphore, since this package does not have nsync.Mu's
// bootstrap constraint of being unable to depend on another lock.
package mutex

import (
	"context"
	"sync/atomic"
	"time"

	"v.io/x/sync/semaphore"
)

// A Mutex is a suspending mutual-exclusion lock. Its zero value is not
// ready for use; construct one with New. Recursive (re-entrant) locking by
// the same goroutine is not supported.
type Mutex struct {
	sem  *semaphore.Semaphore
	held int32 // 1 while locked; read by AssertHeld, written by Lock/Guard.Release
}

// New returns an unlocked Mutex.
func New() *Mutex {
	sem, err := semaphore.New(1, 1)
	if err != nil {
		// unreachable: (1, 1) is always in range.
		panic(err)
	}
	return &Mutex{sem: sem}
}

// Lock blocks until the mutex is free and then acquires it, returning a
// Guard whose Release call releases exactly one token. It returns
// ErrCancelled if ctx is done before the mutex is acquired.
func (m *Mutex) Lock(ctx context.Context) (*Guard, error) {
	if err := m.sem.Acquire(ctx); err != nil {
		return nil, err
	}
	atomic.StoreInt32(&m.held, 1)
	return newGuard(m), nil
}

// LockTimeout blocks until the mutex is free, ctx is done, or timeout
// elapses. It returns the Guard and true iff the mutex was acquired.
func (m *Mutex) LockTimeout(ctx context.Context, timeout time.Duration) (*Guard, bool) {
	if !m.sem.AcquireTimeout(ctx, timeout) {
		return nil, false
	}
	atomic.StoreInt32(&m.held, 1)
	return newGuard(m), true
}

// TryLock attempts to acquire the mutex without suspending, returning the
// Guard and true iff it succeeded.
func (m *Mutex) TryLock() (*Guard, bool) {
	if !m.sem.TryAcquire() {
		return nil, false
	}
	atomic.StoreInt32(&m.held, 1)
	return newGuard(m), true
}

// AssertHeld panics if the mutex is not currently held by some goroutine.
// It is a debugging aid, not a substitute for correct synchronization of
// the assertion itself, exactly as in nsync.Mu.AssertHeld.
func (m *Mutex) AssertHeld() {
	if atomic.LoadInt32(&m.held) == 0 {
		panic("mutex: AssertHeld called but Mutex is not held")
	}
}

// Dispose cancels every goroutine currently suspended in Lock/LockTimeout.
// Idempotent.
func (m *Mutex) Dispose() { m.sem.Dispose() }

// A Guard is a scoped releaser returned by a successful Lock/TryLock. Its
// Release method performs exactly one release the first time it is called.
// Double-release is documented here as idempotent: Release atomically nils
// the Guard's back-reference to its Mutex, so a second call observes a nil
// reference and becomes a no-op, the same way a second call to a
// context.CancelFunc or sync.Once is a no-op.
type Guard struct {
	m atomic.Pointer[Mutex]
}

func newGuard(m *Mutex) *Guard {
	g := &Guard{}
	g.m.Store(m)
	return g
}

// Release releases the guarded Mutex. Calling Release more than once on the
// same Guard is a no-op after the first call.
func (g *Guard) Release() {
	m := g.m.Swap(nil)
	if m == nil {
		return
	}
	atomic.StoreInt32(&m.held, 0)
	// The semaphore is at capacity 1 and we hold its one token, so this
	// Release can never observe SemaphoreFull.
	_ = m.sem.Release(1)
}
