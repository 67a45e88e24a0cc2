// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package semaphore implements a counting semaphore bounded in [0, max],
// generalizing the designated-waiter token handoff that v.io/x/lib/nsync's
// Mu uses for mutual exclusion (capacity 1) to an arbitrary capacity: a
// release always prefers handing its token directly to the head waiter over
// incrementing the counter, so a released token is never lost to a
// concurrently cancelled waiter.
package semaphore

import (
	"context"
	"sync"
	"time"

	"v.io/x/sync/waitq"
)

// A Semaphore is a counting semaphore with a current value in [0, max].
type Semaphore struct {
	mu      sync.Mutex
	current int
	max     int
	queue   waitq.Queue
}

// New constructs a Semaphore with the given initial value and capacity.
// It returns an OutOfRange error if max < 1 or initial is not in [0, max].
func New(initial, max int) (*Semaphore, error) {
	if max < 1 {
		return nil, waitq.Errorf(waitq.OutOfRange, "semaphore: max must be >= 1, got %d", max)
	}
	if initial < 0 || initial > max {
		return nil, waitq.Errorf(waitq.OutOfRange, "semaphore: initial %d out of range [0, %d]", initial, max)
	}
	return &Semaphore{current: initial, max: max}, nil
}

// TryAcquire attempts to take one token without suspending, returning
// whether it succeeded. It never enqueues a waiter.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.IsDisposed() || s.current == 0 {
		return false
	}
	s.current--
	return true
}

// Acquire blocks until a token is available or ctx is done, whichever comes
// first. It returns ErrCancelled if ctx is done before a token is acquired,
// or ErrDisposed if the semaphore has been disposed.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.enqueueOrTake(ctx, time.Time{})
}

// AcquireTimeout blocks until a token is available, ctx is done, or timeout
// elapses, whichever comes first. It returns true iff a token was
// acquired.
func (s *Semaphore) AcquireTimeout(ctx context.Context, timeout time.Duration) bool {
	err := s.enqueueOrTake(ctx, time.Now().Add(timeout))
	return err == nil
}

func (s *Semaphore) enqueueOrTake(ctx context.Context, deadline time.Time) error {
	s.mu.Lock()
	if s.queue.IsDisposed() {
		s.mu.Unlock()
		return waitq.ErrDisposed
	}
	if s.current > 0 {
		s.current--
		s.mu.Unlock()
		return nil
	}
	w, stop, err := s.queue.Enqueue(ctx, deadline)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return waitq.Await(w, stop)
}

// Release increments the semaphore's value by n, handing each token
// directly to the longest-waiting non-cancelled waiter before ever
// touching the counter. It returns SemaphoreFull if releasing all n tokens
// would push the counter above max; tokens already released by this call
// before that point remain released.
func (s *Semaphore) Release(n int) error {
	if n < 1 {
		return waitq.Errorf(waitq.OutOfRange, "semaphore: release count must be >= 1, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.IsDisposed() {
		return waitq.ErrDisposed
	}
	for i := 0; i < n; i++ {
		if s.queue.ReleaseOne() {
			continue
		}
		if s.current < s.max {
			s.current++
			continue
		}
		return waitq.Errorf(waitq.SemaphoreFull, "semaphore: release would exceed max %d", s.max)
	}
	return nil
}

// ReleaseAllWaiting releases every currently resident waiter in one bounded
// step and sets the counter to max. Unlike Release(n), which hands off
// tokens one at a time and can only ever release as many as n, this wakes
// exactly the waiters actually present — O(number of resident waiters), not
// O(n) — which matters when the caller wants to flush the semaphore to
// capacity regardless of how large the gap between current and max is.
func (s *Semaphore) ReleaseAllWaiting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.IsDisposed() {
		return waitq.ErrDisposed
	}
	s.queue.ReleaseAll()
	s.current = s.max
	return nil
}

// Current returns the semaphore's current value. It is a non-suspending
// observer and completes in bounded time under contention.
func (s *Semaphore) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Dispose cancels every resident waiter and marks the semaphore disposed.
// Idempotent: a second call is a no-op.
func (s *Semaphore) Dispose() {
	s.queue.Dispose()
}
