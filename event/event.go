// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event implements manual-reset and auto-reset events, both built
// directly on the waitq kernel's wake-one (ReleaseOne) and wake-all
// (ReleaseAll) primitives — the same split a condition variable exposes as
// Signal (wake one) versus Broadcast (wake all) over a single waiter list.
package event

import (
	"context"
	"sync"
	"time"

	"v.io/x/sync/waitq"
)

// Waiter is the capability both event kinds share: a context-aware,
// optionally-timed-out suspend. Manual and Auto satisfy it independently,
// without a common base struct.
type Waiter interface {
	Wait(ctx context.Context) error
	WaitTimeout(ctx context.Context, timeout time.Duration) bool
}

// A Manual is a manual-reset event: a latched boolean. Once Set, every
// concurrent and subsequent Wait succeeds without suspension until the next
// Reset.
type Manual struct {
	mu    sync.Mutex
	set   bool
	queue waitq.Queue
}

var _ Waiter = (*Manual)(nil)

// NewManual returns an unset Manual event.
func NewManual() *Manual { return &Manual{} }

// Set latches the event and releases every currently resident waiter.
func (e *Manual) Set() {
	e.mu.Lock()
	e.set = true
	e.mu.Unlock()
	e.queue.ReleaseAll()
}

// Reset clears the latch. Waiters already released by a prior Set are
// unaffected; only subsequent Wait calls observe the cleared state.
func (e *Manual) Reset() {
	e.mu.Lock()
	e.set = false
	e.mu.Unlock()
}

// IsSet reports whether the event is currently latched.
func (e *Manual) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Wait blocks until the event is set or ctx is done, whichever comes first.
func (e *Manual) Wait(ctx context.Context) error {
	return e.wait(ctx, time.Time{})
}

// WaitTimeout blocks until the event is set, ctx is done, or timeout
// elapses. It returns true iff the event was observed set.
func (e *Manual) WaitTimeout(ctx context.Context, timeout time.Duration) bool {
	return e.wait(ctx, time.Now().Add(timeout)) == nil
}

func (e *Manual) wait(ctx context.Context, deadline time.Time) error {
	e.mu.Lock()
	if e.queue.IsDisposed() {
		e.mu.Unlock()
		return waitq.ErrDisposed
	}
	if e.set {
		e.mu.Unlock()
		return nil
	}
	w, stop, err := e.queue.Enqueue(ctx, deadline)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return waitq.Await(w, stop)
}

// Dispose cancels every resident waiter. Idempotent.
func (e *Manual) Dispose() { e.queue.Dispose() }

// An Auto is an auto-reset event: at most one pending signal is latched.
// Set wakes exactly one waiter if any is present, otherwise latches a
// signal for the next Wait; Wait that finds the flag set atomically clears
// it.
type Auto struct {
	mu    sync.Mutex
	set   bool
	queue waitq.Queue
}

var _ Waiter = (*Auto)(nil)

// NewAuto returns an unset Auto event.
func NewAuto() *Auto { return &Auto{} }

// Set wakes one resident waiter if present; otherwise it latches a pending
// signal, which the next Wait (by any goroutine) consumes.
func (e *Auto) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue.ReleaseOne() {
		return
	}
	e.set = true
}

// IsSet reports whether a signal is currently latched and unconsumed.
func (e *Auto) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Wait blocks until a signal is observed (latched or delivered by a Set)
// or ctx is done, whichever comes first.
func (e *Auto) Wait(ctx context.Context) error {
	return e.wait(ctx, time.Time{})
}

// WaitTimeout blocks until a signal is observed, ctx is done, or timeout
// elapses. It returns true iff a signal was observed.
func (e *Auto) WaitTimeout(ctx context.Context, timeout time.Duration) bool {
	return e.wait(ctx, time.Now().Add(timeout)) == nil
}

func (e *Auto) wait(ctx context.Context, deadline time.Time) error {
	e.mu.Lock()
	if e.queue.IsDisposed() {
		e.mu.Unlock()
		return waitq.ErrDisposed
	}
	if e.set {
		e.set = false
		e.mu.Unlock()
		return nil
	}
	w, stop, err := e.queue.Enqueue(ctx, deadline)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return waitq.Await(w, stop)
}

// Dispose cancels every resident waiter. Idempotent.
func (e *Auto) Dispose() { e.queue.Dispose() }
