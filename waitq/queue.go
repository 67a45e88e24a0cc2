// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package waitq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// A Queue is a FIFO of Waiters, owned by exactly one primitive instance.
// Queue order equals registration order; waiters that are cancelled or
// timed out while resident are skipped on release and removed lazily (on
// the next release or dispose).
//
// All mutations of a Queue's own bookkeeping happen under a single short
// critical section (mu) that never blocks on anything but the lock itself;
// waking a released Waiter (closing its done channel) happens after the
// lock is dropped, so a resumed caller re-entering the same primitive can
// never deadlock against this critical section.
type Queue struct {
	mu       sync.Mutex
	waiters  dll
	inited   bool
	disposed bool
}

func (q *Queue) init() {
	if !q.inited {
		q.waiters.makeEmpty()
		q.inited = true
	}
}

// Enqueue registers a new waiter at the tail of the queue and arms ctx/
// deadline-driven cancellation for it. It returns the Waiter so the caller
// can block on its Done channel and inspect the terminal state, or an
// *Error wrapping Disposed if the queue has already been disposed.
//
// If ctx is already done, Enqueue still creates the waiter but it will be
// observed as immediately cancelled once the caller waits on it: a
// pre-cancelled wait fails immediately rather than blocking at all.
func (q *Queue) Enqueue(ctx context.Context, deadline time.Time) (*Waiter, func(), error) {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return nil, nil, ErrDisposed
	}
	q.init()
	w := newWaiter()
	w.q.insertAfter(q.waiters.prev)
	q.mu.Unlock()

	stop := w.watchCancellation(ctx, deadline, q)
	return w, stop, nil
}

// tombstone removes a cancelled/timed-out waiter from the list if it is
// still resident. It is safe to call this redundantly; removal from a list
// a waiter has already left is a no-op. Called from the cancellation
// watcher goroutine once its cancel/timeout transition has won.
func (q *Queue) tombstone(w *Waiter) {
	q.mu.Lock()
	if w.q.next != nil { // still in some list
		w.q.remove()
	}
	q.mu.Unlock()
}

// ReleaseOne transitions the head non-terminal waiter to fulfilled and
// returns true, or returns false if no such waiter exists. Cancelled/timed-
// out heads still resident are skipped and removed (lazy compaction).
func (q *Queue) ReleaseOne() bool {
	q.mu.Lock()
	q.init()
	for !q.waiters.isEmpty() {
		w := q.waiters.next.elem
		w.q.remove()
		if atomic.CompareAndSwapInt32(&w.state, statePending, stateFulfilled) {
			q.mu.Unlock()
			close(w.done)
			return true
		}
		// Already terminal (raced with cancellation/timeout); drop it
		// and keep looking.
	}
	q.mu.Unlock()
	return false
}

// ReleaseAll transitions every currently non-terminal waiter to fulfilled,
// in FIFO order.
func (q *Queue) ReleaseAll() {
	q.mu.Lock()
	q.init()
	var toWake []*Waiter
	for !q.waiters.isEmpty() {
		w := q.waiters.next.elem
		w.q.remove()
		toWake = append(toWake, w)
	}
	q.mu.Unlock()

	for _, w := range toWake {
		w.tryTransition(stateFulfilled)
	}
}

// HasWaiters reports whether at least one non-terminal waiter is resident.
// Terminal waiters awaiting lazy compaction do not count.
func (q *Queue) HasWaiters() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.init()
	for p := q.waiters.next; p != &q.waiters; p = p.next {
		if atomic.LoadInt32(&p.elem.state) == statePending {
			return true
		}
	}
	return false
}

// Len returns the number of waiters currently resident, including any not
// yet lazily compacted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.init()
	n := 0
	for p := q.waiters.next; p != &q.waiters; p = p.next {
		n++
	}
	return n
}

// Dispose cancels every resident waiter and marks the queue disposed.
// Further Enqueue calls fail with Disposed; ReleaseOne/ReleaseAll on a
// disposed queue are no-ops. Calling Dispose twice is equivalent to calling
// it once.
func (q *Queue) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	q.init()
	var toCancel []*Waiter
	for !q.waiters.isEmpty() {
		w := q.waiters.next.elem
		w.q.remove()
		toCancel = append(toCancel, w)
	}
	q.mu.Unlock()

	for _, w := range toCancel {
		w.tryTransition(stateCancelled)
	}
}

// IsDisposed reports whether Dispose has been called.
func (q *Queue) IsDisposed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disposed
}

// Await blocks until w reaches a terminal state, then reports it as an
// error: nil for fulfilled, ErrCancelled for cancelled, and a non-nil
// sentinel distinguishable via IsTimedOut for timed out. stop must be the
// function returned alongside w by Enqueue; Await calls it before
// returning.
func Await(w *Waiter, stop func()) error {
	outcome := w.outcome()
	stop()
	switch outcome {
	case stateFulfilled:
		return nil
	case stateCancelled:
		return ErrCancelled
	case stateTimedOut:
		return errTimedOut
	default:
		panic("waitq: waiter in non-terminal state after Done closed")
	}
}

var errTimedOut = NewKind(TimedOut)

// IsTimedOut reports whether err is the sentinel Await uses to signal that
// a Waiter's deadline elapsed. The primitives' bool-returning timeout
// variants do not need it: they report any non-nil Await error as false.
func IsTimedOut(err error) bool { return err == errTimedOut }
