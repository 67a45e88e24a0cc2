// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package waitq implements the waiter-queue kernel shared by every
// primitive in this module: a FIFO of pending suspensions that can be
// released one at a time or in bulk, raced against cancellation and
// timeout, and torn down without races or lost wake-ups.
//
// The design follows v.io/x/lib/nsync's own waiter list (a doubly-linked
// list of one-shot waiters, each woken via a private channel) but trades
// the original's hand-rolled spinlock for a plain sync.Mutex: nsync's
// spinlock exists only because nsync.Mu is bootstrap code for a mutex and
// cannot depend on sync.Mutex without circularity. The primitives built on
// this package are consumers of it, not reimplementations of it, so that
// constraint does not apply here.
package waitq

import (
	"context"
	"sync/atomic"
	"time"
)

// A dll is a node in a circular doubly-linked list, exactly as in
// v.io/x/lib/nsync/waiter.go. All operations on a dll require the caller to
// hold the owning Queue's lock.
type dll struct {
	next, prev *dll
	elem       *Waiter
}

func (l *dll) makeEmpty() { l.next, l.prev = l, l }
func (l *dll) isEmpty() bool { return l.next == l }

func (e *dll) insertAfter(p *dll) {
	e.next = p.next
	e.prev = p
	e.next.prev = e
	e.prev.next = e
}

func (e *dll) remove() {
	e.next.prev = e.prev
	e.prev.next = e.next
	e.next, e.prev = nil, nil
}

// state values for Waiter.state. Once a Waiter leaves statePending it never
// returns to it: exactly one of the three terminal states wins.
const (
	statePending int32 = iota
	stateFulfilled
	stateCancelled
	stateTimedOut
)

// A Waiter is one pending suspension: an identity, a one-shot completion
// signal, and a back-reference to its position in an owning Queue's list.
// Created by Queue.Enqueue; mutated exactly once to a terminal state;
// discarded once the caller has observed the outcome.
type Waiter struct {
	q     dll // list linkage; valid only while resident in a Queue
	state int32
	done  chan struct{} // closed exactly once, by whichever transition wins
}

func newWaiter() *Waiter {
	w := &Waiter{done: make(chan struct{})}
	w.q.elem = w
	return w
}

// tryTransition attempts to move w from pending to to. It returns whether
// this call performed the transition; at most one caller ever observes true
// for a given Waiter, which is the at-most-once release invariant.
func (w *Waiter) tryTransition(to int32) bool {
	if atomic.CompareAndSwapInt32(&w.state, statePending, to) {
		close(w.done)
		return true
	}
	return false
}

// outcome reports the terminal state reached by w, blocking until one is
// reached. It is used by Await, through which the suspending methods of
// each primitive observe a Waiter.
func (w *Waiter) outcome() int32 {
	<-w.done
	return atomic.LoadInt32(&w.state)
}

// Done returns a channel closed once w has reached a terminal state.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// watchCancellation arms a goroutine that attempts to cancel w when ctx is
// done or deadline elapses, whichever comes first. The returned stop
// function must be called once w reaches a terminal state by any means, to
// release the goroutine and (if used) the timer.
//
// Cancellation races with fulfillment purely via tryTransition's CAS, and
// this callback never calls back into the owning Queue's critical section
// synchronously.
func (w *Waiter) watchCancellation(ctx context.Context, deadline time.Time, q *Queue) (stop func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Done() == nil && deadline.IsZero() {
		// Nothing can ever cancel or time out this wait; don't pay
		// for a watcher goroutine.
		return func() {}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	if !deadline.IsZero() {
		timer = time.NewTimer(time.Until(deadline))
		timerC = timer.C
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if w.tryTransition(stateCancelled) {
				q.tombstone(w)
			}
		case <-timerC:
			if w.tryTransition(stateTimedOut) {
				q.tombstone(w)
			}
		case <-done:
		}
	}()

	return func() {
		close(done)
		if timer != nil {
			timer.Stop()
		}
	}
}
