// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package barrier implements a cyclic phase barrier: a participant count
// plus one manual-reset event per phase, generalizing the
// threadFinished/waitForAllThreads pattern of v.io/x/lib/nsync's own
// mu_test.go (there used once, here cycled indefinitely across phases).
package barrier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"v.io/x/sync/event"
	"v.io/x/sync/waitq"
)

// A Barrier synchronizes a fixed number of participants across repeated
// phases. Every phase's arriving last participant runs the optional
// post-phase action, advances the phase, and releases everyone waiting on
// that phase before any other participant's SignalAndWait returns.
type Barrier struct {
	mu           sync.Mutex
	participants int
	remaining    int
	phase        int
	current      *event.Manual
	post         func(phase int) error
	disposed     bool
}

// New returns a Barrier for the given number of participants (>= 1). post,
// if non-nil, runs exactly once per phase, on the goroutine of that phase's
// arriving last participant, before any participant's SignalAndWait for
// that phase returns.
func New(participants int, post func(phase int) error) (*Barrier, error) {
	if participants < 1 {
		return nil, waitq.Errorf(waitq.OutOfRange, "barrier: participants must be >= 1, got %d", participants)
	}
	return &Barrier{
		participants: participants,
		remaining:    participants,
		current:      event.NewManual(),
		post:         post,
	}, nil
}

// SignalAndWait signals this participant's arrival and waits for the rest
// of the current phase's participants, unless this call is itself the
// last arrival, in which case it runs the post-phase action, advances the
// phase, and returns immediately. If the post-phase action panics, the
// phase still advances and the phase's event is still set for everyone
// else; the panic is recovered and returned as an error only to this
// (the last-arriving) caller.
func (b *Barrier) SignalAndWait(ctx context.Context) error {
	ev, phase, last, err := b.arrive()
	if err != nil {
		return err
	}
	if last {
		return b.closePhase(ev, phase)
	}
	return ev.Wait(ctx)
}

// SignalAndWaitTimeout is the bool-discriminating twin of SignalAndWait.
// For the last arrival it always reports ok=true (it never suspends); err
// carries a post-phase action failure, if any, exactly as in
// SignalAndWait. For other arrivals, ok reports whether the rest of the
// phase completed before ctx was done or timeout elapsed.
func (b *Barrier) SignalAndWaitTimeout(ctx context.Context, timeout time.Duration) (ok bool, err error) {
	ev, phase, last, err := b.arrive()
	if err != nil {
		return false, err
	}
	if last {
		return true, b.closePhase(ev, phase)
	}
	return ev.WaitTimeout(ctx, timeout), nil
}

// arrive performs the decrement-and-maybe-advance critical section shared
// by SignalAndWait and SignalAndWaitTimeout.
func (b *Barrier) arrive() (ev *event.Manual, phase int, last bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil, 0, false, waitq.ErrDisposed
	}
	b.remaining--
	ev = b.current
	phase = b.phase
	last = b.remaining == 0
	if last {
		b.remaining = b.participants
		b.phase++
		b.current = event.NewManual()
	}
	return ev, phase, last, nil
}

// closePhase runs the post-phase action (if any) for the phase that just
// closed and releases everyone waiting on it.
func (b *Barrier) closePhase(ev *event.Manual, phase int) (actionErr error) {
	if b.post != nil {
		actionErr = runPostPhase(b.post, phase)
	}
	ev.Set()
	return actionErr
}

func runPostPhase(post func(int) error, phase int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = waitq.Errorf(waitq.State, "barrier: post-phase action for phase %d panicked: %v", phase, fmt.Sprint(r))
		}
	}()
	return post(phase)
}

// CurrentPhase returns the phase number currently being awaited (i.e. the
// number of phases that have fully closed so far).
func (b *Barrier) CurrentPhase() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Dispose cancels every participant currently suspended in SignalAndWait.
// Idempotent.
func (b *Barrier) Dispose() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	ev := b.current
	b.mu.Unlock()
	ev.Dispose()
}
