// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lazy implements an at-most-once asynchronously initialized
// value, grounded on the same try-once-then-attach discipline
// v.io/x/lib/nsync's Mu.lockSlow uses to decide whether the calling
// goroutine must do the work itself or wait on someone else's in-flight
// attempt.
package lazy

import (
	"context"
	"sync"

	"v.io/x/sync/waitq"
)

// A Lazy holds a value of type T computed at most once by a factory
// function, shared by every caller of Get. A failed factory's error is
// sticky and replayed to every subsequent Get without retrying. A
// disposed Lazy fails every Get with ErrDisposed, including any already
// in flight.
type Lazy[T any] struct {
	mu       sync.Mutex
	state    state
	value    T
	err      error
	done     chan struct{} // closed when the in-flight factory completes
	disposed bool
}

type state int

const (
	empty state = iota
	pending
	fulfilled
	failed
)

// New returns an uninitialized Lazy; factory will be invoked by whichever
// goroutine's Get first observes the empty state.
func New[T any]() *Lazy[T] {
	return &Lazy[T]{}
}

// Get returns the value, computing it via factory if this is the first
// call, or attaching to an in-flight computation, or replaying a sticky
// result if one is already decided. ctx cancellation only affects this
// call's wait for an in-flight computation; it never cancels the
// factory itself, since the factory's outcome is shared.
func (l *Lazy[T]) Get(ctx context.Context, factory func(context.Context) (T, error)) (T, error) {
	var zero T
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return zero, waitq.ErrDisposed
	}
	switch l.state {
	case fulfilled:
		v, err := l.value, l.err
		l.mu.Unlock()
		return v, err
	case failed:
		err := l.err
		l.mu.Unlock()
		return zero, err
	case pending:
		done := l.done
		l.mu.Unlock()
		select {
		case <-done:
			return l.Get(ctx, factory)
		case <-ctx.Done():
			return zero, waitq.ErrCancelled
		}
	}
	// empty: this goroutine runs the factory.
	l.state = pending
	l.done = make(chan struct{})
	l.mu.Unlock()

	v, err := factory(ctx)

	l.mu.Lock()
	done := l.done
	if l.disposed {
		l.mu.Unlock()
		close(done)
		return zero, waitq.ErrDisposed
	}
	if err != nil {
		l.state = failed
		l.err = waitq.Wrap(waitq.FactoryFailure, err, "lazy: factory failed")
	} else {
		l.state = fulfilled
		l.value = v
	}
	result, resultErr := l.value, l.err
	l.mu.Unlock()
	close(done)
	return result, resultErr
}

// IsSet reports whether a value or sticky failure has already been
// decided.
func (l *Lazy[T]) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == fulfilled || l.state == failed
}

// Dispose transitions the Lazy to a terminal invalidated state. Every
// current and future Get fails with ErrDisposed, including a factory
// invocation already in flight (its result, once computed, is discarded).
// Idempotent.
func (l *Lazy[T]) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	l.mu.Unlock()
	// Any in-flight factory goroutine closes l.done itself once it
	// returns (see Get), discovering disposed at that point; attached
	// waiters re-check state via the recursive Get call and observe it.
}
