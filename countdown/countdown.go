// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package countdown implements a countdown event: a counter that latches a
// manual-reset event at zero. It promotes to a first-class primitive the
// threadFinished/waitForAllThreads pattern v.io/x/lib/nsync's own
// mu_test.go hand-rolls as test scaffolding around an nsync.Mu and
// nsync.CV.
package countdown

import (
	"context"
	"sync"
	"time"

	"v.io/x/sync/event"
	"v.io/x/sync/waitq"
)

// A Countdown counts down from an initial value to zero, at which point
// every current and future Wait completes. AddCount is rejected once the
// count has reached zero; the event, once latched, remains latched for the
// lifetime of the Countdown (barring Dispose).
type Countdown struct {
	mu       sync.Mutex
	count    int
	disposed bool
	zero     *event.Manual
}

// New returns a Countdown starting at initial, which must be >= 0.
func New(initial int) (*Countdown, error) {
	if initial < 0 {
		return nil, waitq.Errorf(waitq.OutOfRange, "countdown: initial must be >= 0, got %d", initial)
	}
	c := &Countdown{count: initial, zero: event.NewManual()}
	if initial == 0 {
		c.zero.Set()
	}
	return c, nil
}

// Signal decrements the count by one. It returns a State error if the count
// is already zero.
func (c *Countdown) Signal() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return waitq.ErrDisposed
	}
	if c.count == 0 {
		c.mu.Unlock()
		return waitq.Errorf(waitq.State, "countdown: Signal called with count already zero")
	}
	c.count--
	reachedZero := c.count == 0
	c.mu.Unlock()
	if reachedZero {
		c.zero.Set()
	}
	return nil
}

// AddCount increases the count by v, which callers pass explicitly; there
// is no default delta and v is added as given. It returns a State error if
// the count has already latched at zero.
func (c *Countdown) AddCount(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return waitq.ErrDisposed
	}
	if c.count == 0 {
		return waitq.Errorf(waitq.State, "countdown: AddCount called after count latched at zero")
	}
	c.count += v
	return nil
}

// Count returns the current count.
func (c *Countdown) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Wait blocks until the count reaches zero or ctx is done.
func (c *Countdown) Wait(ctx context.Context) error {
	return c.zero.Wait(ctx)
}

// WaitTimeout blocks until the count reaches zero, ctx is done, or timeout
// elapses. It returns true iff the count reached zero.
func (c *Countdown) WaitTimeout(ctx context.Context, timeout time.Duration) bool {
	return c.zero.WaitTimeout(ctx, timeout)
}

// Dispose cancels every goroutine currently suspended in Wait/WaitTimeout,
// and marks the Countdown disposed. Idempotent.
func (c *Countdown) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
	c.zero.Dispose()
}
