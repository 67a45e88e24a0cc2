// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue implements a bounded or unbounded FIFO queue built from a
// pair of semaphore.Semaphore tokens (items available, and for a bounded
// queue, space available), the same counting-token flow-control technique
// the semaphore package itself uses for acquisition, generalized here to
// producer/consumer handoff.
package queue

import (
	"context"
	"sync"
	"time"

	"v.io/x/sync/semaphore"
	"v.io/x/sync/waitq"
)

// unboundedCapacity is the token capacity of every queue's items-available
// semaphore (an unbounded queue has no space semaphore at all): large
// enough that no realistic workload exhausts it, since
// semaphore.Semaphore requires a finite max.
const unboundedCapacity = 1 << 30

// A Queue is a FIFO of values of type T. A bounded Queue (capacity > 0)
// makes producers suspend in Enqueue until a consumer frees a slot; an
// unbounded Queue (capacity == 0) never blocks Enqueue. Consumers always
// suspend in Dequeue on an empty queue, unless the queue has been marked
// Complete.
type Queue[T any] struct {
	mu        sync.Mutex
	items     []T
	completed bool
	space     *semaphore.Semaphore // nil for an unbounded queue
	avail     *semaphore.Semaphore
}

// New returns an empty Queue. capacity == 0 means unbounded; capacity > 0
// bounds the queue and makes Enqueue suspend under backpressure.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 0 {
		return nil, waitq.Errorf(waitq.OutOfRange, "queue: capacity must be >= 0, got %d", capacity)
	}
	avail, err := semaphore.New(0, unboundedCapacity)
	if err != nil {
		panic(err) // unreachable: (0, unboundedCapacity) is always in range
	}
	q := &Queue[T]{avail: avail}
	if capacity > 0 {
		space, err := semaphore.New(capacity, capacity)
		if err != nil {
			panic(err) // unreachable: capacity > 0 here
		}
		q.space = space
	}
	return q, nil
}

// Enqueue appends v to the tail of the queue, suspending until a slot is
// free (bounded queues only) or ctx is done. It returns a State error if
// the queue has already been marked Complete.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	if q.space != nil {
		if err := q.space.Acquire(ctx); err != nil {
			return err
		}
	}
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		if q.space != nil {
			_ = q.space.Release(1)
		}
		return waitq.Errorf(waitq.State, "queue: Enqueue called after Complete")
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	return q.avail.Release(1)
}

// EnqueueTimeout is the bool-discriminating twin of Enqueue for
// backpressure waits; it reports false on cancellation or timeout. A
// Complete-related failure is still reported via the returned error.
func (q *Queue[T]) EnqueueTimeout(ctx context.Context, v T, timeout time.Duration) (bool, error) {
	if q.space != nil {
		if !q.space.AcquireTimeout(ctx, timeout) {
			return false, nil
		}
	}
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		if q.space != nil {
			_ = q.space.Release(1)
		}
		return false, waitq.Errorf(waitq.State, "queue: Enqueue called after Complete")
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	return true, q.avail.Release(1)
}

// Dequeue removes and returns the head of the queue, suspending until an
// item is available or ctx is done. It returns a State error for which
// IsCompleted(err) is true if the queue is empty and has been marked
// Complete, either already or upon arrival.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	if err := q.avail.Acquire(ctx); err != nil {
		return zero, err
	}
	v, ok := q.take()
	if !ok {
		return zero, errCompleted
	}
	return v, nil
}

// DequeueTimeout is the bool-discriminating twin of Dequeue. ok is false
// on cancellation, timeout, or a Complete-and-empty queue; callers that
// need to distinguish the latter should use Dequeue.
func (q *Queue[T]) DequeueTimeout(ctx context.Context, timeout time.Duration) (v T, ok bool) {
	if !q.avail.AcquireTimeout(ctx, timeout) {
		var zero T
		return zero, false
	}
	return q.take()
}

// take removes the head item, if any, after a successful avail acquire.
// ok is false only when the acquire was satisfied by Complete's drain
// release rather than a real item (see Complete). When this call drains
// the last real item of an already-completed queue, it also opens the
// drain for everyone still to arrive.
func (q *Queue[T]) take() (v T, ok bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return v, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	drain := q.completed && len(q.items) == 0
	q.mu.Unlock()
	if q.space != nil {
		_ = q.space.Release(1)
	}
	if drain {
		q.openDrain()
	}
	return v, true
}

// openDrain releases every waiter resident on avail and saturates its
// counter to unboundedCapacity, so every resident and future
// Dequeue/DequeueTimeout observes an empty queue and fails/returns false
// via take, without ever touching q.items again. It completes in time
// proportional to the number of waiters actually resident, not to the
// semaphore's capacity.
func (q *Queue[T]) openDrain() {
	_ = q.avail.ReleaseAllWaiting()
}

// Complete marks the queue as closed to further Enqueue calls. If the
// queue is already empty, every currently-suspended and future Dequeue
// fails immediately with a State error; otherwise the queue drains
// normally and the failure takes effect once the last item is dequeued.
// Idempotent.
func (q *Queue[T]) Complete() {
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		return
	}
	q.completed = true
	empty := len(q.items) == 0
	q.mu.Unlock()
	if empty {
		q.openDrain()
	}
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsCompleted reports whether Complete has been called.
func (q *Queue[T]) IsCompleted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

// Dispose cancels every goroutine currently suspended in Enqueue or
// Dequeue. Idempotent.
func (q *Queue[T]) Dispose() {
	q.avail.Dispose()
	if q.space != nil {
		q.space.Dispose()
	}
}

var errCompleted = waitq.Errorf(waitq.State, "queue: Dequeue on a completed, empty queue")

// IsCompleted reports whether err is the error Dequeue returns for a
// completed, empty queue (DequeueTimeout reports that case as ok=false).
func IsCompleted(err error) bool {
	return err == errCompleted
}
