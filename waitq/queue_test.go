// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package waitq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"v.io/x/sync/waitq"
)

func TestEnqueueReleaseOneFIFO(t *testing.T) {
	var q waitq.Queue
	const n = 5
	order := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w, stop, err := q.Enqueue(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
		wg.Add(1)
		go func(i int, w *waitq.Waiter, stop func()) {
			defer wg.Done()
			if err := waitq.Await(w, stop); err != nil {
				t.Errorf("Await %d: %v", i, err)
				return
			}
			order <- i
		}(i, w, stop)
	}
	for i := 0; i < n; i++ {
		if !q.ReleaseOne() {
			t.Fatalf("ReleaseOne %d: no waiter released", i)
		}
		if got, want := <-order, i; got != want {
			t.Fatalf("release order: got %d, want %d", got, want)
		}
	}
	wg.Wait()
	if q.HasWaiters() {
		t.Fatalf("HasWaiters: got true, want false")
	}
}

func TestReleaseAll(t *testing.T) {
	var q waitq.Queue
	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w, stop, err := q.Enqueue(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		wg.Add(1)
		go func(w *waitq.Waiter, stop func()) {
			defer wg.Done()
			if err := waitq.Await(w, stop); err != nil {
				t.Errorf("Await: %v", err)
			}
		}(w, stop)
	}
	q.ReleaseAll()
	wg.Wait()
	if q.HasWaiters() {
		t.Fatalf("HasWaiters: got true, want false")
	}
}

func TestEnqueueAlreadyCancelledContext(t *testing.T) {
	var q waitq.Queue
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, stop, err := q.Enqueue(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err = waitq.Await(w, stop)
	if !errors.Is(err, waitq.ErrCancelled) {
		t.Fatalf("Await: got %v, want Cancelled", err)
	}
}

func TestEnqueueTimeout(t *testing.T) {
	var q waitq.Queue
	w, stop, err := q.Enqueue(context.Background(), time.Now().Add(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	err = waitq.Await(w, stop)
	if !waitq.IsTimedOut(err) {
		t.Fatalf("Await: got %v, want TimedOut", err)
	}
}

func TestCancellationDoesNotLeakReleasedToken(t *testing.T) {
	var q waitq.Queue
	ctx, cancel := context.WithCancel(context.Background())
	w, stop, err := q.Enqueue(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	cancel()
	err = waitq.Await(w, stop)
	if !errors.Is(err, waitq.ErrCancelled) {
		t.Fatalf("Await: got %v, want Cancelled", err)
	}
	if q.ReleaseOne() {
		t.Fatalf("ReleaseOne: released a token onto a cancelled, already-removed waiter")
	}
}

func TestDisposeCancelsResidents(t *testing.T) {
	var q waitq.Queue
	const n = 4
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		w, stop, err := q.Enqueue(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		go func(w *waitq.Waiter, stop func()) {
			results <- waitq.Await(w, stop)
		}(w, stop)
	}
	q.Dispose()
	q.Dispose() // idempotent
	for i := 0; i < n; i++ {
		if err := <-results; !waitq.ErrCancelled.Is(err) {
			t.Fatalf("Await after Dispose: got %v, want Cancelled", err)
		}
	}
	if !q.IsDisposed() {
		t.Fatalf("IsDisposed: got false, want true")
	}
}

func TestLenAndHasWaiters(t *testing.T) {
	var q waitq.Queue
	if q.HasWaiters() || q.Len() != 0 {
		t.Fatalf("empty queue: HasWaiters=%v Len=%d, want false, 0", q.HasWaiters(), q.Len())
	}
	_, stop1, err := q.Enqueue(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	defer stop1()
	if got, want := q.Len(), 1; got != want {
		t.Fatalf("Len: got %d, want %d", got, want)
	}
	if !q.HasWaiters() {
		t.Fatalf("HasWaiters: got false, want true")
	}
}
