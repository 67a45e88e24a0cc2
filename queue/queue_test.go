// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"v.io/x/sync/queue"
	"v.io/x/sync/waitq"
)

func TestFIFOOrder(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), i); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		v, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatalf("Dequeue %d: %v", i, err)
		}
		if v != i {
			t.Fatalf("Dequeue order: got %d, want %d", v, i)
		}
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := make(chan int, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err != nil {
			t.Errorf("Dequeue: %v", err)
			return
		}
		got <- v
	}()
	time.Sleep(10 * time.Millisecond)
	select {
	case <-got:
		t.Fatalf("Dequeue returned before Enqueue")
	default:
	}
	if err := q.Enqueue(context.Background(), 42); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("Dequeue: got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("Dequeue did not unblock after Enqueue")
	}
}

func TestBoundedQueueBackpressure(t *testing.T) {
	q, err := queue.New[int](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := q.Enqueue(context.Background(), 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ok, err := q.EnqueueTimeout(context.Background(), 2, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("EnqueueTimeout: %v", err)
	}
	if ok {
		t.Fatalf("EnqueueTimeout on a full bounded queue: got true, want false")
	}
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	ok, err = q.EnqueueTimeout(context.Background(), 2, time.Second)
	if err != nil {
		t.Fatalf("EnqueueTimeout: %v", err)
	}
	if !ok {
		t.Fatalf("EnqueueTimeout after Dequeue freed a slot: got false, want true")
	}
}

func TestEnqueueAfterCompleteIsStateError(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q.Complete()
	if err := q.Enqueue(context.Background(), 1); !errors.Is(err, waitq.NewKind(waitq.State)) {
		t.Fatalf("Enqueue after Complete: got %v, want State", err)
	}
}

func TestCompleteDrainsThenFailsDequeue(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := q.Enqueue(context.Background(), 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Complete()
	v, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue draining remaining item: %v", err)
	}
	if v != 1 {
		t.Fatalf("Dequeue: got %d, want 1", v)
	}
	_, err = q.Dequeue(context.Background())
	if !queue.IsCompleted(err) {
		t.Fatalf("Dequeue on drained, completed queue: got %v, want Completed", err)
	}
}

func TestCompletePendingDequeueFailsImmediately(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Complete()
	select {
	case err := <-errc:
		if !queue.IsCompleted(err) {
			t.Fatalf("pending Dequeue after Complete on empty queue: got %v, want Completed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("pending Dequeue did not fail after Complete on empty queue")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	q, err := queue.New[int](0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q.Complete()
	q.Complete()
	if !q.IsCompleted() {
		t.Fatalf("IsCompleted: got false, want true")
	}
}

func TestProducerConsumerStress(t *testing.T) {
	q, err := queue.New[int](8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	const total = 2000
	const consumers = 4
	go func() {
		for i := 0; i < total; i++ {
			if err := q.Enqueue(context.Background(), i); err != nil {
				t.Errorf("Enqueue: %v", err)
				return
			}
		}
		q.Complete()
	}()
	var mu sync.Mutex
	sum := 0
	var wg sync.WaitGroup
	wg.Add(consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			defer wg.Done()
			for {
				v, err := q.Dequeue(context.Background())
				if err != nil {
					if queue.IsCompleted(err) {
						return
					}
					t.Errorf("Dequeue: %v", err)
					return
				}
				mu.Lock()
				sum += v
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	want := total * (total - 1) / 2
	if sum != want {
		t.Fatalf("sum of consumed items: got %d, want %d", sum, want)
	}
}

func TestNewOutOfRange(t *testing.T) {
	if _, err := queue.New[int](-1); !errors.Is(err, waitq.NewKind(waitq.OutOfRange)) {
		t.Fatalf("New(-1): got %v, want OutOfRange", err)
	}
}
