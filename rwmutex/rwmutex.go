// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rwmutex implements a reader/writer lock as two capacity-1
// semaphore.Semaphore tokens coordinating readers and a single writer:
// entryLock serializes mutation of the reader count, and writeLock is held
// on behalf of all current readers by whichever reader transitions the
// count from 0 to 1, and released by whichever reader transitions it back
// to 0 — a different goroutine than the one that acquired it, which is why
// writeLock is a semaphore rather than a Guard-scoped mutex.Mutex.
package rwmutex

import (
	"context"
	"sync/atomic"
	"time"

	"v.io/x/sync/semaphore"
)

// An RWMutex allows any number of concurrent readers, or one writer,
// exclusively. It provides no stronger fairness guarantee between readers
// and writers than the FIFO ordering of the underlying write lock's waiter
// queue.
type RWMutex struct {
	entryLock *semaphore.Semaphore // guards mutation of readers
	writeLock *semaphore.Semaphore // held on readers' behalf while readers > 0
	readers   int                  // guarded by entryLock
}

// New returns an RWMutex with no readers and no writer.
func New() *RWMutex {
	entry, err := semaphore.New(1, 1)
	if err != nil {
		panic(err) // unreachable: (1, 1) is always in range
	}
	write, err := semaphore.New(1, 1)
	if err != nil {
		panic(err)
	}
	return &RWMutex{entryLock: entry, writeLock: write}
}

// AcquireReader blocks until a reader may proceed (immediately, unless a
// writer currently holds the lock) or ctx is done. If this call is the one
// that transitions the reader count from 0 to 1 and is cancelled while
// waiting for the writer token, the reader count is rolled back before the
// error is returned to the caller.
func (r *RWMutex) AcquireReader(ctx context.Context) (*ReaderGuard, error) {
	if err := r.entryLock.Acquire(ctx); err != nil {
		return nil, err
	}
	r.readers++
	var writeErr error
	if r.readers == 1 {
		if writeErr = r.writeLock.Acquire(ctx); writeErr != nil {
			r.readers-- // roll back before the caller observes the error
		}
	}
	_ = r.entryLock.Release(1)
	if writeErr != nil {
		return nil, writeErr
	}
	return newReaderGuard(r), nil
}

// AcquireReaderTimeout blocks until a reader may proceed, ctx is done, or
// timeout elapses. It returns the guard and true iff the reader was
// admitted.
func (r *RWMutex) AcquireReaderTimeout(ctx context.Context, timeout time.Duration) (*ReaderGuard, bool) {
	deadline := time.Now().Add(timeout)
	if !r.entryLock.AcquireTimeout(ctx, time.Until(deadline)) {
		return nil, false
	}
	r.readers++
	admitted := true
	if r.readers == 1 {
		if admitted = r.writeLock.AcquireTimeout(ctx, time.Until(deadline)); !admitted {
			r.readers--
		}
	}
	_ = r.entryLock.Release(1)
	if !admitted {
		return nil, false
	}
	return newReaderGuard(r), true
}

// releaseReader is invoked by a ReaderGuard's Release. entryLock is
// acquired with a background context because releasing must always
// eventually succeed synchronously, never failing or suspending
// indefinitely on the caller's own cancellation.
func (r *RWMutex) releaseReader() {
	_ = r.entryLock.Acquire(context.Background())
	r.readers--
	if r.readers == 0 {
		_ = r.writeLock.Release(1)
	}
	_ = r.entryLock.Release(1)
}

// AcquireWriter blocks until no readers and no other writer hold the lock,
// or ctx is done.
func (r *RWMutex) AcquireWriter(ctx context.Context) (*WriterGuard, error) {
	if err := r.writeLock.Acquire(ctx); err != nil {
		return nil, err
	}
	return newWriterGuard(r), nil
}

// AcquireWriterTimeout blocks until the writer lock is free, ctx is done,
// or timeout elapses. It returns the guard and true iff it was acquired.
func (r *RWMutex) AcquireWriterTimeout(ctx context.Context, timeout time.Duration) (*WriterGuard, bool) {
	if !r.writeLock.AcquireTimeout(ctx, timeout) {
		return nil, false
	}
	return newWriterGuard(r), true
}

// Dispose cancels every goroutine currently suspended acquiring either a
// reader or writer position. Idempotent.
func (r *RWMutex) Dispose() {
	r.entryLock.Dispose()
	r.writeLock.Dispose()
}

// A ReaderGuard is a scoped releaser returned by a successful
// AcquireReader/AcquireReaderTimeout. Release is idempotent after the first
// call, via the same atomically-nilled back-reference technique as
// mutex.Guard.
type ReaderGuard struct {
	r atomic.Pointer[RWMutex]
}

func newReaderGuard(r *RWMutex) *ReaderGuard {
	g := &ReaderGuard{}
	g.r.Store(r)
	return g
}

// Release releases this reader's position.
func (g *ReaderGuard) Release() {
	r := g.r.Swap(nil)
	if r == nil {
		return
	}
	r.releaseReader()
}

// A WriterGuard is a scoped releaser returned by a successful
// AcquireWriter/AcquireWriterTimeout.
type WriterGuard struct {
	r atomic.Pointer[RWMutex]
}

func newWriterGuard(r *RWMutex) *WriterGuard {
	g := &WriterGuard{}
	g.r.Store(r)
	return g
}

// Release releases the writer lock. Idempotent after the first call.
func (g *WriterGuard) Release() {
	r := g.r.Swap(nil)
	if r == nil {
		return
	}
	_ = r.writeLock.Release(1)
}
