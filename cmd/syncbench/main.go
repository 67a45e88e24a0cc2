// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command syncbench drives the mutex, semaphore, rwmutex, countdown,
// barrier and queue primitives of this module under configurable
// contention, exercising Lock/Acquire/Signal/SignalAndWait/Enqueue/Dequeue
// under concurrent load the way a stress test would, but as a standalone
// runnable program instead. The event, lazy and ctxlocal packages are not
// exercised.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"v.io/x/sync/barrier"
	"v.io/x/sync/countdown"
	"v.io/x/sync/mutex"
	"v.io/x/sync/queue"
	"v.io/x/sync/rwmutex"
	"v.io/x/sync/semaphore"
)

type options struct {
	Workers       int
	Iterations    int
	SemaphoreMax  int
	QueueCapacity int
	BarrierPhases int
	OpTimeout     time.Duration
}

func main() {
	var opt options
	fs := pflag.NewFlagSet("syncbench", pflag.ExitOnError)
	fs.IntVar(&opt.Workers, "workers", 8, "number of worker goroutines per benchmark")
	fs.IntVar(&opt.Iterations, "iterations", 10000, "iterations each mutex worker performs; the semaphore and rwmutex workers run iterations/10+1 and iterations/100+1, and the queue producer enqueues this many items")
	fs.IntVar(&opt.SemaphoreMax, "semaphore-max", 4, "capacity of the benchmarked semaphore")
	fs.IntVar(&opt.QueueCapacity, "queue-capacity", 16, "bounded queue capacity; 0 means unbounded")
	fs.IntVar(&opt.BarrierPhases, "barrier-phases", 5, "number of phases the barrier benchmark runs")
	fs.DurationVar(&opt.OpTimeout, "op-timeout", time.Second, "timeout of each worker's context, shared by all of that worker's suspending calls (scaled up for the countdown, barrier and queue consumers)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("syncbench: parsing flags: %v", err)
	}

	log.Printf("syncbench: workers=%d iterations=%d semaphore-max=%d queue-capacity=%d barrier-phases=%d op-timeout=%s",
		opt.Workers, opt.Iterations, opt.SemaphoreMax, opt.QueueCapacity, opt.BarrierPhases, opt.OpTimeout)

	runMutex(opt)
	runSemaphore(opt)
	runRWMutex(opt)
	runCountdown(opt)
	runBarrier(opt)
	runQueue(opt)
}

func runMutex(opt options) {
	m := mutex.New()
	defer m.Dispose()
	var counter int
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opt.Workers)
	for i := 0; i < opt.Workers; i++ {
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout)
			defer cancel()
			for j := 0; j < opt.Iterations; j++ {
				guard, err := m.Lock(ctx)
				if err != nil {
					log.Printf("mutex: Lock failed: %v", err)
					return
				}
				counter++
				guard.Release()
			}
		}()
	}
	wg.Wait()
	log.Printf("mutex: %d workers x %d iterations -> counter=%d in %s", opt.Workers, opt.Iterations, counter, time.Since(start))
}

func runSemaphore(opt options) {
	sem, err := semaphore.New(opt.SemaphoreMax, opt.SemaphoreMax)
	if err != nil {
		log.Fatalf("semaphore: New: %v", err)
	}
	defer sem.Dispose()
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opt.Workers)
	for i := 0; i < opt.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout)
			defer cancel()
			for j := 0; j < opt.Iterations/10+1; j++ {
				if err := sem.Acquire(ctx); err != nil {
					log.Printf("semaphore: worker %d Acquire failed: %v", id, err)
					return
				}
				time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
				if err := sem.Release(1); err != nil {
					log.Printf("semaphore: worker %d Release failed: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()
	log.Printf("semaphore: max=%d, %d workers done in %s, final current=%d", opt.SemaphoreMax, opt.Workers, time.Since(start), sem.Current())
}

func runRWMutex(opt options) {
	rw := rwmutex.New()
	defer rw.Dispose()
	var shared int
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opt.Workers + 1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout)
		defer cancel()
		for j := 0; j < opt.Iterations/100+1; j++ {
			guard, err := rw.AcquireWriter(ctx)
			if err != nil {
				log.Printf("rwmutex: writer Acquire failed: %v", err)
				return
			}
			shared++
			guard.Release()
		}
	}()
	for i := 0; i < opt.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout)
			defer cancel()
			for j := 0; j < opt.Iterations/100+1; j++ {
				guard, err := rw.AcquireReader(ctx)
				if err != nil {
					log.Printf("rwmutex: reader %d Acquire failed: %v", id, err)
					return
				}
				_ = shared
				guard.Release()
			}
		}(i)
	}
	wg.Wait()
	log.Printf("rwmutex: %d readers + 1 writer done in %s, final shared=%d", opt.Workers, time.Since(start), shared)
}

func runCountdown(opt options) {
	cd, err := countdown.New(opt.Workers)
	if err != nil {
		log.Fatalf("countdown: New: %v", err)
	}
	defer cd.Dispose()
	start := time.Now()
	for i := 0; i < opt.Workers; i++ {
		go func() {
			time.Sleep(time.Duration(rand.Intn(int(opt.OpTimeout) / 10)))
			if err := cd.Signal(); err != nil {
				log.Printf("countdown: Signal failed: %v", err)
			}
		}()
	}
	ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout*10)
	defer cancel()
	if err := cd.Wait(ctx); err != nil {
		log.Printf("countdown: Wait failed: %v", err)
		return
	}
	log.Printf("countdown: %d workers all signalled in %s", opt.Workers, time.Since(start))
}

func runBarrier(opt options) {
	phaseDone := make(chan int, opt.BarrierPhases)
	b, err := barrier.New(opt.Workers, func(phase int) error {
		phaseDone <- phase
		return nil
	})
	if err != nil {
		log.Fatalf("barrier: New: %v", err)
	}
	defer b.Dispose()
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opt.Workers)
	for i := 0; i < opt.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout*time.Duration(opt.BarrierPhases+1))
			defer cancel()
			for phase := 0; phase < opt.BarrierPhases; phase++ {
				if err := b.SignalAndWait(ctx); err != nil {
					log.Printf("barrier: worker %d phase %d failed: %v", id, phase, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(phaseDone)
	completed := 0
	for range phaseDone {
		completed++
	}
	log.Printf("barrier: %d workers completed %d/%d phases in %s", opt.Workers, completed, opt.BarrierPhases, time.Since(start))
}

func runQueue(opt options) {
	q, err := queue.New[int](opt.QueueCapacity)
	if err != nil {
		log.Fatalf("queue: New: %v", err)
	}
	defer q.Dispose()
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opt.Workers + 1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout)
		defer cancel()
		for i := 0; i < opt.Iterations; i++ {
			if err := q.Enqueue(ctx, i); err != nil {
				log.Printf("queue: Enqueue failed: %v", err)
				return
			}
		}
		q.Complete()
	}()
	consumed := 0
	var mu sync.Mutex
	for i := 0; i < opt.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opt.OpTimeout*10)
			defer cancel()
			for {
				_, err := q.Dequeue(ctx)
				if err != nil {
					if queue.IsCompleted(err) {
						return
					}
					log.Printf("queue: worker %d Dequeue failed: %v", id, err)
					return
				}
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	fmt.Printf("queue: produced %d, consumed %d, in %s\n", opt.Iterations, consumed, time.Since(start))
}
