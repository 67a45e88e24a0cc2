// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package countdown_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"v.io/x/sync/countdown"
	"v.io/x/sync/waitq"
)

func TestWaitUnblocksAtZero(t *testing.T) {
	cd, err := countdown.New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			if err := cd.Signal(); err != nil {
				t.Errorf("Signal: %v", err)
			}
		}()
	}
	if err := cd.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	wg.Wait()
	if got, want := cd.Count(), 0; got != want {
		t.Fatalf("Count: got %d, want %d", got, want)
	}
}

func TestZeroInitialAlreadySet(t *testing.T) {
	cd, err := countdown.New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cd.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on zero-initial countdown: got %v, want nil", err)
	}
}

func TestSignalBelowZeroIsStateError(t *testing.T) {
	cd, err := countdown.New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cd.Signal(); !errors.Is(err, waitq.NewKind(waitq.State)) {
		t.Fatalf("Signal on zero count: got %v, want State", err)
	}
}

func TestAddCountAfterLatchedIsStateError(t *testing.T) {
	cd, err := countdown.New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cd.AddCount(1); !errors.Is(err, waitq.NewKind(waitq.State)) {
		t.Fatalf("AddCount after latched: got %v, want State", err)
	}
}

func TestAddCountExtendsCountdown(t *testing.T) {
	cd, err := countdown.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cd.AddCount(2); err != nil {
		t.Fatalf("AddCount: %v", err)
	}
	if got, want := cd.Count(), 3; got != want {
		t.Fatalf("Count: got %d, want %d", got, want)
	}
	for i := 0; i < 3; i++ {
		if err := cd.Signal(); err != nil {
			t.Fatalf("Signal %d: %v", i, err)
		}
	}
	if err := cd.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestNewOutOfRange(t *testing.T) {
	if _, err := countdown.New(-1); !errors.Is(err, waitq.NewKind(waitq.OutOfRange)) {
		t.Fatalf("New(-1): got %v, want OutOfRange", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	cd, err := countdown.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cd.WaitTimeout(context.Background(), 10*time.Millisecond) {
		t.Fatalf("WaitTimeout before Signal: got true, want false")
	}
	if err := cd.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if !cd.WaitTimeout(context.Background(), time.Second) {
		t.Fatalf("WaitTimeout after Signal: got false, want true")
	}
}

func TestDispose(t *testing.T) {
	cd, err := countdown.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- cd.Wait(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	cd.Dispose()
	if err := <-errc; !errors.Is(err, waitq.ErrCancelled) {
		t.Fatalf("Wait after Dispose: got %v, want Cancelled", err)
	}
}
