// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctxlocal implements a context-local value: state visible only
// within a context.Context and the contexts forked from it, invisible to
// the parent and to sibling forks. Go has no goroutine-local storage, so
// this is built directly on context.Context's own immutable, parent-linked
// value chain instead.
package ctxlocal

import (
	"context"
	"sync"
)

// A Local is a context-local cell holding a value of type T. The zero
// value is not usable; construct one with New.
type Local[T any] struct {
	key  *int // unique per Local, used as the context.Value key
	zero T
}

type cell[T any] struct {
	mu  sync.Mutex
	val T
}

// New returns a Local with the given value visible to any context not yet
// forked from one carrying it.
func New[T any](initial T) *Local[T] {
	return &Local[T]{key: new(int), zero: initial}
}

// Fork returns a child of ctx in which l reads and writes are independent
// of ctx's own: the child starts with a private copy of l's current value
// as seen through ctx, and subsequent writes through the child (via Set)
// are invisible to ctx and to any other fork, exactly as subsequent
// writes through ctx are invisible to the child.
func (l *Local[T]) Fork(ctx context.Context) context.Context {
	current := l.Get(ctx)
	c := &cell[T]{val: current}
	return context.WithValue(ctx, l.key, c)
}

// Get returns the value of l visible in ctx: the value installed by the
// nearest Fork ancestor that forked this Local, or l's initial value if
// ctx (and its ancestors) never forked it.
func (l *Local[T]) Get(ctx context.Context) T {
	c, ok := ctx.Value(l.key).(*cell[T])
	if !ok {
		return l.zero
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

// Set updates the value of l visible in ctx and every context derived
// from ctx by context.WithValue/context.WithCancel/etc. (but not by a
// further Fork of l), in place. It has no effect on ctx's ancestors or on
// other forks. Set panics if ctx was never forked for l: a context-local
// value can only be mutated within a scope that explicitly opted in via
// Fork, so there is no implicit global mutable state reachable from an
// unrelated context.
func (l *Local[T]) Set(ctx context.Context, v T) {
	c, ok := ctx.Value(l.key).(*cell[T])
	if !ok {
		panic("ctxlocal: Set called on a context never Forked for this Local")
	}
	c.mu.Lock()
	c.val = v
	c.mu.Unlock()
}

// Dispose resets the value of l visible in ctx (and every context derived
// from it, but not by a further Fork of l) back to l's initial value, in
// place. It panics if ctx was never forked for l, for the same reason Set
// does.
func (l *Local[T]) Dispose(ctx context.Context) {
	c, ok := ctx.Value(l.key).(*cell[T])
	if !ok {
		panic("ctxlocal: Dispose called on a context never Forked for this Local")
	}
	c.mu.Lock()
	c.val = l.zero
	c.mu.Unlock()
}
