// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Future is a write-once cell: resolved exactly once, readable forever
// after. Waiters park until resolution and wake in arrival order.
//
// The zero value is an unresolved future ready for use.
//
// Resolving twice is a programming error and panics. The process supervisor
// relies on exactly-once resolution to decide whether a process ID may
// still be signalled, so a second resolve means two owners both believe
// they collected the same result.
type Future[T any] struct {
	mu       sync.Mutex
	resolved bool
	value    T
	waiters  *queue.Queue // of chan struct{}, FIFO wake order
}

// Resolve stores v and wakes every waiter. It panics if the future was
// already resolved.
func (f *Future[T]) Resolve(v T) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		panic("uxio: future resolved twice")
	}
	f.value = v
	f.resolved = true
	q := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	// The queue is detached: no waiter can join it anymore, so the wakes
	// need no lock.
	if q == nil {
		return
	}
	for q.Length() > 0 {
		close(q.Remove().(chan struct{}))
	}
}

// Resolved reports whether the future holds a value.
func (f *Future[T]) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// TryGet returns the value without blocking; ok reports whether the future
// was resolved.
func (f *Future[T]) TryGet() (v T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.resolved
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	f.mu.Lock()
	if f.resolved {
		v := f.value
		f.mu.Unlock()
		return v, nil
	}
	if f.waiters == nil {
		f.waiters = queue.New()
	}
	ch := make(chan struct{})
	f.waiters.Add(ch)
	f.mu.Unlock()

	select {
	case <-ch:
		f.mu.Lock()
		v := f.value
		f.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
