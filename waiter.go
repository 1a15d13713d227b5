// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"runtime"
	"time"
)

// Direction selects which readiness a waiter should wait for.
type Direction uint8

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "Read"
	case DirectionWrite:
		return "Write"
	default:
		return "Direction(unknown)"
	}
}

// Waiter suspends the calling goroutine until a descriptor is ready, a
// deadline passes, or the wait is aborted.
//
// Contract expectations:
//   - Wait may return nil spuriously. The retry engine re-attempts the
//     syscall and re-checks its close/cancel flags after every wake, so a
//     waiter only has to guarantee that it eventually wakes.
//   - abort is closed when the guarded descriptor is closed or the owning
//     switch begins releasing. Wait must return promptly once abort fires;
//     returning nil is fine (the engine reclassifies on its own flags).
//   - Wait runs with a use held on the descriptor: raw stays a valid open
//     descriptor for the whole call even if Close starts concurrently.
//   - A non-nil error reports a waiter-internal failure and aborts the
//     operation; it is not a statement about the descriptor.
type Waiter interface {
	Wait(raw int, dir Direction, abort <-chan struct{}) error
	WaitDeadline(t time.Time, abort <-chan struct{}) error
	Yield()
}

// WaiterFunc is a convenience implementation for callers that want to inject
// behavior without defining a struct type.
//
// Default behaviors when fields are nil:
//   - WaitFunc: reports readiness immediately (the engine just re-attempts)
//   - WaitDeadlineFunc: parks until t or abort using a timer
//   - YieldFunc: calls runtime.Gosched() to yield the processor
type WaiterFunc struct {
	WaitFunc         func(raw int, dir Direction, abort <-chan struct{}) error
	WaitDeadlineFunc func(t time.Time, abort <-chan struct{}) error
	YieldFunc        func()
}

func (w WaiterFunc) Wait(raw int, dir Direction, abort <-chan struct{}) error {
	if w.WaitFunc != nil {
		return w.WaitFunc(raw, dir, abort)
	}
	return nil
}

func (w WaiterFunc) WaitDeadline(t time.Time, abort <-chan struct{}) error {
	if w.WaitDeadlineFunc != nil {
		return w.WaitDeadlineFunc(t, abort)
	}
	return sleepUntil(t, abort)
}

func (w WaiterFunc) Yield() {
	if w.YieldFunc != nil {
		w.YieldFunc()
		return
	}
	runtime.Gosched()
}

// Sleep parks the calling fiber for d, waking early with ErrCancelled when
// the switch begins releasing. It is the cancellable companion to
// time.Sleep for switch-scoped code.
func Sleep(sw *Switch, d time.Duration) error {
	if err := sw.Check(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	_ = sleepUntil(time.Now().Add(d), sw.Done())
	return sw.Check()
}

// sleepUntil parks until t or abort, whichever comes first.
func sleepUntil(t time.Time, abort <-chan struct{}) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
	case <-abort:
	}
	return nil
}
