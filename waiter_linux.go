// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// errWaiterClosed aborts waits pending on a reactor that was shut down.
var errWaiterClosed = errors.New("uxio: waiter closed")

// PollWaiter is the default readiness waiter: one reactor goroutine
// multiplexes every pending wait through a single poll(2) call, with an
// eventfd in slot zero to interrupt the sleep whenever the wait set changes.
//
// The reactor owns the eventfd. Only the reactor drains it, so a kick can
// never be consumed by a bystander and leave an aborted wait parked.
//
// The zero value is ready to use; the reactor starts on the first Wait.
type PollWaiter struct {
	mu      sync.Mutex
	waits   map[uint64]*pollWait
	seq     uint64
	wake    int
	started bool
	closed  bool
	err     error // reactor startup failure, sticky
}

type pollWait struct {
	raw  int
	dir  Direction
	done chan struct{}
	err  error
}

// Wait parks until raw is ready in direction dir, the wait is aborted, or
// the reactor fails. Readiness includes error conditions (POLLERR, POLLHUP):
// the caller's next syscall surfaces the real condition.
func (w *PollWaiter) Wait(raw int, dir Direction, abort <-chan struct{}) error {
	if abort != nil {
		select {
		case <-abort:
			return nil
		default:
		}
	}
	if err := w.ensure(); err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWaiterClosed
	}
	w.seq++
	id := w.seq
	pw := &pollWait{raw: raw, dir: dir, done: make(chan struct{})}
	w.waits[id] = pw
	w.mu.Unlock()
	w.kick()

	select {
	case <-pw.done:
		return pw.err
	case <-abort:
		w.forget(id)
		return nil
	}
}

// WaitDeadline parks until t or abort; it does not involve the reactor.
func (w *PollWaiter) WaitDeadline(t time.Time, abort <-chan struct{}) error {
	return sleepUntil(t, abort)
}

func (w *PollWaiter) Yield() { runtime.Gosched() }

// Close shuts the reactor down and fails any pending waits with an internal
// error. The process-wide default waiter is never closed; Close exists for
// privately owned waiters in tests and per-domain setups.
func (w *PollWaiter) Close() error {
	w.mu.Lock()
	if w.closed || !w.started {
		w.closed = true
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	w.kick()
	return nil
}

func (w *PollWaiter) ensure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWaiterClosed
	}
	if w.err != nil {
		return w.err
	}
	if w.started {
		return nil
	}
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		w.err = wrapOp("eventfd", "", err)
		return w.err
	}
	w.wake = fd
	w.waits = make(map[uint64]*pollWait)
	w.started = true
	go w.reactor()
	return nil
}

// forget removes a wait whose abort channel fired. If the reactor already
// delivered readiness the removal is a no-op; the kick makes the reactor
// drop the stale descriptor from its poll set promptly.
func (w *PollWaiter) forget(id uint64) {
	w.mu.Lock()
	delete(w.waits, id)
	w.mu.Unlock()
	w.kick()
}

// kick wakes the reactor so it rebuilds its poll set. The write happens
// under the lock that also guards the reactor releasing the eventfd, so a
// kick racing teardown degrades to a no-op instead of writing to whatever
// descriptor reuses the number. The eventfd is non-blocking; holding the
// lock across the write never parks.
func (w *PollWaiter) kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wake < 0 {
		return
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	for {
		_, err := unix.Write(w.wake, b[:])
		if err != unix.EINTR {
			// EAGAIN means the counter is saturated and the reactor is
			// about to wake anyway.
			return
		}
	}
}

func (w *PollWaiter) drain() {
	var b [8]byte
	for {
		_, err := unix.Read(w.wake, b[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (w *PollWaiter) reactor() {
	fds := make([]unix.PollFd, 0, 8)
	ids := make([]uint64, 0, 8)
	for {
		fds = fds[:0]
		ids = ids[:0]
		w.mu.Lock()
		if w.closed && len(w.waits) == 0 {
			_ = unix.Close(w.wake)
			w.wake = -1
			w.mu.Unlock()
			return
		}
		fds = append(fds, unix.PollFd{Fd: int32(w.wake), Events: unix.POLLIN})
		for id, pw := range w.waits {
			ev := int16(unix.POLLIN)
			if pw.dir == DirectionWrite {
				ev = unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(pw.raw), Events: ev})
			ids = append(ids, id)
		}
		closing := w.closed
		w.mu.Unlock()

		if closing {
			w.failAll(errWaiterClosed)
			continue
		}

		n, err := unix.Poll(fds, -1)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			w.failAll(wrapOp("poll", "", err))
			continue
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents != 0 {
			w.drain()
		}
		w.mu.Lock()
		for i, id := range ids {
			if fds[i+1].Revents == 0 {
				continue
			}
			if pw, ok := w.waits[id]; ok {
				delete(w.waits, id)
				close(pw.done)
			}
		}
		w.mu.Unlock()
	}
}

func (w *PollWaiter) failAll(err error) {
	w.mu.Lock()
	for id, pw := range w.waits {
		delete(w.waits, id)
		pw.err = err
		close(pw.done)
	}
	w.mu.Unlock()
}

var (
	defaultWaiterOnce sync.Once
	defaultWaiter     *PollWaiter
)

// DefaultWaiter returns the process-wide readiness waiter used by guarded
// descriptors unless WithWaiter overrides it. The reactor starts lazily on
// the first suspended operation.
func DefaultWaiter() Waiter {
	defaultWaiterOnce.Do(func() { defaultWaiter = &PollWaiter{} })
	return defaultWaiter
}
