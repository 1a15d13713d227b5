// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio_test

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"code.hybscloud.com/uxio"
)

// rawPipe hands back the ends of a nonblocking pipe as raw descriptors, the
// form waiters operate on.
func rawPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestPollWaiter_WakesOnReadable(t *testing.T) {
	r, w := rawPipe(t)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		unix.Write(w, []byte("x"))
	}()
	if err := pw.Wait(r, uxio.DirectionRead, nil); err != nil {
		t.Fatalf("wait: %v", err)
	}
	buf := make([]byte, 1)
	if n, err := unix.Read(r, buf); err != nil || n != 1 {
		t.Fatalf("read after wake: n=%d err=%v", n, err)
	}
}

func TestPollWaiter_WritableImmediately(t *testing.T) {
	_, w := rawPipe(t)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	done := make(chan error, 1)
	go func() { done <- pw.Wait(w, uxio.DirectionWrite, nil) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait on an empty pipe's write end did not return")
	}
}

func TestPollWaiter_PrefiredAbortReturnsImmediately(t *testing.T) {
	r, _ := rawPipe(t)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	abort := make(chan struct{})
	close(abort)
	if err := pw.Wait(r, uxio.DirectionRead, abort); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestPollWaiter_AbortMidWaitReturnsPromptly(t *testing.T) {
	r, _ := rawPipe(t)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	abort := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- pw.Wait(r, uxio.DirectionRead, abort) }()
	time.Sleep(20 * time.Millisecond)
	close(abort)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("aborted wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not return after abort")
	}
}

func TestPollWaiter_HangupCountsAsReadiness(t *testing.T) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r := p[0]
	defer unix.Close(r)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	done := make(chan error, 1)
	go func() { done <- pw.Wait(r, uxio.DirectionRead, nil) }()
	time.Sleep(20 * time.Millisecond)
	unix.Close(p[1])
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait across hangup: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not observe writer hangup")
	}
	// The pipe now reads as empty-and-hung-up; the wake lets the caller's
	// next read see that for itself.
	if n, err := unix.Read(r, make([]byte, 1)); n != 0 || err != nil {
		t.Fatalf("read after hangup: n=%d err=%v", n, err)
	}
}

func TestPollWaiter_ParallelWaitsWakeIndependently(t *testing.T) {
	r1, w1 := rawPipe(t)
	r2, w2 := rawPipe(t)
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- pw.Wait(r1, uxio.DirectionRead, nil) }()
	go func() { done2 <- pw.Wait(r2, uxio.DirectionRead, nil) }()
	time.Sleep(20 * time.Millisecond)
	unix.Write(w2, []byte("b"))
	select {
	case err := <-done2:
		if err != nil {
			t.Fatalf("second wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second wait did not wake")
	}
	unix.Write(w1, []byte("a"))
	select {
	case err := <-done1:
		if err != nil {
			t.Fatalf("first wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first wait did not wake")
	}
}

func TestPollWaiter_WaitDeadline(t *testing.T) {
	pw := &uxio.PollWaiter{}
	defer pw.Close()

	start := time.Now()
	if err := pw.WaitDeadline(start.Add(30*time.Millisecond), nil); err != nil {
		t.Fatalf("deadline wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %v, before the deadline", elapsed)
	}

	abort := make(chan struct{})
	close(abort)
	start = time.Now()
	if err := pw.WaitDeadline(start.Add(5*time.Second), abort); err != nil {
		t.Fatalf("aborted deadline wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("aborted wait still took %v", elapsed)
	}
}

func TestPollWaiter_CloseRacesAbortedWaits(t *testing.T) {
	// An abort landing while the waiter shuts down must not hang, and its
	// reactor wake-up must not outlive the reactor's descriptor. Iterate so
	// the two teardown paths interleave in different orders.
	for i := 0; i < 40; i++ {
		r, _ := rawPipe(t)
		pw := &uxio.PollWaiter{}
		abort := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pw.Wait(r, uxio.DirectionRead, abort)
			}()
		}
		time.Sleep(time.Millisecond)
		go close(abort)
		if err := pw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("aborted waits leaked past close")
		}
	}
}

func TestPollWaiter_CloseFailsPendingWaits(t *testing.T) {
	r, _ := rawPipe(t)
	pw := &uxio.PollWaiter{}

	done := make(chan error, 1)
	go func() { done <- pw.Wait(r, uxio.DirectionRead, nil) }()
	time.Sleep(20 * time.Millisecond)
	if err := pw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("pending wait returned nil after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending wait survived close")
	}
	if err := pw.Wait(r, uxio.DirectionRead, nil); err == nil {
		t.Fatalf("wait on a closed waiter returned nil")
	}
}
