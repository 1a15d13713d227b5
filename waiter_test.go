// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio_test

import (
	"context"
	"testing"
	"time"

	"code.hybscloud.com/uxio"
)

func TestWaiterFunc_Defaults(t *testing.T) {
	var w uxio.WaiterFunc
	if err := w.Wait(0, uxio.DirectionRead, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	start := time.Now()
	if err := w.WaitDeadline(time.Now().Add(10*time.Millisecond), nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("deadline wait returned too early")
	}
	w.Yield()
}

func TestWaiterFunc_Injected(t *testing.T) {
	var waited, yielded bool
	w := uxio.WaiterFunc{
		WaitFunc: func(raw int, dir uxio.Direction, abort <-chan struct{}) error {
			waited = true
			if dir != uxio.DirectionWrite {
				t.Fatalf("dir=%v", dir)
			}
			return nil
		},
		YieldFunc: func() { yielded = true },
	}
	if err := w.Wait(3, uxio.DirectionWrite, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	w.Yield()
	if !waited || !yielded {
		t.Fatalf("waited=%v yielded=%v", waited, yielded)
	}
}

func TestWaiterFunc_DeadlineAbort(t *testing.T) {
	var w uxio.WaiterFunc
	abort := make(chan struct{})
	close(abort)
	start := time.Now()
	if err := w.WaitDeadline(time.Now().Add(10*time.Second), abort); err != nil {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("abort did not cut the deadline wait short")
	}
}

func TestSleep_Completes(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		return uxio.Sleep(sw, 10*time.Millisecond)
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestSleep_ZeroReturnsImmediately(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		if err := uxio.Sleep(sw, 0); err != nil {
			return err
		}
		return uxio.Sleep(sw, -time.Second)
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestSleep_CancelledMidWait(t *testing.T) {
	start := time.Now()
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		done := make(chan error, 1)
		go func() { done <- uxio.Sleep(sw, 10*time.Second) }()
		time.Sleep(20 * time.Millisecond)
		sw.Cancel(nil)
		select {
		case serr := <-done:
			if !uxio.IsCancelled(serr) {
				t.Fatalf("want cancelled, got %v", serr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("sleep did not observe cancellation")
		}
		return nil
	})
	if !uxio.IsCancelled(err) {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) > 8*time.Second {
		t.Fatal("sleep blocked through cancellation")
	}
}

func TestSleep_CancelledSwitchFailsFast(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		sw.Cancel(nil)
		return uxio.Sleep(sw, 10*time.Second)
	})
	if !uxio.IsCancelled(err) {
		t.Fatalf("err=%v", err)
	}
}
