// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"context"
	"sync"
)

// switchState tracks the release protocol.
type switchState uint8

const (
	stateOpen switchState = iota
	stateReleasing
	stateReleased
)

// Switch ties resources and background fibers to one lexical lifetime.
//
// A switch is created by Run and handed to the body. Resources register
// release hooks with OnRelease; background fibers start with Daemon. On
// every exit path (normal return, error, panic, cancellation) Run cancels
// and joins the daemons, then runs the hooks in reverse registration order,
// so later resources can still rely on earlier ones while they tear down.
//
// Contract expectations:
//   - Check is the cancellation fence: it fails with ErrCancelled once the
//     switch is cancelled or starts releasing. Side-effecting operations
//     call it before acquiring resources.
//   - Each hook runs at most once: either the switch runs it during release
//     or the owner removed it after cleaning up early, never both.
//   - A switch never finishes while a child Run on the same fiber or a
//     daemon it owns is still winding down.
type Switch struct {
	mu        sync.Mutex
	state     switchState
	cancelled bool
	cause     error
	hooks     []*Hook
	daemons   sync.WaitGroup
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelCauseFunc
}

// Hook is a registered release action. At most one of (run during release,
// Remove) wins.
type Hook struct {
	sw    *Switch
	fn    func()
	fired bool
	gone  bool
}

// Run executes body with a fresh switch and tears the switch down on every
// exit path. A panic in body propagates after the teardown completes.
//
// When the switch was cancelled (directly or through ctx) and body returns
// nil, Run returns the cancellation cause so callers cannot mistake an
// interrupted body for a completed one.
func Run(ctx context.Context, body func(sw *Switch) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithCancelCause(ctx)
	sw := &Switch{parent: ctx, ctx: cctx, cancel: cancel}
	defer func() {
		r := recover()
		sw.release()
		if r != nil {
			panic(r)
		}
		if err == nil {
			err = sw.exitErr()
		}
	}()
	return body(sw)
}

// Check is the cancellation fence. It returns ErrCancelled once the switch
// is cancelled, releasing, or its context (including the parent) is done.
func (s *Switch) Check() error {
	s.mu.Lock()
	bad := s.cancelled || s.state != stateOpen
	s.mu.Unlock()
	if bad || s.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// Cancel marks the switch cancelled: Check fails from now on, the switch
// context fires, and suspended switch-scoped operations wake with
// ErrCancelled. Release hooks still run only when Run unwinds. The first
// cause is latched; later calls are no-ops.
func (s *Switch) Cancel(cause error) {
	if cause == nil {
		cause = ErrCancelled
	}
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.cause = cause
	s.mu.Unlock()
	s.cancel(cause)
}

// OnRelease registers fn to run when the switch releases. Hooks run in
// reverse registration order. If the switch is already releasing it is too
// late to defer: fn runs immediately and the returned hook reports itself
// as already fired.
func (s *Switch) OnRelease(fn func()) *Hook {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		fn()
		return &Hook{fired: true}
	}
	h := &Hook{sw: s, fn: fn}
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
	return h
}

// Daemon starts fn as a background fiber owned by the switch. The context
// fires when the switch is cancelled or begins releasing; release joins
// every daemon before the first hook runs. Daemons must return when their
// context fires and must recover their own panics.
func (s *Switch) Daemon(fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.state != stateOpen || s.cancelled {
		s.mu.Unlock()
		return ErrCancelled
	}
	s.daemons.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.daemons.Done()
		fn(s.ctx)
	}()
	return nil
}

// Done returns a channel closed when the switch is cancelled or releasing.
// It is the abort channel that suspended operations select on.
func (s *Switch) Done() <-chan struct{} { return s.ctx.Done() }

// Context returns the switch context. It fires on Cancel, on parent
// cancellation, and at release.
func (s *Switch) Context() context.Context { return s.ctx }

func (s *Switch) release() {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return
	}
	s.state = stateReleasing
	s.mu.Unlock()

	// Daemons observe the cancellation through the switch context and are
	// joined before the first resource is torn down.
	s.cancel(ErrCancelled)
	s.daemons.Wait()

	for {
		h := s.nextHook()
		if h == nil {
			break
		}
		h.fn()
	}

	s.mu.Lock()
	s.state = stateReleased
	s.mu.Unlock()
}

// nextHook claims the most recently registered hook that was neither
// removed nor already run. Claiming under the lock keeps every hook
// exactly-once even when a hook registers further work while the stack
// unwinds.
func (s *Switch) nextHook() *Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.hooks) > 0 {
		i := len(s.hooks) - 1
		h := s.hooks[i]
		s.hooks = s.hooks[:i]
		if h.gone || h.fired {
			continue
		}
		h.fired = true
		return h
	}
	return nil
}

func (s *Switch) exitErr() error {
	s.mu.Lock()
	cancelled, cause := s.cancelled, s.cause
	s.mu.Unlock()
	if cancelled {
		if cause != nil {
			return cause
		}
		return ErrCancelled
	}
	// Release cancelled s.ctx on the way here, so that context can no
	// longer distinguish outside cancellation from teardown; the parent
	// context can.
	if s.parent.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// Remove unregisters the hook so the switch will not run it. It reports
// whether the registration was still pending: false means the hook already
// ran or was removed before, so the caller must not assume it now owns the
// cleanup.
func (h *Hook) Remove() bool {
	if h.sw == nil {
		return false
	}
	h.sw.mu.Lock()
	defer h.sw.mu.Unlock()
	if h.fired || h.gone {
		return false
	}
	h.gone = true
	h.fn = nil
	return true
}
