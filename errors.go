// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"errors"

	"code.hybscloud.com/iox"
)

// uxio separates errors that end an operation from signals that merely steer
// the retry engine.
//
// Mental model:
//   - ErrClosed: the guarded descriptor was closed; the call is over.
//   - ErrCancelled: the owning switch began releasing; the call is over.
//   - iox.ErrWouldBlock / EINTR: absorbed inside the engine; callers never
//     observe them from descriptor operations.
//
// Notes:
//   - ErrClosed and ErrCancelled are terminal for the failing call only; the
//     switch keeps running its release protocol regardless.
//   - Kernel failures surface as *OpError with the operation name attached.

// ErrClosed means the operation raced with, or followed, a Close of the
// guarded descriptor. The descriptor number may already belong to an
// unrelated file, so no further syscalls are issued against it.
var ErrClosed = errors.New("uxio: closed descriptor")

// ErrCancelled means the switch owning the operation began releasing (or was
// cancelled) before the operation completed. Suspended operations are woken
// and fail with this error instead of waiting on resources that are about to
// disappear.
var ErrCancelled = errors.New("uxio: cancelled")

// errUnsupported steers Copy away from a kernel transfer primitive that the
// current descriptor pair cannot use. It never escapes the package: Copy
// falls through to a buffered strategy and reports only real failures.
var errUnsupported = errors.New("uxio: kernel transfer unsupported")

// OpError records a failed kernel operation: the operation name, an optional
// textual argument (a path, a socket option), and the underlying cause.
type OpError struct {
	Op  string
	Arg string
	Err error
}

func (e *OpError) Error() string {
	if e.Arg == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Arg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// SpawnError reports that a child process could not be started. Err carries
// the reason delivered from the child side of the spawn handshake, so a
// failed exec reads like the syscall that broke it.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string { return "spawn " + e.Path + ": " + e.Err.Error() }

func (e *SpawnError) Unwrap() error { return e.Err }

// wrapOp attaches op (and arg, when non-empty) to a kernel failure. Package
// semantics pass through untouched so callers can keep matching on the
// sentinels and on EOF.
func wrapOp(op, arg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrCancelled) || errors.Is(err, iox.EOF) {
		return err
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Arg: arg, Err: err}
}
