// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package uxio binds non-blocking kernel I/O to switch-scoped lifetimes: it
// guards raw file descriptors against use-after-close, retries interrupted
// and would-block syscalls through a readiness waiter, supervises child
// processes, and moves bytes between descriptors with kernel transfer
// primitives where the pair allows it.
//
// IDE note: uxio re-exports (aliases) the iox stream interfaces so that users
// can stay in the "uxio" namespace while wiring guarded descriptors into
// stream-shaped code. The contracts mirror the standard io expectations, with
// uxio-specific behavior documented at the call sites (typically Copy).
package uxio

import (
	"code.hybscloud.com/iox"
)

// Reader is implemented by types that can read bytes into p.
//
// A guarded descriptor is a Reader; synthetic Readers may also be fed into
// Copy, which then stages through a buffer instead of the kernel primitives.
//
// Reader is an alias of iox.Reader (itself an alias of io.Reader).
type Reader = iox.Reader

// Writer is implemented by types that can write bytes from p.
//
// Writer is an alias of iox.Writer (itself an alias of io.Writer).
type Writer = iox.Writer

// Closer is implemented by types that can release resources.
//
// FD.Close is idempotent; see FD for the deferred-release rules when uses
// are still in flight.
//
// Closer is an alias of iox.Closer (itself an alias of io.Closer).
type Closer = iox.Closer

// ReaderFrom is an optional optimization for Writers. A guarded descriptor
// implements it by delegating to Copy, so io.Copy into an FD picks up the
// kernel transfer strategies automatically.
//
// ReaderFrom is an alias of iox.ReaderFrom (itself an alias of io.ReaderFrom).
type ReaderFrom = iox.ReaderFrom

// WriterTo is an optional optimization for Readers. Copy honors it for
// synthetic sources via the generic strategy.
//
// WriterTo is an alias of iox.WriterTo (itself an alias of io.WriterTo).
type WriterTo = iox.WriterTo

// Common sentinels re-exported for convenience.
//
// Note: uxio also defines terminal sentinels of its own (ErrClosed,
// ErrCancelled); those are not part of the iox set.
var (
	// EOF is returned by Read when no more input is available. Stream-shaped
	// descriptors map a zero-byte kernel read onto EOF.
	EOF = iox.EOF

	// ErrWouldBlock is the iox readiness semantic. Descriptor operations
	// absorb it inside the retry engine; it is re-exported for custom Waiter
	// implementations and synthetic non-blocking streams.
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrMore is the iox multi-shot semantic: progress was made and more
	// completions follow. Kernel descriptor operations never produce it, but
	// synthetic sources fed into Copy may, and the generic strategy passes it
	// through to the caller.
	ErrMore = iox.ErrMore
)
