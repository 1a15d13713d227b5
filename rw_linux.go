// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// Single attempts are capped so any kernel version handles them; the write
// loops continue past the cap. maxVec is the portable iovec ceiling.
const (
	maxRW  = 1 << 30
	maxVec = 1024
)

// perform is the one retry loop every kernel call site goes through: yield
// once, attempt fn, retry transient interruptions immediately, and suspend
// on the waiter when the descriptor is not ready. Callers never observe
// EINTR or would-block from it.
//
// Every wake re-checks the cancellation fence and the closed flag, so a
// suspended operation fails with ErrCancelled or ErrClosed as soon as its
// switch releases or its guard closes.
func (fd *FD) perform(dir Direction, op string, fn func(raw int) error) error {
	fd.waiter.Yield()
	if fd.blocking {
		// Best-effort readiness wait for descriptors stuck in blocking
		// mode. Racy under contention: another consumer can drain the
		// descriptor between the wait and the syscall, re-blocking this
		// fiber in the kernel. Kept for inherited terminals and the like.
		if err := fd.ready(dir); err != nil {
			return wrapOp(op, "", err)
		}
	}
	for {
		if err := fd.sw.Check(); err != nil {
			return err
		}
		err := fd.Use(fn)
		switch {
		case err == nil:
			return nil
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK || iox.IsWouldBlock(err):
			if werr := fd.ready(dir); werr != nil {
				return wrapOp(op, "", werr)
			}
			continue
		default:
			return wrapOp(op, "", err)
		}
	}
}

// ready suspends on the waiter until the descriptor may have become ready.
// Spurious wakes are fine; the engine re-attempts and reclassifies. The
// wait itself holds a use, so the raw descriptor outlives a concurrent
// Close until the wait returns.
func (fd *FD) ready(dir Direction) error {
	if err := fd.sw.Check(); err != nil {
		return err
	}
	if fd.Closed() {
		return ErrClosed
	}
	return fd.Use(func(raw int) error {
		return fd.waiter.Wait(raw, dir, fd.waitAbort())
	})
}

// Read reads into p, suspending until the descriptor is readable. A
// zero-byte kernel read on a non-empty buffer reports EOF.
func (fd *FD) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > maxRW {
		p = p[:maxRW]
	}
	var n int
	err := fd.perform(DirectionRead, "read", func(raw int) error {
		var e error
		n, e = unix.Read(raw, p)
		return e
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, iox.EOF
	}
	return n, nil
}

// Write writes all of p, suspending whenever the descriptor stops taking
// bytes. Short kernel writes continue from where they stopped.
func (fd *FD) Write(p []byte) (int, error) {
	var nn int
	for nn < len(p) {
		chunk := p[nn:]
		if len(chunk) > maxRW {
			chunk = chunk[:maxRW]
		}
		var n int
		err := fd.perform(DirectionWrite, "write", func(raw int) error {
			var e error
			n, e = unix.Write(raw, chunk)
			return e
		})
		if n > 0 {
			nn += n
		}
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, iox.ErrUnexpectedEOF
		}
	}
	return nn, nil
}

// Readv fills the buffers of iovs in order with one vectored read. At most
// maxVec buffers are submitted per attempt.
func (fd *FD) Readv(iovs [][]byte) (int, error) {
	var total int
	for _, b := range iovs {
		total += len(b)
	}
	if total == 0 {
		return 0, nil
	}
	v := iovs
	if len(v) > maxVec {
		v = v[:maxVec]
	}
	var n int
	err := fd.perform(DirectionRead, "readv", func(raw int) error {
		var e error
		n, e = unix.Readv(raw, v)
		return e
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, iox.EOF
	}
	return n, nil
}

// Writev writes every buffer of iovs fully, resubmitting the unwritten
// tail after short writes.
func (fd *FD) Writev(iovs [][]byte) (int64, error) {
	// Copy the slice headers: the loop trims buffers as the kernel
	// consumes them.
	v := make([][]byte, len(iovs))
	copy(v, iovs)
	var nn int64
	for len(v) > 0 {
		if len(v[0]) == 0 {
			v = v[1:]
			continue
		}
		w := v
		if len(w) > maxVec {
			w = w[:maxVec]
		}
		var n int
		err := fd.perform(DirectionWrite, "writev", func(raw int) error {
			var e error
			n, e = unix.Writev(raw, w)
			return e
		})
		if n > 0 {
			nn += int64(n)
			v = consumeVec(v, n)
		}
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, iox.ErrUnexpectedEOF
		}
	}
	return nn, nil
}

// consumeVec drops n written bytes off the front of v.
func consumeVec(v [][]byte, n int) [][]byte {
	for n > 0 && len(v) > 0 {
		if n >= len(v[0]) {
			n -= len(v[0])
			v = v[1:]
			continue
		}
		v[0] = v[0][n:]
		n = 0
	}
	return v
}

// Pread reads from absolute offset off without touching the seek cursor.
func (fd *FD) Pread(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > maxRW {
		p = p[:maxRW]
	}
	var n int
	err := fd.perform(DirectionRead, "pread", func(raw int) error {
		var e error
		n, e = unix.Pread(raw, p, off)
		return e
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, iox.EOF
	}
	return n, nil
}

// Pwrite writes all of p at absolute offset off without touching the seek
// cursor.
func (fd *FD) Pwrite(p []byte, off int64) (int, error) {
	var nn int
	for nn < len(p) {
		chunk := p[nn:]
		if len(chunk) > maxRW {
			chunk = chunk[:maxRW]
		}
		var n int
		err := fd.perform(DirectionWrite, "pwrite", func(raw int) error {
			var e error
			n, e = unix.Pwrite(raw, chunk, off+int64(nn))
			return e
		})
		if n > 0 {
			nn += n
		}
		if err != nil {
			return nn, err
		}
		if n == 0 {
			return nn, iox.ErrUnexpectedEOF
		}
	}
	return nn, nil
}
