// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"errors"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// kernelChunk caps how much one sendfile/splice attempt may move.
const kernelChunk = 1 << 20

// writerOnly hides ReaderFrom so the iox copy helpers stage through their
// buffer instead of calling FD.ReadFrom back into this selector.
type writerOnly struct {
	iox.Writer
}

// Copy moves bytes from src into dst until end of input, picking the
// cheapest strategy the pair supports:
//
//  1. Kernel transfer: sendfile when src is a regular file, splice when
//     either endpoint is a pipe. Bytes move without entering user space.
//  2. Pooled staging: a chunk borrowed from the transfer pool carries the
//     bytes, one read/write round per iteration.
//  3. Generic: src is not a guarded descriptor; the iox copy loop runs and
//     honors WriterTo sources.
//
// A primitive that turns out to be unsupported for the pair falls through
// to the next strategy; bytes already moved are kept, never redone. EOF is
// absorbed: a clean drain returns a nil error.
func Copy(dst *FD, src iox.Reader) (int64, error) {
	sfd, ok := src.(*FD)
	if !ok {
		return copyGeneric(dst, src)
	}
	moved, err := copyKernel(dst, sfd)
	if err == nil {
		return moved, nil
	}
	if !errors.Is(err, errUnsupported) {
		return moved, err
	}
	n, err := copyPooled(dst, sfd, nil)
	return moved + n, err
}

// CopyBuffered moves bytes like Copy but skips the kernel primitives and
// always stages descriptor pairs through a pooled chunk. A nil pool
// selects the package transfer pool; synthetic sources still go through
// the generic loop. It exists for pairs whose kernel path is known to
// misbehave and for exercising the staging path directly.
func CopyBuffered(dst *FD, src iox.Reader, pool *ChunkPool) (int64, error) {
	if sfd, ok := src.(*FD); ok {
		return copyPooled(dst, sfd, pool)
	}
	return copyGeneric(dst, src)
}

// ReadFrom implements iox.ReaderFrom, so io.Copy into a guarded descriptor
// picks up the transfer strategies automatically.
func (fd *FD) ReadFrom(r iox.Reader) (int64, error) {
	return Copy(fd, r)
}

// copyKernel runs a zero-copy primitive for the pair, or reports
// errUnsupported to make the selector fall through.
func copyKernel(dst, src *FD) (int64, error) {
	switch {
	case src.kind == KindFile:
		return sendfileLoop(dst, src)
	case src.kind == KindPipe || dst.kind == KindPipe:
		return spliceLoop(dst, src)
	default:
		return 0, errUnsupported
	}
}

// errnoUnsupported reports whether err is how a transfer primitive says
// "not for this descriptor pair" rather than a real transfer failure.
func errnoUnsupported(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.EINVAL, unix.ENOSYS, unix.EOPNOTSUPP, unix.ESPIPE, unix.EPERM:
		return true
	default:
		return false
	}
}

// sendfileLoop moves a regular file into dst entirely in the kernel. The
// file side is always ready, so the engine suspends on dst writability.
func sendfileLoop(dst, src *FD) (int64, error) {
	var moved int64
	for {
		if err := src.sw.Check(); err != nil {
			return moved, err
		}
		var n int
		err := dst.perform(DirectionWrite, "sendfile", func(draw int) error {
			return src.Use(func(sraw int) error {
				var e error
				n, e = unix.Sendfile(draw, sraw, nil, kernelChunk)
				return e
			})
		})
		if n > 0 {
			moved += int64(n)
		}
		if err != nil {
			if errnoUnsupported(err) {
				return moved, errUnsupported
			}
			return moved, err
		}
		if n == 0 {
			return moved, nil
		}
	}
}

// spliceLoop moves bytes through the kernel when either endpoint is a
// pipe. A stalled splice cannot say which side stalled (drained source and
// full sink both read as EAGAIN), so the loop follows the engine's shape
// by hand and waits for the source to fill, then the sink to drain, before
// retrying.
func spliceLoop(dst, src *FD) (int64, error) {
	var moved int64
	src.waiter.Yield()
	for {
		if err := src.sw.Check(); err != nil {
			return moved, err
		}
		if err := dst.sw.Check(); err != nil {
			return moved, err
		}
		var n int64
		err := src.Use(func(sraw int) error {
			return dst.Use(func(draw int) error {
				var e error
				n, e = unix.Splice(sraw, nil, draw, nil, kernelChunk, unix.SPLICE_F_MOVE|unix.SPLICE_F_NONBLOCK)
				return e
			})
		})
		if n > 0 {
			moved += n
		}
		switch {
		case err == nil:
			if n == 0 {
				return moved, nil
			}
		case err == unix.EINTR:
			// transient; go around
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			if werr := src.ready(DirectionRead); werr != nil {
				return moved, wrapOp("splice", "", werr)
			}
			if werr := dst.ready(DirectionWrite); werr != nil {
				return moved, wrapOp("splice", "", werr)
			}
		case errnoUnsupported(err):
			return moved, errUnsupported
		default:
			return moved, wrapOp("splice", "", err)
		}
	}
}

// copyPooled stages through a borrowed chunk. The chunk is returned on
// every path; an exhausted pool degrades to a heap chunk inside Acquire.
func copyPooled(dst, src *FD, pool *ChunkPool) (int64, error) {
	if pool == nil {
		pool = defaultTransferPool()
	}
	c := pool.Acquire()
	defer c.Release()
	return iox.CopyBuffer(writerOnly{dst}, src, c.Bytes())
}

// copyGeneric handles synthetic sources with the iox loop: WriterTo
// sources write straight into dst, everything else stages through the iox
// stack buffer.
func copyGeneric(dst *FD, src iox.Reader) (int64, error) {
	return iox.Copy(writerOnly{dst}, src)
}
