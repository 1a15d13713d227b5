// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Kind classifies a guarded descriptor; the transfer selector uses it to
// pick a kernel primitive.
type Kind uint8

const (
	KindUnknown Kind = iota // detect with fstat at construction
	KindFile
	KindPipe
	KindSocket
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "File"
	case KindPipe:
		return "Pipe"
	case KindSocket:
		return "Socket"
	case KindOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// The guard state packs a use count and a closed flag into one word so a
// single atomic transition decides who performs the kernel close.
const (
	fdClosedBit = int64(1) << 62
	fdCountMask = fdClosedBit - 1
)

// FD guards a raw descriptor against the POSIX close/reuse hazard.
//
// Every kernel call runs inside a use: Close never interrupts an in-flight
// call, and once Close wins the race every later use fails with ErrClosed
// instead of touching a descriptor number the kernel may have handed to an
// unrelated file. The real close happens immediately when nothing is in
// flight, otherwise when the last use finishes.
//
// An FD is registered with its switch so an abandoned guard still closes
// when the switch releases; Close removes that registration.
type FD struct {
	sw       *Switch
	waiter   Waiter
	hook     *Hook
	sysfd    int
	kind     Kind
	blocking bool

	state atomic.Int64  // use count in the low bits, closed flag on top
	abort chan struct{} // closed exactly once, by Close

	mergedOnce sync.Once
	merged     chan struct{}
}

// FDOption customizes construction of a guarded descriptor.
type FDOption func(*fdConfig)

type fdConfig struct {
	waiter   Waiter
	kind     Kind
	blocking bool
}

// WithWaiter overrides the readiness waiter (DefaultWaiter otherwise).
func WithWaiter(w Waiter) FDOption { return func(c *fdConfig) { c.waiter = w } }

// WithKind pins the descriptor kind instead of detecting it with fstat.
func WithKind(k Kind) FDOption { return func(c *fdConfig) { c.kind = k } }

// WithBlocking marks a descriptor that must stay in blocking mode, such as
// an inherited terminal. Operations take a best-effort readiness wait
// before the first attempt; see the package notes for the race this leaves
// open under contention.
func WithBlocking() FDOption { return func(c *fdConfig) { c.blocking = true } }

// NewFD takes ownership of raw and guards it. Ownership transfers even on
// failure: raw is closed when the guard cannot be built. Unless marked
// blocking the descriptor is switched to non-blocking mode here.
func NewFD(sw *Switch, raw int, opts ...FDOption) (*FD, error) {
	if raw < 0 {
		return nil, wrapOp("guard", "", unix.EBADF)
	}
	if err := sw.Check(); err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	var cfg fdConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.waiter == nil {
		cfg.waiter = DefaultWaiter()
	}
	if !cfg.blocking {
		if err := unix.SetNonblock(raw, true); err != nil {
			_ = unix.Close(raw)
			return nil, wrapOp("set_nonblock", "", err)
		}
	}
	if cfg.kind == KindUnknown {
		cfg.kind = detectKind(raw)
	}
	fd := &FD{
		sw:       sw,
		waiter:   cfg.waiter,
		sysfd:    raw,
		kind:     cfg.kind,
		blocking: cfg.blocking,
		abort:    make(chan struct{}),
	}
	fd.hook = sw.OnRelease(func() { _ = fd.Close() })
	return fd, nil
}

// Pipe returns the read and write ends of a fresh pipe, both non-blocking,
// close-on-exec, and guarded by sw.
func Pipe(sw *Switch, opts ...FDOption) (r, w *FD, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, nil, wrapOp("pipe2", "", err)
	}
	r, err = NewFD(sw, p[0], append([]FDOption{WithKind(KindPipe)}, opts...)...)
	if err != nil {
		_ = unix.Close(p[1])
		return nil, nil, err
	}
	w, err = NewFD(sw, p[1], append([]FDOption{WithKind(KindPipe)}, opts...)...)
	if err != nil {
		_ = r.Close()
		return nil, nil, err
	}
	return r, w, nil
}

// Socketpair returns both ends of a connected Unix-domain stream pair,
// non-blocking, close-on-exec, and guarded by sw.
func Socketpair(sw *Switch, opts ...FDOption) (a, b *FD, err error) {
	p, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, wrapOp("socketpair", "", err)
	}
	a, err = NewFD(sw, p[0], append([]FDOption{WithKind(KindSocket)}, opts...)...)
	if err != nil {
		_ = unix.Close(p[1])
		return nil, nil, err
	}
	b, err = NewFD(sw, p[1], append([]FDOption{WithKind(KindSocket)}, opts...)...)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

// Open opens path close-on-exec and guards the result. The *OpError of a
// failed open carries the path.
func Open(sw *Switch, path string, flag int, perm uint32, opts ...FDOption) (*FD, error) {
	raw, err := unix.Open(path, flag|unix.O_CLOEXEC, perm)
	if err != nil {
		return nil, wrapOp("open", path, err)
	}
	return NewFD(sw, raw, opts...)
}

// Use runs fn with the raw descriptor while holding a use: the descriptor
// stays open for the duration of fn even if Close begins concurrently.
// After Close, Use fails with ErrClosed without touching the possibly
// reused descriptor number.
func (fd *FD) Use(fn func(raw int) error) error {
	if err := fd.incref(); err != nil {
		return err
	}
	defer fd.decref()
	return fn(fd.sysfd)
}

// Close marks the guard closed, wakes suspended operations, and removes
// the switch registration. The kernel close happens immediately when no
// use is in flight, otherwise when the last use finishes; either way Close
// does not wait for it. Closing twice is a no-op.
func (fd *FD) Close() error {
	for {
		s := fd.state.Load()
		if s&fdClosedBit != 0 {
			return nil
		}
		if !fd.state.CompareAndSwap(s, s|fdClosedBit) {
			continue
		}
		close(fd.abort)
		if fd.hook != nil {
			fd.hook.Remove()
		}
		if s&fdCountMask == 0 {
			fd.destroy()
		}
		return nil
	}
}

// Closed reports whether Close has been called.
func (fd *FD) Closed() bool { return fd.state.Load()&fdClosedBit != 0 }

// Kind reports the pinned or detected descriptor kind.
func (fd *FD) Kind() Kind { return fd.kind }

func (fd *FD) incref() error {
	for {
		s := fd.state.Load()
		if s&fdClosedBit != 0 {
			return ErrClosed
		}
		if fd.state.CompareAndSwap(s, s+1) {
			return nil
		}
	}
}

func (fd *FD) decref() {
	if fd.state.Add(-1) == fdClosedBit {
		fd.destroy()
	}
}

func (fd *FD) destroy() { _ = unix.Close(fd.sysfd) }

// waitAbort returns a channel that fires when the guard closes or the
// owning switch starts releasing. Built lazily: most descriptors never
// suspend.
func (fd *FD) waitAbort() <-chan struct{} {
	fd.mergedOnce.Do(func() {
		merged := make(chan struct{})
		fd.merged = merged
		go func() {
			select {
			case <-fd.abort:
			case <-fd.sw.Done():
			}
			close(merged)
		}()
	})
	return fd.merged
}

func detectKind(raw int) Kind {
	var st unix.Stat_t
	if err := unix.Fstat(raw, &st); err != nil {
		return KindOther
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return KindFile
	case unix.S_IFIFO:
		return KindPipe
	case unix.S_IFSOCK:
		return KindSocket
	default:
		return KindOther
	}
}
