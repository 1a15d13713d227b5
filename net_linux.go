// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"golang.org/x/sys/unix"
)

// Accept takes the next pending connection, retrying when the peer aborted
// before we got to it. The accepted descriptor arrives non-blocking and
// close-on-exec and is guarded by the same switch and waiter as the
// listener.
func (fd *FD) Accept() (*FD, unix.Sockaddr, error) {
	var (
		nfd int
		sa  unix.Sockaddr
	)
	err := fd.perform(DirectionRead, "accept", func(raw int) error {
		var e error
		nfd, sa, e = unix.Accept4(raw, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		return e
	})
	if err != nil {
		return nil, nil, err
	}
	conn, err := NewFD(fd.sw, nfd, WithKind(KindSocket), WithWaiter(fd.waiter))
	if err != nil {
		return nil, nil, err
	}
	return conn, sa, nil
}

// Connect starts connecting the socket and suspends until the kernel
// reports an outcome through SO_ERROR, so a non-blocking connect reads
// like a synchronous one.
func (fd *FD) Connect(sa unix.Sockaddr) error {
	err := fd.Use(func(raw int) error { return unix.Connect(raw, sa) })
	switch {
	case err == nil:
		return nil
	case err == unix.EINPROGRESS || err == unix.EALREADY || err == unix.EINTR:
		// completion is collected through the engine below
	default:
		return wrapOp("connect", "", err)
	}
	return fd.perform(DirectionWrite, "connect", func(raw int) error {
		soerr, e := unix.GetsockoptInt(raw, unix.SOL_SOCKET, unix.SO_ERROR)
		if e != nil {
			return e
		}
		switch unix.Errno(soerr) {
		case 0:
			return nil
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			// not settled yet; report not-ready so the engine waits again
			return unix.EAGAIN
		default:
			return unix.Errno(soerr)
		}
	})
}

// SendMsg sends p together with ancillary data oob (descriptor passing,
// credentials) as one message. SIGPIPE is suppressed in favor of EPIPE.
func (fd *FD) SendMsg(p, oob []byte) (int, error) {
	var n int
	err := fd.perform(DirectionWrite, "sendmsg", func(raw int) error {
		var e error
		n, e = unix.SendmsgN(raw, p, oob, nil, unix.MSG_NOSIGNAL)
		return e
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecvMsg receives one message into p, capturing ancillary data into oob.
// Descriptors arriving through oob are close-on-exec. Counts are reported
// as the kernel delivered them; a zero data count on a stream socket is
// the caller's EOF to interpret.
func (fd *FD) RecvMsg(p, oob []byte) (n, oobn int, err error) {
	err = fd.perform(DirectionRead, "recvmsg", func(raw int) error {
		var e error
		n, oobn, _, _, e = unix.Recvmsg(raw, p, oob, unix.MSG_CMSG_CLOEXEC)
		return e
	})
	if err != nil {
		return 0, 0, err
	}
	return n, oobn, nil
}

// Shutdown half-closes the socket; how is unix.SHUT_RD, unix.SHUT_WR or
// unix.SHUT_RDWR.
func (fd *FD) Shutdown(how int) error {
	return wrapOp("shutdown", "", fd.Use(func(raw int) error { return unix.Shutdown(raw, how) }))
}
